package auth

import "context"

type contextKey int

const (
	identityKey contextKey = iota
	callerServiceKey
)

// ContextWithIdentity returns a context carrying identity. The request
// [Gate] sets it after a successful validation.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity set by [ContextWithIdentity].
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// MustIdentityFromContext is [IdentityFromContext] for handlers mounted
// behind the gate. It panics if no identity is present, which means the
// route was wrongly allow-listed.
func MustIdentityFromContext(ctx context.Context) Identity {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context; route is not behind the authorization gate")
	}
	return identity
}

// ContextWithCallerService returns a context carrying the name of the
// calling service, taken from its verified client certificate.
func ContextWithCallerService(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, callerServiceKey, service)
}

// CallerServiceFromContext returns the name set by
// [ContextWithCallerService].
func CallerServiceFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(callerServiceKey).(string)
	return name, ok
}

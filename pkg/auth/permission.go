package auth

import (
	"context"
	"net/http"
	"slices"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/httpx"
)

// CheckOwnership grants access iff identity owns the resource or is an
// admin. It returns the permission-denied error otherwise.
func CheckOwnership(identity Identity, owner int64) error {
	if identity.Owns(owner) {
		return nil
	}
	return sserr.Forbidden()
}

// OwnerResolver returns the id of the user owning the resource addressed
// by r. It returns a not-found error when the resource does not exist.
type OwnerResolver func(r *http.Request) (owner int64, err error)

type ownerKey struct{}

// OwnerFromContext returns the owner resolved by [RequireOwnership].
func OwnerFromContext(ctx context.Context) (int64, bool) {
	owner, ok := ctx.Value(ownerKey{}).(int64)
	return owner, ok
}

// RequireOwnership returns middleware that resolves the resource owner and
// applies [CheckOwnership] to the identity left by the [Gate]. Existence is
// checked for every method, so a missing resource is a 404 even where the
// ownership check is skipped. Methods in skipMethods bypass the ownership
// check only.
func RequireOwnership(resolve OwnerResolver, skipMethods ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := resolve(r)
			if err != nil {
				httpx.WriteError(w, r, err)
				return
			}

			if !slices.Contains(skipMethods, r.Method) {
				identity, ok := IdentityFromContext(r.Context())
				if !ok {
					httpx.WriteError(w, r, sserr.Forbidden())
					return
				}
				if err := CheckOwnership(identity, owner); err != nil {
					httpx.WriteError(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
		})
	}
}

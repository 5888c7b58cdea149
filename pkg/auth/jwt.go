package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

const tracerName = "github.com/StricklySoft/storefront/pkg/auth"

// ---------------------------------------------------------------------------
// Secret
// ---------------------------------------------------------------------------

// Secret is a string whose formatted and serialized forms are redacted.
type Secret string

const secretRedacted = "[REDACTED]"

func (s Secret) String() string { return secretRedacted }

func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret.
func (s Secret) Value() string { return string(s) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// ---------------------------------------------------------------------------
// TokenConfig
// ---------------------------------------------------------------------------

// DevelopmentSecret is the signing secret used when JWT_SECRET is not set.
// Services log a warning at startup when they run with it.
const DevelopmentSecret = "storefront-development-secret-do-not-use"

// Reason strings returned by [Validator.Validate]. They reach clients
// verbatim inside 403 responses.
const (
	ReasonMissingHeader = "Invalid authorization header"
	ReasonInvalidToken  = "Invalid JWT token"
	ReasonInvalidScheme = "Invalid token scheme"
	ReasonRevoked       = "Token is revoked"
	reasonDecodePrefix  = "Invalid authorization token, "
)

// BearerScheme is the only accepted authorization scheme.
const BearerScheme = "Bearer"

// TokenConfig configures token issuing and validation.
type TokenConfig struct {
	// Secret is the shared HMAC key.
	Secret Secret `json:"-" yaml:"-" env:"JWT_SECRET" envDefault:"storefront-development-secret-do-not-use"`

	// Algorithm signs issued tokens.
	Algorithm string `json:"algorithm" yaml:"algorithm" env:"JWT_ALGORITHM" envDefault:"HS256"`

	// Algorithms lists the algorithms accepted when validating.
	Algorithms []string `json:"algorithms" yaml:"algorithms" env:"JWT_ALGORITHMS" envDefault:"HS256"`

	// ExpirationDays is the lifetime of issued tokens.
	ExpirationDays int `json:"expiration_days" yaml:"expiration_days" env:"JWT_EXPIRATION_DAYS" envDefault:"1"`

	// Leeway tolerates clock skew on exp checks.
	Leeway time.Duration `json:"leeway" yaml:"leeway" env:"JWT_LEEWAY" envDefault:"0s"`
}

// UsesDevelopmentSecret reports whether the built-in secret is in use.
func (c *TokenConfig) UsesDevelopmentSecret() bool {
	return c.Secret.Value() == DevelopmentSecret
}

// TTL returns the lifetime of issued tokens.
func (c *TokenConfig) TTL() time.Duration {
	return time.Duration(c.ExpirationDays) * 24 * time.Hour
}

// Validate checks the configuration. Only HMAC algorithms are supported
// since the secret is shared between issuer and validator.
func (c *TokenConfig) Validate() error {
	if c.Secret == "" {
		return sserr.New(sserr.CodeValidation, "auth: JWT_SECRET must not be empty")
	}
	if signingMethod(c.Algorithm) == nil {
		return sserr.Newf(sserr.CodeValidation, "auth: unsupported JWT_ALGORITHM %q", c.Algorithm)
	}
	if len(c.Algorithms) == 0 {
		return sserr.New(sserr.CodeValidation, "auth: JWT_ALGORITHMS must not be empty")
	}
	accepted := false
	for _, alg := range c.Algorithms {
		if signingMethod(alg) == nil {
			return sserr.Newf(sserr.CodeValidation, "auth: unsupported algorithm %q in JWT_ALGORITHMS", alg)
		}
		accepted = accepted || alg == c.Algorithm
	}
	if !accepted {
		return sserr.Newf(sserr.CodeValidation, "auth: JWT_ALGORITHM %q is not listed in JWT_ALGORITHMS", c.Algorithm)
	}
	if c.ExpirationDays < 1 {
		return sserr.Newf(sserr.CodeValidation, "auth: JWT_EXPIRATION_DAYS must be >= 1, got %d", c.ExpirationDays)
	}
	if c.Leeway < 0 {
		return sserr.New(sserr.CodeValidation, "auth: JWT_LEEWAY must not be negative")
	}
	return nil
}

func signingMethod(alg string) *jwt.SigningMethodHMAC {
	switch alg {
	case "HS256":
		return jwt.SigningMethodHS256
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return nil
	}
}

// ---------------------------------------------------------------------------
// Claims and Issuer
// ---------------------------------------------------------------------------

// Claims is the token payload.
type Claims struct {
	UserID  int64  `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Identity returns the identity carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, IsAdmin: c.IsAdmin}
}

// Issuer signs tokens for authenticated users.
type Issuer struct {
	method *jwt.SigningMethodHMAC
	key    []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg TokenConfig) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Issuer{
		method: signingMethod(cfg.Algorithm),
		key:    []byte(cfg.Secret.Value()),
		ttl:    cfg.TTL(),
		now:    time.Now,
	}, nil
}

// Issue returns a signed token for identity that expires after the
// configured TTL. The result does not include the "Bearer " prefix.
func (i *Issuer) Issue(identity Identity) (string, error) {
	now := i.now()
	claims := Claims{
		UserID:  identity.UserID,
		Email:   identity.Email,
		IsAdmin: identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.key)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "auth: failed to sign token")
	}
	return signed, nil
}

// ---------------------------------------------------------------------------
// Validator
// ---------------------------------------------------------------------------

// TokenValidator turns an Authorization header value into an [Identity].
// Failures are [sserr.CategoryAuthentication] errors whose message is the
// client-facing reason. [*Validator] implements it in-process; the RPC
// client implements it remotely.
type TokenValidator interface {
	Validate(ctx context.Context, authorization string) (Identity, error)
}

// UserLookup reports whether a user still exists. A missing user means
// every token issued for it is revoked.
type UserLookup interface {
	UserExists(ctx context.Context, id int64) (bool, error)
}

// UserLookupFunc adapts a function to [UserLookup].
type UserLookupFunc func(ctx context.Context, id int64) (bool, error)

// UserExists calls f.
func (f UserLookupFunc) UserExists(ctx context.Context, id int64) (bool, error) {
	return f(ctx, id)
}

// Validator checks the scheme, signature, expiry and revocation status of
// bearer tokens. It is safe for concurrent use.
type Validator struct {
	key    []byte
	parser *jwt.Parser
	users  UserLookup
	tracer trace.Tracer
	logger *slog.Logger
}

var _ TokenValidator = (*Validator)(nil)

// NewValidator validates cfg and returns a Validator that checks
// revocation against users.
func NewValidator(cfg TokenConfig, users UserLookup) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if users == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "auth: validator requires a user lookup")
	}
	return &Validator{
		key: []byte(cfg.Secret.Value()),
		parser: jwt.NewParser(
			jwt.WithValidMethods(cfg.Algorithms),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
		),
		users:  users,
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}, nil
}

// WithLogger sets the logger used for rejected tokens.
func (v *Validator) WithLogger(logger *slog.Logger) *Validator {
	v.logger = logger
	return v
}

// Validate runs the checks in order and stops at the first failure:
//
//  1. the value must be exactly "<scheme> <token>"  ("Invalid JWT token")
//  2. the scheme must be "Bearer"                    ("Invalid token scheme")
//  3. signature and expiry must verify               ("Invalid authorization token, <reason>")
//  4. the user must still exist                      ("Token is revoked")
//
// Lookup failures are returned as internal errors, not as rejections.
func (v *Validator) Validate(ctx context.Context, authorization string) (identity Identity, err error) {
	ctx, span := v.tracer.Start(ctx, "auth.Validate")
	defer func() { finishSpan(span, err) }()

	scheme, token, err := splitAuthorization(authorization)
	if err != nil {
		return Identity{}, err
	}
	if scheme != BearerScheme {
		return Identity{}, sserr.Unauthenticated(sserr.CodeAuthenticationInvalid, ReasonInvalidScheme)
	}

	claims := &Claims{}
	if _, parseErr := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); parseErr != nil {
		v.logger.DebugContext(ctx, "auth: token rejected", "error", parseErr)
		return Identity{}, decodeError(token, parseErr)
	}
	span.SetAttributes(attribute.Int64("auth.user_id", claims.UserID))

	exists, lookupErr := v.users.UserExists(ctx, claims.UserID)
	if lookupErr != nil {
		if e, ok := sserr.AsError(lookupErr); ok {
			return Identity{}, e
		}
		return Identity{}, sserr.Wrap(lookupErr, sserr.CodeInternal, "auth: user lookup failed")
	}
	if !exists {
		return Identity{}, sserr.Unauthenticated(sserr.CodeAuthenticationRevoked, ReasonRevoked)
	}
	return claims.Identity(), nil
}

// splitAuthorization splits "Bearer <token>" on a single space. Any other
// arity, including a bare scheme, is rejected.
func splitAuthorization(authorization string) (scheme, token string, err error) {
	parts := strings.Split(strings.TrimSpace(authorization), " ")
	if len(parts) != 2 || parts[1] == "" {
		return "", "", sserr.Unauthenticated(sserr.CodeAuthenticationInvalid, ReasonInvalidToken)
	}
	return parts[0], parts[1], nil
}

// decodeError maps a jwt parse failure to the client-facing reason.
func decodeError(token string, err error) *sserr.Error {
	code := sserr.CodeAuthenticationInvalid
	var reason string
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		code = sserr.CodeAuthenticationExpired
		reason = "Signature has expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = "Invalid token format"
		if strings.Count(token, ".") != 2 {
			reason = "Not enough segments"
		}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		reason = "Signature verification failed"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		reason = `Token is missing the "exp" claim`
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		reason = "The token is not yet valid"
	default:
		reason = "Invalid claims"
	}
	return sserr.Unauthenticated(code, reasonDecodePrefix+reason).WithCause(err)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// FormatBearer returns "Bearer <token>".
func FormatBearer(token string) string {
	return fmt.Sprintf("%s %s", BearerScheme, token)
}

package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. The
// category prefix decides the HTTP status and the gRPC status an error is
// rendered with; the numeric suffix distinguishes conditions inside a
// category for logs and tests.
type Code string

// Categories and the HTTP status they surface as:
//
//	VAL_xxx     - request schema validation (422 Unprocessable Entity)
//	BIZ_xxx     - business rule violations (400 Bad Request)
//	AUTH_xxx    - authentication failures (403 Forbidden, never 401)
//	AUTHZ_xxx   - authorization failures (403 Forbidden)
//	NF_xxx      - missing resources (404 Not Found)
//	CONF_xxx    - contention on a locked resource (409 Conflict)
//	INT_xxx     - internal failures (500 Internal Server Error)
//	UNAVAIL_xxx - dependency unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - deadline exceeded (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 422

	// CodeValidation indicates the request body failed schema validation.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has the wrong type or format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside its allowed range.
	CodeValidationRange Code = "VAL_004"

	// Business rule errors (BIZ_xxx) - HTTP 400

	// CodeBusiness indicates a general business rule violation.
	CodeBusiness Code = "BIZ_001"

	// CodeBusinessDuplicate indicates a uniqueness rule was violated
	// (duplicate email, product already in cart).
	CodeBusinessDuplicate Code = "BIZ_002"

	// CodeBusinessCredentials indicates a login attempt was rejected.
	CodeBusinessCredentials Code = "BIZ_003"

	// CodeBusinessIntegrity indicates a referential integrity rule was
	// violated.
	CodeBusinessIntegrity Code = "BIZ_004"

	// Authentication errors (AUTH_xxx) - HTTP 403

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the bearer token has expired.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the bearer token or its scheme
	// is malformed or fails signature verification.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationRevoked indicates the token references a user that
	// no longer exists.
	CodeAuthenticationRevoked Code = "AUTH_004"

	// CodeAuthenticationMissing indicates the Authorization header is
	// absent.
	CodeAuthenticationMissing Code = "AUTH_005"

	// Authorization errors (AUTHZ_xxx) - HTTP 403

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates the identity neither owns the
	// resource nor carries the admin flag.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// Not found errors (NF_xxx) - HTTP 404

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundUser indicates the requested user was not found.
	CodeNotFoundUser Code = "NF_002"

	// CodeNotFoundResource indicates a cart, cart item or product was not
	// found.
	CodeNotFoundResource Code = "NF_003"

	// Conflict errors (CONF_xxx) - HTTP 409

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictLocked indicates an advisory lock could not be acquired
	// within the configured lock timeout.
	CodeConflictLocked Code = "CONF_002"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableOverloaded indicates the caller has been throttled.
	CodeUnavailableOverloaded Code = "UNAVAIL_003"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"

	// CodeTimeoutDependency indicates a call to a dependent service timed out.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// Category names returned by [Code.Category].
const (
	CategoryValidation     = "VAL"
	CategoryBusiness       = "BIZ"
	CategoryAuthentication = "AUTH"
	CategoryAuthorization  = "AUTHZ"
	CategoryNotFound       = "NF"
	CategoryConflict       = "CONF"
	CategoryInternal       = "INT"
	CategoryUnavailable    = "UNAVAIL"
	CategoryTimeout        = "TIMEOUT"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g. "VAL").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries exactly code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, categories ...string) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	cat := e.Code.Category()
	for _, c := range categories {
		if c == cat {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a schema validation error (VAL_xxx).
func IsValidation(err error) bool {
	return hasCategory(err, CategoryValidation)
}

// IsBusiness reports whether err is a business rule error (BIZ_xxx).
func IsBusiness(err error) bool {
	return hasCategory(err, CategoryBusiness)
}

// IsAuthentication reports whether err is an authentication error (AUTH_xxx).
func IsAuthentication(err error) bool {
	return hasCategory(err, CategoryAuthentication)
}

// IsAuthorization reports whether err is an authorization error (AUTHZ_xxx).
func IsAuthorization(err error) bool {
	return hasCategory(err, CategoryAuthorization)
}

// IsNotFound reports whether err is a not found error (NF_xxx).
func IsNotFound(err error) bool {
	return hasCategory(err, CategoryNotFound)
}

// IsConflict reports whether err is a conflict error (CONF_xxx).
func IsConflict(err error) bool {
	return hasCategory(err, CategoryConflict)
}

// IsInternal reports whether err is an internal error (INT_xxx).
func IsInternal(err error) bool {
	return hasCategory(err, CategoryInternal)
}

// IsUnavailable reports whether err is an unavailable error (UNAVAIL_xxx).
func IsUnavailable(err error) bool {
	return hasCategory(err, CategoryUnavailable)
}

// IsTimeout reports whether err is a timeout error (TIMEOUT_xxx).
func IsTimeout(err error) bool {
	return hasCategory(err, CategoryTimeout)
}

// IsRetryable reports whether retrying the operation may succeed.
// Timeouts, unavailability and lock contention are retryable.
func IsRetryable(err error) bool {
	return hasCategory(err, CategoryTimeout, CategoryUnavailable, CategoryConflict)
}

// IsClientError reports whether err maps to a 4xx status.
func IsClientError(err error) bool {
	return hasCategory(err,
		CategoryValidation, CategoryBusiness, CategoryAuthentication,
		CategoryAuthorization, CategoryNotFound, CategoryConflict)
}

// IsServerError reports whether err maps to a 5xx status.
func IsServerError(err error) bool {
	return hasCategory(err, CategoryInternal, CategoryUnavailable, CategoryTimeout)
}

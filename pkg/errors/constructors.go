package errors

import (
	"errors"
	"fmt"
)

// Messages shared by both services. They are part of the wire contract and
// asserted by clients, so they must not change.
const (
	MessageValidationFailed = "Request validation has failed"
	MessageNotFound         = "Not Found"
	MessageInternal         = "Internal Server Error"
	MessagePermissionDenied = "You do not have permission to perform this action."
)

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. A nil err yields nil so callers
// can wrap unconditionally:
//
//	return errors.Wrap(rows.Err(), errors.CodeInternalDatabase, "failed to read rows")
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and formatted message. A nil err yields nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validation creates a schema validation error carrying per-field messages.
func Validation(fields map[string][]string) *Error {
	return (&Error{Code: CodeValidation, Message: MessageValidationFailed}).WithFields(fields)
}

// FieldError creates an error of the given code with a single field message.
// The error's Message is the field message itself.
func FieldError(code Code, field, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Fields:  map[string][]string{field: {message}},
	}
}

// Business creates a business rule error for field. Use [NonFieldErrors]
// when the rule does not concern a single field.
func Business(field, message string) *Error {
	return FieldError(CodeBusiness, field, message)
}

// NotFound creates a not found error with the generic message.
func NotFound() *Error {
	return New(CodeNotFound, MessageNotFound)
}

// Unauthenticated creates an authentication error with the given reason.
// The reason is sent to the client verbatim.
func Unauthenticated(code Code, reason string) *Error {
	if code.Category() != CategoryAuthentication {
		code = CodeAuthentication
	}
	return New(code, reason)
}

// Forbidden creates an authorization error with the generic
// permission-denied message.
func Forbidden() *Error {
	return New(CodeAuthorizationDenied, MessagePermissionDenied)
}

// Conflict creates a conflict error.
func Conflict(code Code, message string) *Error {
	if code.Category() != CategoryConflict {
		code = CodeConflict
	}
	return New(code, message)
}

// Internal creates an internal error wrapping cause with the generic message.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: MessageInternal, Cause: cause}
}

// Unavailable creates a service unavailable error.
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// Timeout creates a timeout error.
func Timeout(message string) *Error {
	return New(CodeTimeout, message)
}

// FromError converts any error to an *Error. Errors already in the chain
// are returned as-is; anything else becomes an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Internal(err)
}

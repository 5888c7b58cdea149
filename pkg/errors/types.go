package errors

import (
	"fmt"
	"net/http"
	"sort"
)

// Error is a structured error with a code, a client-safe message, an
// optional cause and optional per-field messages.
//
// Errors are treated as immutable: the With* methods return copies.
type Error struct {
	// Code is the machine-readable error code (e.g. "VAL_001").
	Code Code

	// Message is the human-readable message sent to clients. It must not
	// contain internal detail; that belongs in Cause.
	Message string

	// Cause is the underlying error, if any. It is logged, never rendered.
	Cause error

	// Fields maps request field names to their messages. The key
	// [NonFieldErrors] holds messages that apply to the request as a whole.
	Fields map[string][]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, supporting errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status for the error's code category.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case CategoryValidation:
		return http.StatusUnprocessableEntity
	case CategoryBusiness:
		return http.StatusBadRequest
	case CategoryAuthentication, CategoryAuthorization:
		return http.StatusForbidden
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryConflict:
		return http.StatusConflict
	case CategoryUnavailable:
		return http.StatusServiceUnavailable
	case CategoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithField returns a copy of e with message appended to field.
func (e *Error) WithField(field, message string) *Error {
	out := e.clone(1)
	out.Fields[field] = append(out.Fields[field], message)
	return out
}

// WithFields returns a copy of e with every entry of fields merged in.
// Messages for a field already present are appended.
func (e *Error) WithFields(fields map[string][]string) *Error {
	out := e.clone(len(fields))
	for k, msgs := range fields {
		out.Fields[k] = append(out.Fields[k], msgs...)
	}
	return out
}

// WithCause returns a copy of e with its cause replaced.
func (e *Error) WithCause(cause error) *Error {
	out := e.clone(0)
	out.Cause = cause
	return out
}

func (e *Error) clone(extra int) *Error {
	fields := make(map[string][]string, len(e.Fields)+extra)
	for k, v := range e.Fields {
		fields[k] = append([]string(nil), v...)
	}
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Fields:  fields,
	}
}

// Format implements fmt.Formatter. %+v includes fields and the cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Fields) > 0 {
				keys := make([]string, 0, len(e.Fields))
				for k := range e.Fields {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				fmt.Fprint(s, ", Fields: {")
				for i, k := range keys {
					if i > 0 {
						fmt.Fprint(s, ", ")
					}
					fmt.Fprintf(s, "%s: %q", k, e.Fields[k])
				}
				fmt.Fprint(s, "}")
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// Package errors provides the typed error values shared by the customers and
// cart services. Every failure that reaches a transport boundary is an
// [*Error] carrying a [Code]; the code's category alone decides how the
// error is rendered:
//
//   - Validation (VAL): the request body does not match its schema. Field
//     messages travel in [Error.Fields]. HTTP 422.
//   - Business (BIZ): the request is well formed but breaks a rule, for
//     example a duplicate email or a product already in the cart. HTTP 400.
//   - Authentication (AUTH): missing, malformed, expired or revoked bearer
//     token. HTTP 403; this system never answers 401.
//   - Authorization (AUTHZ): the caller does not own the resource and is not
//     an admin. HTTP 403.
//   - NotFound (NF): HTTP 404.
//   - Conflict (CONF): a row lock could not be acquired in time. HTTP 409.
//   - Internal, Unavailable, Timeout: HTTP 500, 503, 504. The message shown
//     to clients is generic; the cause chain is only logged.
//
// # Usage
//
// Create a field error for a duplicate key:
//
//	err := errors.FieldError(errors.CodeBusinessDuplicate, "email",
//	    "User with this email already exists.")
//
// Wrap a driver error:
//
//	err := errors.Wrap(err, errors.CodeInternalDatabase, "failed to insert user")
//
// Inspect at the boundary:
//
//	if e, ok := errors.AsError(err); ok {
//	    status := e.HTTPStatus()
//	}
//
// Callers conventionally import the package as sserr.
package errors

// NonFieldErrors is the Fields key used for messages that are not tied to a
// single request field.
const NonFieldErrors = "non_field_errors"

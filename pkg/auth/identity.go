// Package auth implements token-based authentication and object-level
// authorization for the storefront services.
//
// The customers service issues HMAC-signed tokens at login ([Issuer]) and
// validates them against its user table ([Validator]). The cart service
// has no access to that table and validates through the customers RPC
// instead; both sides satisfy [TokenValidator], so the request [Gate] is
// the same middleware in each service.
//
// Authentication failures, including a missing header, are 403 responses
// carrying a precise reason such as "Invalid token scheme" or "Token is
// revoked". Ownership failures use the generic permission-denied message.
//
// Token revocation is modeled only as "the user no longer exists": a
// password change or admin demotion does not invalidate tokens already
// issued, which stay valid until they expire.
package auth

import "strconv"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// String returns a log-friendly form that omits the email.
func (i Identity) String() string {
	s := "user:" + strconv.FormatInt(i.UserID, 10)
	if i.IsAdmin {
		s += "(admin)"
	}
	return s
}

// Owns reports whether the identity may act on a resource owned by the
// given user id: it is the owner, or it carries the admin flag.
func (i Identity) Owns(owner int64) bool {
	return i.IsAdmin || i.UserID == owner
}

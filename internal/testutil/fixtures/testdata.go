// Package fixtures provides shared test data for the storefront test
// suites: well-known users, a token configuration, and signed tokens.
package fixtures

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/storefront/pkg/auth"
)

// Well-known accounts. Ids match across the customers and cart suites so
// a token issued for one service's fixtures is meaningful to the other.
const (
	AdminID    int64 = 1
	AdminEmail       = "admin1@email.com"

	UserID    int64 = 3
	UserEmail       = "nonadmin3@email.com"

	OtherUserID    int64 = 4
	OtherUserEmail       = "nonadmin4@email.com"

	// Password satisfies the 7 character minimum.
	Password = "correct-horse"
)

// TestSecret signs every fixture token.
const TestSecret = "fixtures-signing-secret"

// Admin is the identity of the admin fixture.
var Admin = auth.Identity{UserID: AdminID, Email: AdminEmail, IsAdmin: true}

// User is the identity of a regular user.
var User = auth.Identity{UserID: UserID, Email: UserEmail}

// OtherUser is a second regular user, for ownership tests.
var OtherUser = auth.Identity{UserID: OtherUserID, Email: OtherUserEmail}

// TokenConfig returns a valid configuration signing with [TestSecret].
func TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:         TestSecret,
		Algorithm:      "HS256",
		Algorithms:     []string{"HS256"},
		ExpirationDays: 1,
	}
}

// Bearer returns an Authorization header value for identity signed with
// [TokenConfig].
func Bearer(t testing.TB, identity auth.Identity) string {
	t.Helper()
	issuer, err := auth.NewIssuer(TokenConfig())
	require.NoError(t, err)
	token, err := issuer.Issue(identity)
	require.NoError(t, err)
	return auth.FormatBearer(token)
}

package customers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/storefront/internal/testutil"
	"github.com/StricklySoft/storefront/internal/testutil/fixtures"
	"github.com/StricklySoft/storefront/pkg/auth"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/httpx"
	"github.com/StricklySoft/storefront/pkg/models"
)

// memUsers is an in-memory [Users] with the same error contract as Store.
type memUsers struct {
	mu    sync.Mutex
	users map[int64]*models.User
	next  int64
}

var _ Users = (*memUsers)(nil)

func newMemUsers() *memUsers {
	return &memUsers{users: map[int64]*models.User{}, next: 100}
}

func (m *memUsers) put(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}

func (m *memUsers) UserExists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	return ok, nil
}

func (m *memUsers) Get(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sserr.NotFound()
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sserr.NotFound()
}

func (m *memUsers) List(_ context.Context, search string, fn func(*models.User) error) error {
	m.mu.Lock()
	var out []*models.User
	for _, u := range m.users {
		if id, err := strconv.ParseInt(search, 10, 64); err == nil {
			if u.ID != id {
				continue
			}
		} else if !strings.Contains(strings.ToLower(u.Email), strings.ToLower(search)) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, u := range out {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (m *memUsers) emailTaken(email string, except int64) bool {
	for _, u := range m.users {
		if u.Email == email && u.ID != except {
			return true
		}
	}
	return false
}

func duplicateEmail() error {
	return sserr.FieldError(sserr.CodeBusinessDuplicate, "email", "User with this email already exists.")
}

func (m *memUsers) Create(_ context.Context, nu NewUser) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTaken(nu.Email, 0) {
		return nil, duplicateEmail()
	}
	m.next++
	u := &models.User{
		ID:           m.next,
		Created:      time.Now().UTC(),
		Email:        nu.Email,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		IsAdmin:      nu.IsAdmin,
		PasswordHash: nu.PasswordHash,
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) Update(_ context.Context, id int64, p UserPatch) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sserr.NotFound()
	}
	if p.Email != nil {
		if m.emailTaken(*p.Email, id) {
			return nil, duplicateEmail()
		}
		u.Email = *p.Email
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.IsAdmin != nil {
		u.IsAdmin = *p.IsAdmin
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) ChangePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sserr.NotFound()
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return sserr.NotFound()
	}
	delete(m.users, id)
	return nil
}

// testAPI is a customers router over memUsers, seeded with the fixture
// accounts, all sharing [fixtures.Password].
type testAPI struct {
	handler http.Handler
	users   *memUsers
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	hasher, err := auth.NewPasswordHasher(4)
	require.NoError(t, err)
	hash, err := hasher.Hash(fixtures.Password)
	require.NoError(t, err)

	users := newMemUsers()
	for _, id := range []auth.Identity{fixtures.Admin, fixtures.User, fixtures.OtherUser} {
		users.put(models.User{ID: id.UserID, Email: id.Email, IsAdmin: id.IsAdmin, PasswordHash: hash})
	}

	issuer, err := auth.NewIssuer(fixtures.TokenConfig())
	require.NoError(t, err)
	validator, err := auth.NewValidator(fixtures.TokenConfig(), users)
	require.NoError(t, err)
	gate, err := auth.NewGate(validator, []string{"/api/v1/auth/login/", "/api/v1/users/create/"})
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	h := NewHandler(users, issuer, hasher, logger)
	health := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	return &testAPI{handler: h.Router(gate, health, 5*time.Second), users: users}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, identity *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.Request{Method: method, Path: path, Body: body}
	if identity != nil {
		req.Authorization = fixtures.Bearer(t, *identity)
	}
	return testutil.Do(t, a.handler, req)
}

func userPath(id int64) string {
	return fmt.Sprintf("/api/v1/users/%d/", id)
}

// ===========================================================================
// Gate Tests
// ===========================================================================

func TestRouter_MissingToken(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/users/list/", nil, nil)
	testutil.AssertError(t, rec, http.StatusForbidden, auth.ReasonMissingHeader)
}

func TestRouter_WrongScheme(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	token := strings.TrimPrefix(fixtures.Bearer(t, fixtures.User), auth.BearerScheme+" ")
	rec := testutil.Do(t, api.handler, testutil.Request{
		Method:        http.MethodGet,
		Path:          "/api/v1/users/list/",
		Authorization: "Token " + token,
	})
	testutil.AssertError(t, rec, http.StatusForbidden, auth.ReasonInvalidScheme)
}

func TestRouter_HealthIsPublic(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/nothing/", nil, &fixtures.User)
	testutil.AssertError(t, rec, http.StatusNotFound, sserr.MessageNotFound)
}

// ===========================================================================
// Login Tests
// ===========================================================================

func TestLogin_Success(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/login/",
		map[string]string{"email": fixtures.UserEmail, "password": fixtures.Password}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := testutil.DecodeData[models.LoginResult](t, rec)
	assert.Equal(t, models.UserRef{ID: fixtures.UserID, Email: fixtures.UserEmail}, result.User)
	require.True(t, strings.HasPrefix(result.Token, "Bearer "))

	// The issued token opens the protected routes.
	rec = testutil.Do(t, api.handler, testutil.Request{
		Method:        http.MethodGet,
		Path:          userPath(fixtures.UserID),
		Authorization: result.Token,
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", fixtures.UserEmail, "not-the-password"},
		{"unknown email", "nobody@email.com", "not-the-password"},
		// Length rules belong to registration; login reports any
		// mismatch the same way.
		{"short password for unknown email", "a@x.com", "short"},
		{"short password for known email", fixtures.UserEmail, "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := newTestAPI(t)

			rec := api.do(t, http.MethodPost, "/api/v1/auth/login/",
				map[string]string{"email": tt.email, "password": tt.password}, nil)
			body := testutil.AssertError(t, rec, http.StatusBadRequest, MessageBadCredentials)
			assert.Equal(t, []string{MessageBadCredentials}, body.Fields[sserr.NonFieldErrors])
		})
	}
}

func TestLogin_MissingFields(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/login/", map[string]string{}, nil)
	body := testutil.AssertError(t, rec, http.StatusUnprocessableEntity, sserr.MessageValidationFailed)
	assert.Equal(t, map[string][]string{
		"email":    {httpx.MsgRequired},
		"password": {httpx.MsgRequired},
	}, body.Fields)
}

// ===========================================================================
// Create Tests
// ===========================================================================

func TestCreateUser(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/users/create/", map[string]any{
		"email":      "new@email.com",
		"first_name": "Grace",
		"password":   "long-enough",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	user := testutil.DecodeData[map[string]any](t, rec)
	assert.Equal(t, "new@email.com", user["email"])
	assert.Equal(t, "Grace", user["first_name"])
	assert.Equal(t, "", user["last_name"])
	assert.Equal(t, false, user["is_admin"])
	assert.NotContains(t, user, "password")
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/users/create/",
		map[string]any{"email": fixtures.UserEmail, "password": "long-enough"}, nil)
	body := testutil.AssertError(t, rec, http.StatusBadRequest, "User with this email already exists.")
	assert.Equal(t, map[string][]string{"email": {"User with this email already exists."}}, body.Fields)
}

func TestCreateUser_AdminFlagRefused(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/users/create/",
		map[string]any{"email": "sneaky@email.com", "password": "long-enough", "is_admin": true}, nil)
	testutil.AssertError(t, rec, http.StatusForbidden, sserr.MessagePermissionDenied)

	_, err := api.users.GetByEmail(context.Background(), "sneaky@email.com")
	testutil.AssertErrorCode(t, err, sserr.CodeNotFound)
}

func TestCreateUser_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		body   any
		fields map[string][]string
	}{
		{
			name:   "short password",
			body:   map[string]any{"email": "a@email.com", "password": "short"},
			fields: map[string][]string{"password": {"Shorter than minimum length 7."}},
		},
		{
			name:   "bad email",
			body:   map[string]any{"email": "not-an-email", "password": "long-enough"},
			fields: map[string][]string{"email": {httpx.MsgInvalidEmail}},
		},
		{
			name:   "empty first name",
			body:   map[string]any{"email": "a@email.com", "password": "long-enough", "first_name": ""},
			fields: map[string][]string{"first_name": {"Length must be between 1 and 256."}},
		},
		{
			name:   "wrong type",
			body:   map[string]any{"email": "a@email.com", "password": "long-enough", "is_admin": "yes"},
			fields: map[string][]string{"is_admin": {httpx.MsgInvalidBool}},
		},
		{
			name:   "unknown field",
			body:   map[string]any{"email": "a@email.com", "password": "long-enough", "nickname": "ada"},
			fields: map[string][]string{"nickname": {httpx.MsgUnknownField}},
		},
		{
			name:   "not an object",
			body:   `["a"]`,
			fields: map[string][]string{httpx.SchemaField: {httpx.MsgInvalidInput}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := newTestAPI(t)

			rec := api.do(t, http.MethodPost, "/api/v1/users/create/", tt.body, nil)
			body := testutil.AssertError(t, rec, http.StatusUnprocessableEntity, sserr.MessageValidationFailed)
			assert.Equal(t, tt.fields, body.Fields)
		})
	}
}

// ===========================================================================
// Read Tests
// ===========================================================================

func TestListUsers(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/users/list/", nil, &fixtures.User)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	users := testutil.DecodeData[[]models.User](t, rec)
	require.Len(t, users, 3)
	assert.Equal(t, []int64{fixtures.AdminID, fixtures.UserID, fixtures.OtherUserID},
		[]int64{users[0].ID, users[1].ID, users[2].ID})

	rec = api.do(t, http.MethodGet, "/api/v1/users/list/?search=4", nil, &fixtures.User)
	users = testutil.DecodeData[[]models.User](t, rec)
	require.Len(t, users, 1)
	assert.Equal(t, fixtures.OtherUserEmail, users[0].Email)

	rec = api.do(t, http.MethodGet, "/api/v1/users/list/?search=nobody", nil, &fixtures.User)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestGetUser(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	// Reads are open to any authenticated caller.
	rec := api.do(t, http.MethodGet, userPath(fixtures.OtherUserID), nil, &fixtures.User)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fixtures.OtherUserEmail, testutil.DecodeData[models.User](t, rec).Email)

	rec = api.do(t, http.MethodGet, userPath(999), nil, &fixtures.User)
	testutil.AssertError(t, rec, http.StatusNotFound, sserr.MessageNotFound)

	rec = api.do(t, http.MethodGet, "/api/v1/users/abc/", nil, &fixtures.User)
	testutil.AssertError(t, rec, http.StatusNotFound, sserr.MessageNotFound)
}

// ===========================================================================
// Update Tests
// ===========================================================================

func TestUpdateUser_Permissions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		caller auth.Identity
		target int64
		body   map[string]any
		status int
	}{
		{"owner", fixtures.User, fixtures.UserID, map[string]any{"first_name": "Ada"}, http.StatusOK},
		{"other user", fixtures.User, fixtures.OtherUserID, map[string]any{"first_name": "Ada"}, http.StatusForbidden},
		{"admin on other", fixtures.Admin, fixtures.UserID, map[string]any{"first_name": "Ada"}, http.StatusOK},
		{"owner sets admin flag", fixtures.User, fixtures.UserID, map[string]any{"is_admin": true}, http.StatusForbidden},
		{"admin sets admin flag", fixtures.Admin, fixtures.UserID, map[string]any{"is_admin": true}, http.StatusOK},
		{"missing user", fixtures.User, 999, map[string]any{"first_name": "Ada"}, http.StatusNotFound},
		{"email taken", fixtures.User, fixtures.UserID, map[string]any{"email": fixtures.AdminEmail}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := newTestAPI(t)

			rec := api.do(t, http.MethodPatch, userPath(tt.target), tt.body, &tt.caller)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusForbidden {
				assert.Equal(t, sserr.MessagePermissionDenied, testutil.DecodeError(t, rec).Message)
			}
		})
	}
}

func TestUpdateUser_AppliesPatch(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPatch, userPath(fixtures.UserID),
		map[string]any{"last_name": "Lovelace"}, &fixtures.User)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := testutil.DecodeData[models.User](t, rec)
	assert.Equal(t, "Lovelace", user.LastName)
	assert.Equal(t, fixtures.UserEmail, user.Email)

	// An empty body changes nothing and returns the current user.
	rec = api.do(t, http.MethodPatch, userPath(fixtures.UserID), map[string]any{}, &fixtures.User)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lovelace", testutil.DecodeData[models.User](t, rec).LastName)
}

// ===========================================================================
// Delete Tests
// ===========================================================================

func TestDeleteUser(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodDelete, userPath(fixtures.OtherUserID), nil, &fixtures.User)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodDelete, userPath(fixtures.OtherUserID), nil, &fixtures.Admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = api.do(t, http.MethodDelete, userPath(fixtures.OtherUserID), nil, &fixtures.Admin)
	testutil.AssertError(t, rec, http.StatusNotFound, sserr.MessageNotFound)
}

// TestDeleteUser_RevokesToken verifies that a deleted user's token stops
// working at once.
func TestDeleteUser_RevokesToken(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodDelete, userPath(fixtures.UserID), nil, &fixtures.User)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/users/list/", nil, &fixtures.User)
	testutil.AssertError(t, rec, http.StatusForbidden, auth.ReasonRevoked)
}

// ===========================================================================
// Change Password Tests
// ===========================================================================

func TestChangePassword(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	path := userPath(fixtures.UserID) + "change-password/"

	rec := api.do(t, http.MethodPatch, path,
		map[string]string{"new_password": "new-password", "confirm_new_password": "other-password"}, &fixtures.User)
	body := testutil.AssertError(t, rec, http.StatusBadRequest, MessagePasswordMismatch)
	assert.Equal(t, []string{MessagePasswordMismatch}, body.Fields["confirm_new_password"])

	rec = api.do(t, http.MethodPatch, path,
		map[string]string{"new_password": "new-password", "confirm_new_password": "new-password"}, &fixtures.OtherUser)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPatch, path,
		map[string]string{"new_password": "new-password", "confirm_new_password": "new-password"}, &fixtures.User)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/v1/auth/login/",
		map[string]string{"email": fixtures.UserEmail, "password": "new-password"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/v1/auth/login/",
		map[string]string{"email": fixtures.UserEmail, "password": fixtures.Password}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangePassword_TooLong(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	long := strings.Repeat("p", auth.MaxPasswordBytes+1)
	rec := api.do(t, http.MethodPatch, userPath(fixtures.UserID)+"change-password/",
		map[string]string{"new_password": long, "confirm_new_password": long}, &fixtures.User)
	body := testutil.AssertError(t, rec, http.StatusUnprocessableEntity, sserr.MessageValidationFailed)
	assert.Contains(t, body.Fields, "new_password")
}

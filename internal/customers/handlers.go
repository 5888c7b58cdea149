package customers

import (
	"log/slog"
	"net/http"

	"github.com/StricklySoft/storefront/pkg/auth"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/httpx"
	"github.com/StricklySoft/storefront/pkg/models"
)

// Client-facing messages.
const (
	MessageBadCredentials   = "Unable to log in with provided credentials."
	MessagePasswordMismatch = "The two password fields didn't match."
)

// Path parameter holding the user id.
const paramUserID = "user_id"

type loginRequest struct {
	Email    *string `json:"email" validate:"required,email"`
	Password *string `json:"password" validate:"required"`
}

type createUserRequest struct {
	Email     *string `json:"email" validate:"required,email,name"`
	FirstName *string `json:"first_name" validate:"omitempty,name"`
	LastName  *string `json:"last_name" validate:"omitempty,name"`
	Password  *string `json:"password" validate:"required,password"`
	IsAdmin   *bool   `json:"is_admin"`
}

type updateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email,name"`
	FirstName *string `json:"first_name" validate:"omitempty,name"`
	LastName  *string `json:"last_name" validate:"omitempty,name"`
	IsAdmin   *bool   `json:"is_admin"`
}

type changePasswordRequest struct {
	NewPassword        *string `json:"new_password" validate:"required,password"`
	ConfirmNewPassword *string `json:"confirm_new_password" validate:"required,password"`
}

// NewDecoder returns the request decoder with the customers field rules.
func NewDecoder() *httpx.Decoder {
	return httpx.NewDecoder().
		RegisterAlias("name", "min=1,max=256", "Length must be between 1 and 256.").
		RegisterAlias("password", "min=7", "Shorter than minimum length 7.")
}

// Handler serves the customers HTTP API.
type Handler struct {
	users   Users
	issuer  *auth.Issuer
	hasher  *auth.PasswordHasher
	decoder *httpx.Decoder
	logger  *slog.Logger
}

// NewHandler returns a Handler. A nil logger selects slog.Default().
func NewHandler(users Users, issuer *auth.Issuer, hasher *auth.PasswordHasher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		users:   users,
		issuer:  issuer,
		hasher:  hasher,
		decoder: NewDecoder(),
		logger:  logger,
	}
}

// Login checks the credentials and returns a bearer token. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), *req.Email)
	if err != nil && !sserr.IsNotFound(err) {
		httpx.WriteError(w, r, err)
		return
	}
	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if !h.hasher.Verify(hash, *req.Password) {
		httpx.WriteError(w, r, sserr.FieldError(sserr.CodeBusinessCredentials, sserr.NonFieldErrors, MessageBadCredentials))
		return
	}

	token, err := h.issuer.Issue(auth.Identity{UserID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "user logged in", "user_id", user.ID)
	httpx.WriteData(w, http.StatusOK, models.LoginResult{
		Token: auth.FormatBearer(token),
		User:  user.Ref(),
	})
}

// CreateUser registers a new account. The route is public, so it cannot
// grant the admin flag.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if req.IsAdmin != nil && *req.IsAdmin {
		httpx.WriteError(w, r, sserr.Forbidden())
		return
	}

	hash, err := h.hashPassword(*req.Password, "password")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	user, err := h.users.Create(r.Context(), NewUser{
		Email:        *req.Email,
		FirstName:    deref(req.FirstName),
		LastName:     deref(req.LastName),
		PasswordHash: hash,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "user created", "user_id", user.ID)
	httpx.WriteData(w, http.StatusCreated, user)
}

// ListUsers streams users matching the optional search query parameter.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	httpx.StreamData(w, r, func(emit httpx.EmitFunc) error {
		return h.users.List(r.Context(), search, func(u *models.User) error {
			return emit(u)
		})
	})
}

// GetUser returns one user. Any authenticated caller may read any user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.OwnerFromContext(r.Context())
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, user)
}

// UpdateUser applies a partial update. Only admins may change the admin
// flag.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.OwnerFromContext(r.Context())
	var req updateUserRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if req.IsAdmin != nil && !auth.MustIdentityFromContext(r.Context()).IsAdmin {
		httpx.WriteError(w, r, sserr.Forbidden())
		return
	}

	patch := UserPatch{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsAdmin:   req.IsAdmin,
	}
	var (
		user *models.User
		err  error
	)
	if patch.Empty() {
		user, err = h.users.Get(r.Context(), id)
	} else {
		user, err = h.users.Update(r.Context(), id, patch)
	}
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, user)
}

// DeleteUser removes a user, which also revokes the user's tokens.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.OwnerFromContext(r.Context())
	if err := h.users.Delete(r.Context(), id); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "user deleted",
		"user_id", id,
		"by", auth.MustIdentityFromContext(r.Context()).String(),
	)
	httpx.NoContent(w)
}

// ChangePassword replaces a user's password. Tokens already issued stay
// valid.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.OwnerFromContext(r.Context())
	var req changePasswordRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if *req.NewPassword != *req.ConfirmNewPassword {
		httpx.WriteError(w, r, sserr.Business("confirm_new_password", MessagePasswordMismatch))
		return
	}

	hash, err := h.hashPassword(*req.NewPassword, "new_password")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.users.ChangePassword(r.Context(), id, hash); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

// hashPassword hashes plain, reporting a password bcrypt cannot take as a
// validation error on field.
func (h *Handler) hashPassword(plain, field string) (string, error) {
	hash, err := h.hasher.Hash(plain)
	if sserr.HasCode(err, sserr.CodeValidationRange) {
		e, _ := sserr.AsError(err)
		return "", sserr.Validation(map[string][]string{field: {e.Message}})
	}
	return hash, err
}

// userOwner resolves the user addressed by the path as its own owner,
// answering 404 for unknown ids.
func (h *Handler) userOwner(r *http.Request) (int64, error) {
	id, err := httpx.PathInt64(r, paramUserID)
	if err != nil {
		return 0, err
	}
	exists, err := h.users.UserExists(r.Context(), id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, sserr.NotFound()
	}
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

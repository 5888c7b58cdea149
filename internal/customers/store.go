package customers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/storefront/pkg/auth"
	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/models"
)

const userColumns = "id, created, email, first_name, last_name, is_admin, password"

const (
	sqlUserExists       = "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)"
	sqlGetUser          = "SELECT " + userColumns + " FROM users WHERE id = $1"
	sqlGetUserByEmail   = "SELECT " + userColumns + " FROM users WHERE email = $1"
	sqlListUsers        = "SELECT " + userColumns + " FROM users ORDER BY id"
	sqlListUsersByID    = "SELECT " + userColumns + " FROM users WHERE id = $1 ORDER BY id"
	sqlListUsersByEmail = "SELECT " + userColumns + " FROM users WHERE email ILIKE $1 ORDER BY id"

	sqlInsertUser = `INSERT INTO users (email, first_name, last_name, password, is_admin)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

	sqlUpdateUser = `UPDATE users SET
	email = COALESCE($2, email),
	first_name = COALESCE($3, first_name),
	last_name = COALESCE($4, last_name),
	is_admin = COALESCE($5, is_admin)
WHERE id = $1
RETURNING ` + userColumns

	sqlUpdatePassword = "UPDATE users SET password = $2 WHERE id = $1"
	sqlDeleteUser     = "DELETE FROM users WHERE id = $1"
)

// NewUser holds the columns of a user to insert. PasswordHash is already
// hashed.
type NewUser struct {
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsAdmin      bool
}

// UserPatch holds a partial update. Nil fields are left unchanged.
type UserPatch struct {
	Email     *string
	FirstName *string
	LastName  *string
	IsAdmin   *bool
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Email == nil && p.FirstName == nil && p.LastName == nil && p.IsAdmin == nil
}

// Users is the persistence the HTTP handlers and the token validator need.
type Users interface {
	auth.UserLookup
	Get(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, search string, fn func(*models.User) error) error
	Create(ctx context.Context, user NewUser) (*models.User, error)
	Update(ctx context.Context, id int64, patch UserPatch) (*models.User, error)
	ChangePassword(ctx context.Context, id int64, passwordHash string) error
	Delete(ctx context.Context, id int64) error
}

// Store is the PostgreSQL implementation of [Users].
//
// Every mutation of an existing user runs under the transaction-scoped
// advisory lock keyed by the user id, so concurrent writers to one user
// are serialized while different users never contend. Uniqueness is
// enforced by the database and reported per field.
type Store struct {
	db *postgres.Client
}

var _ Users = (*Store)(nil)

// NewStore returns a Store backed by db.
func NewStore(db *postgres.Client) *Store {
	return &Store{db: db}
}

// UserExists reports whether a user with id exists. It is the token
// revocation check.
func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, sqlUserExists, id).Scan(&exists); err != nil {
		return false, postgres.WrapError(err, "customers: failed to check user")
	}
	return exists, nil
}

// Get returns the user with id, or a not-found error.
func (s *Store) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.getOne(ctx, sqlGetUser, id)
}

// GetByEmail returns the user with the exact email, or a not-found error.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getOne(ctx, sqlGetUserByEmail, email)
}

func (s *Store) getOne(ctx context.Context, sql string, arg any) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx, sql, arg))
	if postgres.IsNoRows(err) {
		return nil, sserr.NotFound()
	}
	if err != nil {
		return nil, postgres.WrapError(err, "customers: failed to load user")
	}
	return user, nil
}

// List calls fn for every user matching search, ordered by id. An integer
// search matches the id exactly; anything else matches emails containing
// it, case-insensitively. An empty search lists everyone. Rows are handed
// to fn as they arrive and never collected.
func (s *Store) List(ctx context.Context, search string, fn func(*models.User) error) error {
	sql, args := sqlListUsers, []any(nil)
	if search != "" {
		if id, err := strconv.ParseInt(search, 10, 64); err == nil {
			sql, args = sqlListUsersByID, []any{id}
		} else {
			sql, args = sqlListUsersByEmail, []any{postgres.ContainsPattern(search)}
		}
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return postgres.WrapError(err, "customers: failed to read user")
		}
		if err := fn(user); err != nil {
			return err
		}
	}
	return postgres.WrapError(rows.Err(), "customers: failed to list users")
}

// Create inserts user. A taken email is a [sserr.CodeBusinessDuplicate]
// error on "email".
func (s *Store) Create(ctx context.Context, user NewUser) (*models.User, error) {
	var created *models.User
	err := s.db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		created, err = scanUser(tx.QueryRow(ctx, sqlInsertUser,
			user.Email, user.FirstName, user.LastName, user.PasswordHash, user.IsAdmin))
		return uniqueFieldError(err)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update applies patch to the user with id under the user's lock and
// returns the updated user.
func (s *Store) Update(ctx context.Context, id int64, patch UserPatch) (*models.User, error) {
	var updated *models.User
	err := s.db.WithAdvisoryLock(ctx, id, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		updated, err = scanUser(tx.QueryRow(ctx, sqlUpdateUser,
			id, patch.Email, patch.FirstName, patch.LastName, patch.IsAdmin))
		if postgres.IsNoRows(err) {
			return sserr.NotFound()
		}
		return uniqueFieldError(err)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ChangePassword stores a new password hash for the user with id under
// the user's lock.
func (s *Store) ChangePassword(ctx context.Context, id int64, passwordHash string) error {
	return s.db.WithAdvisoryLock(ctx, id, func(ctx context.Context, tx pgx.Tx) error {
		return execOne(ctx, tx, sqlUpdatePassword, id, passwordHash)
	})
}

// Delete removes the user with id under the user's lock. Tokens issued to
// the user are revoked from then on.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.db.WithAdvisoryLock(ctx, id, func(ctx context.Context, tx pgx.Tx) error {
		return execOne(ctx, tx, sqlDeleteUser, id)
	})
}

// execOne runs a statement that must affect exactly one row.
func execOne(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sserr.NotFound()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Created, &u.Email, &u.FirstName, &u.LastName, &u.IsAdmin, &u.PasswordHash); err != nil {
		return nil, err
	}
	return &u, nil
}

// uniqueFieldError turns a unique violation into a business error on the
// constrained column. Other errors are returned unchanged.
func uniqueFieldError(err error) error {
	constraint, ok := postgres.UniqueViolation(err)
	if !ok {
		return err
	}
	field := postgres.ConstraintField(constraint)
	return sserr.FieldError(sserr.CodeBusinessDuplicate, field,
		fmt.Sprintf("User with this %s already exists.", field)).WithCause(err)
}

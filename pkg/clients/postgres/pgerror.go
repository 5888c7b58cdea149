package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// SQLSTATE codes the stores react to.
const (
	SQLStateUniqueViolation     = "23505"
	SQLStateForeignKeyViolation = "23503"
	SQLStateCheckViolation      = "23514"
	SQLStateLockNotAvailable    = "55P03"
	SQLStateQueryCanceled       = "57014"
)

// integrityClass is the SQLSTATE class for integrity constraint violations.
const integrityClass = "23"

// MessageLocked is the client-facing message for lock timeouts.
const MessageLocked = "The resource is being modified by another request. Please retry."

// wrapError classifies a driver error:
//   - context cancellation or deadline, query_canceled: CodeTimeoutDatabase
//   - lock_not_available: CodeConflictLocked
//   - anything else: CodeInternalDatabase
//
// The original error stays in the chain so [UniqueViolation] and friends
// still work on the result.
func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SQLStateLockNotAvailable:
			return sserr.Wrap(err, sserr.CodeConflictLocked, MessageLocked)
		case SQLStateQueryCanceled:
			return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
		}
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}

// WrapError classifies err like [Client.Exec] does. Stores use it for
// errors that surface outside the client, such as from Row.Scan or
// Rows.Err. It returns nil for a nil err.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return wrapError(err, message)
}

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// UniqueViolation reports whether err is a unique_violation and returns
// the violated constraint's name.
func UniqueViolation(err error) (constraint string, ok bool) {
	if pgErr, found := pgError(err); found && pgErr.Code == SQLStateUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// ForeignKeyViolation reports whether err is a foreign_key_violation and
// returns the violated constraint's name.
func ForeignKeyViolation(err error) (constraint string, ok bool) {
	if pgErr, found := pgError(err); found && pgErr.Code == SQLStateForeignKeyViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// IntegrityViolation reports whether err belongs to SQLSTATE class 23.
func IntegrityViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && strings.HasPrefix(pgErr.Code, integrityClass)
}

// ConstraintField returns the column part of a constraint named with the
// project convention, i.e. the segment after the last "__":
//
//	uq__users__email                  -> email
//	uq__cartitems__cart_id_product_id -> cart_id_product_id
func ConstraintField(constraint string) string {
	if i := strings.LastIndex(constraint, "__"); i >= 0 {
		return constraint[i+2:]
	}
	return constraint
}

// IsNoRows reports whether err is, or wraps, pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// TxFunc is the body of a transaction. The context passed in carries the
// transaction span.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

const (
	sqlAdvisoryXactLock = "SELECT pg_advisory_xact_lock($1)"
	sqlSetLockTimeout   = "SELECT set_config('lock_timeout', $1, true)"
)

// rollbackTimeout bounds the rollback issued after a failed body. Rollback
// runs on a context detached from the caller's cancellation so that a
// disconnected client still releases its locks promptly.
const rollbackTimeout = 5 * time.Second

// InTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back otherwise. Errors already typed by fn are returned unchanged;
// driver errors are classified with the same rules as [Client.Exec].
func (c *Client) InTx(ctx context.Context, fn TxFunc) (err error) {
	ctx, span := c.startSpan(ctx, "Tx", "BEGIN")
	defer func() { finishSpan(span, err) }()

	tx, beginErr := c.pool.Begin(ctx)
	if beginErr != nil {
		return wrapError(beginErr, "postgres: begin transaction failed")
	}

	if fnErr := fn(ctx, tx); fnErr != nil {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		_ = tx.Rollback(rbCtx)
		if e, ok := sserr.AsError(fnErr); ok {
			return e
		}
		return wrapError(fnErr, "postgres: transaction failed")
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return wrapError(commitErr, "postgres: commit failed")
	}
	return nil
}

// WithAdvisoryLock runs fn in a transaction that first takes
// pg_advisory_xact_lock(key). Concurrent callers with the same key are
// serialized until the holder commits or rolls back; different keys do not
// contend. When [Config.LockTimeout] is positive the wait is bounded and
// expiry surfaces as [sserr.CodeConflictLocked].
func (c *Client) WithAdvisoryLock(ctx context.Context, key int64, fn TxFunc) error {
	return c.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := c.LockXact(ctx, tx, key); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

// LockXact takes the transaction-scoped advisory lock for key on tx.
func (c *Client) LockXact(ctx context.Context, tx pgx.Tx, key int64) error {
	ctx, span := c.startSpan(ctx, "AdvisoryLock", sqlAdvisoryXactLock)
	span.SetAttributes(attribute.Int64("db.lock.key", key))

	if timeout := c.config.LockTimeout; timeout > 0 {
		if _, err := tx.Exec(ctx, sqlSetLockTimeout, lockTimeoutSetting(timeout)); err != nil {
			finishSpan(span, err)
			return wrapError(err, "postgres: failed to set lock timeout")
		}
	}

	_, err := tx.Exec(ctx, sqlAdvisoryXactLock, key)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "postgres: failed to acquire advisory lock")
	}
	return nil
}

// lockTimeoutSetting renders d as a PostgreSQL lock_timeout value in
// milliseconds, rounding sub-millisecond values up to 1ms.
func lockTimeoutSetting(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10) + "ms"
}

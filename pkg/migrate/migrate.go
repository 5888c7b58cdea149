// Package migrate applies the versioned SQL migrations embedded in each
// service. It wraps golang-migrate with the pgx/v5 database driver and an
// io/fs source, so the binaries carry their schema with them:
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	m, err := migrate.New(cfg.Database, migrations, "migrations", "customers_schema_migrations", logger)
//	err = m.Up()
//
// Migration files follow golang-migrate naming:
// 000001_create_users.up.sql / 000001_create_users.down.sql.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// Migrator runs migrations for one service schema.
type Migrator struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// New opens a dedicated connection described by cfg and prepares the
// migrations found in dir of source. table names the version table, which
// lets services share a database without sharing migration history.
func New(cfg postgres.Config, source fs.FS, dir, table string, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src, err := iofs.New(source, dir)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration, "migrate: failed to open migrations in %q", dir)
	}

	db, err := sql.Open("pgx", cfg.ConnectionString())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "migrate: failed to open database")
	}

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{MigrationsTable: table})
	if err != nil {
		_ = db.Close()
		return nil, sserr.Wrapf(err, sserr.CodeInternalDatabase, "migrate: failed to connect to %s", cfg.Info())
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = db.Close()
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "migrate: failed to create migrate instance")
	}
	m.Log = &logAdapter{logger: logger}

	return &Migrator{m: m, logger: logger}, nil
}

// Up applies every pending migration. Having nothing to apply is not an
// error.
func (m *Migrator) Up() error {
	return m.run("up", m.m.Up)
}

// Down reverts every applied migration.
func (m *Migrator) Down() error {
	return m.run("down", m.m.Down)
}

// Steps applies n migrations forward, or reverts -n when n is negative.
func (m *Migrator) Steps(n int) error {
	return m.run(fmt.Sprintf("steps %d", n), func() error { return m.m.Steps(n) })
}

// Version returns the current schema version. ok is false when no
// migration has been applied. A dirty schema is reported as an error.
func (m *Migrator) Version() (version uint, ok bool, err error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, sserr.Wrap(err, sserr.CodeInternalDatabase, "migrate: failed to read version")
	}
	if dirty {
		return version, true, sserr.Newf(sserr.CodeInternalDatabase,
			"migrate: schema is dirty at version %d; fix it manually and force the version", version)
	}
	return version, true, nil
}

// Close releases the source and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Migrator) run(op string, fn func() error) error {
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("migrate: no change", "op", op)
		return nil
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalDatabase, "migrate: %s failed", op)
	}
	version, _, _ := m.Version()
	m.logger.Info("migrate: done", "op", op, "version", version)
	return nil
}

// logAdapter routes golang-migrate's printf-style log through slog.
type logAdapter struct {
	logger *slog.Logger
}

func (l *logAdapter) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l *logAdapter) Verbose() bool {
	return false
}

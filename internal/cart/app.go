package cart

import (
	"context"
	"embed"
	"log/slog"
	"net/http"
	"time"

	"github.com/StricklySoft/storefront/pkg/auth"
	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	"github.com/StricklySoft/storefront/pkg/lifecycle"
	"github.com/StricklySoft/storefront/pkg/migrate"
	"github.com/StricklySoft/storefront/pkg/rpc"
)

// MigrationsTable records the applied cart schema version.
const MigrationsTable = "cart_schema_migrations"

//go:embed migrations/*.sql
var migrations embed.FS

// NewMigrator returns a migrator for the cart schema.
func NewMigrator(cfg postgres.Config, logger *slog.Logger) (*migrate.Migrator, error) {
	return migrate.New(cfg, migrations, "migrations", MigrationsTable, logger)
}

// App is an assembled cart process: the HTTP API, its database pool, and
// the UserAuth client that validates every protected request.
type App struct {
	Service *lifecycle.Service

	db     *postgres.Client
	tokens *rpc.Client
}

// New connects to the dependencies and wires the service. The returned
// App is not started; call Service.Run.
func New(ctx context.Context, cfg Config, version string, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	creds, err := rpc.LoadClientCredentials(cfg.RPC.TLS, cfg.RPC.ServerName)
	if err != nil {
		return nil, err
	}

	app := &App{}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	app.tokens, err = rpc.Dial(cfg.RPC, creds, logger)
	if err != nil {
		return nil, err
	}
	gate, err := auth.NewGate(app.tokens, cfg.WhiteList)
	if err != nil {
		return nil, err
	}
	gate.WithLogger(logger)

	app.db, err = postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}

	handler := NewHandler(NewStore(app.db), logger)
	httpServer := &http.Server{
		Addr:              cfg.Address(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	app.Service, err = lifecycle.NewBuilder(ServiceName, version).
		WithLogger(logger).
		WithShutdownTimeout(cfg.ShutdownTimeout).
		OnStateChange(func(old, new lifecycle.State) {
			logger.Info("service state changed", "from", old.String(), "to", new.String())
		}).
		WithComponent(lifecycle.Component{
			Name:  "postgres",
			Stop:  func(context.Context) error { app.db.Close(); return nil },
			Check: app.db.Health,
		}).
		WithComponent(lifecycle.Component{
			Name:  "customers-rpc",
			Stop:  func(context.Context) error { return app.tokens.Close() },
			Check: app.tokens.Health,
		}).
		WithHTTPServer("http", httpServer).
		Build()
	if err != nil {
		return nil, err
	}
	httpServer.Handler = handler.Router(gate, app.Service.HealthHandler(), cfg.RequestTimeout)

	return app, nil
}

func (a *App) close() {
	if a.tokens != nil {
		_ = a.tokens.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

package customers

import (
	"context"
	"embed"
	"log/slog"
	"net/http"
	"time"

	"github.com/StricklySoft/storefront/pkg/auth"
	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	"github.com/StricklySoft/storefront/pkg/clients/redis"
	"github.com/StricklySoft/storefront/pkg/lifecycle"
	"github.com/StricklySoft/storefront/pkg/migrate"
	"github.com/StricklySoft/storefront/pkg/models"
	"github.com/StricklySoft/storefront/pkg/rpc"
)

// MigrationsTable records the applied customers schema version.
const MigrationsTable = "customers_schema_migrations"

// rateLimitPrefix namespaces the ValidateToken throttle counters.
const rateLimitPrefix = "customers:validate-token"

//go:embed migrations/*.sql
var migrations embed.FS

// NewMigrator returns a migrator for the customers schema.
func NewMigrator(cfg postgres.Config, logger *slog.Logger) (*migrate.Migrator, error) {
	return migrate.New(cfg, migrations, "migrations", MigrationsTable, logger)
}

// App is an assembled customers process: the HTTP API, the UserAuth RPC
// server, and their shared database pool and token validator.
type App struct {
	Service *lifecycle.Service

	db    *postgres.Client
	redis *redis.Client
}

// New connects to the dependencies and wires the service. The returned
// App is not started; call Service.Run.
func New(ctx context.Context, cfg Config, version string, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Token.UsesDevelopmentSecret() {
		logger.Warn("JWT_SECRET is not set, using the development secret")
	}

	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	issuer, err := auth.NewIssuer(cfg.Token)
	if err != nil {
		return nil, err
	}
	creds, err := rpc.LoadServerCredentials(cfg.RPC.TLS)
	if err != nil {
		return nil, err
	}

	app := &App{}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	app.db, err = postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	store := NewStore(app.db)

	validator, err := auth.NewValidator(cfg.Token, store)
	if err != nil {
		return nil, err
	}
	validator.WithLogger(logger)

	gate, err := auth.NewGate(validator, cfg.WhiteList)
	if err != nil {
		return nil, err
	}
	gate.WithLogger(logger)

	authServer := rpc.NewAuthServer(validator, logger)
	if cfg.Redis.Enabled() {
		app.redis, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		if cfg.RPC.RateLimit > 0 {
			authServer.WithRateLimit(redis.NewLimiter(app.redis, rateLimitPrefix), cfg.RPC.RateLimit, cfg.RPC.RateWindow)
		}
	}
	grpcServer := rpc.NewServer(creds, logger)
	rpc.RegisterUserAuthServer(grpcServer, authServer)

	handler := NewHandler(store, issuer, hasher, logger)
	httpServer := &http.Server{
		Addr:              cfg.Address(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	builder := lifecycle.NewBuilder(ServiceName, version).
		WithLogger(logger).
		WithShutdownTimeout(cfg.ShutdownTimeout).
		OnStateChange(func(old, new lifecycle.State) {
			logger.Info("service state changed", "from", old.String(), "to", new.String())
		}).
		WithComponent(lifecycle.Component{
			Name:  "postgres",
			Stop:  func(context.Context) error { app.db.Close(); return nil },
			Check: app.db.Health,
		})
	if app.redis != nil {
		builder.WithComponent(lifecycle.Component{
			Name:  "redis",
			Stop:  func(context.Context) error { return app.redis.Close() },
			Check: app.redis.Health,
		})
	}
	app.Service, err = builder.
		WithServer("grpc", cfg.RPC.Address(), rpc.Serve(grpcServer), rpc.GracefulStop(grpcServer)).
		WithHTTPServer("http", httpServer).
		Build()
	if err != nil {
		return nil, err
	}
	httpServer.Handler = handler.Router(gate, app.Service.HealthHandler(), cfg.RequestTimeout)

	return app, nil
}

func (a *App) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// AdminUser describes the account created by [CreateAdmin].
type AdminUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// CreateAdmin inserts an administrator. It is the only way to create one:
// the public registration route refuses the admin flag.
func CreateAdmin(ctx context.Context, cfg Config, admin AdminUser) (*models.User, error) {
	req := createUserRequest{
		Email:     &admin.Email,
		FirstName: optional(admin.FirstName),
		LastName:  optional(admin.LastName),
		Password:  &admin.Password,
	}
	if err := NewDecoder().Struct(&req); err != nil {
		return nil, err
	}

	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(admin.Password)
	if err != nil {
		return nil, err
	}

	db, err := postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return NewStore(db).Create(ctx, NewUser{
		Email:        admin.Email,
		FirstName:    admin.FirstName,
		LastName:     admin.LastName,
		PasswordHash: hash,
		IsAdmin:      true,
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

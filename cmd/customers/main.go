// Command customers runs the customers identity service: the users HTTP
// API and the UserAuth RPC server that validates tokens for other
// services.
//
// Usage:
//
//	customers [--config file] [serve]
//	customers [--config file] migrate up|down|version
//	customers [--config file] create-admin --email a@b.c --password secret [--first-name n] [--last-name n]
//
// Settings come from the optional file and are overridden by environment
// variables (SERVICE_PORT, DB_HOST, JWT_SECRET, ...).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/StricklySoft/storefront/internal/cli"
	"github.com/StricklySoft/storefront/internal/customers"
	"github.com/StricklySoft/storefront/pkg/config"
)

const commandCreateAdmin = "create-admin"

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil && cli.ExitCode(err) != 0 {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}

func run(args []string, stdout, stderr io.Writer) error {
	inv, err := cli.Parse(customers.ServiceName, args, stderr)
	if err != nil {
		return err
	}

	var cfg customers.Config
	if err := config.New().WithFile(inv.ConfigPath).Load(&cfg); err != nil {
		return err
	}
	logger := cli.NewLogger(stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch inv.Command {
	case cli.CommandServe:
		return serve(ctx, cfg, logger)
	case cli.CommandMigrate:
		migrator, err := customers.NewMigrator(cfg.Postgres, logger)
		if err != nil {
			return err
		}
		defer migrator.Close()
		return cli.Migrate(migrator, inv.Args, stdout)
	case commandCreateAdmin:
		return createAdmin(ctx, cfg, inv.Args, stdout, stderr)
	default:
		return cli.UnknownCommand(inv.Command)
	}
}

func serve(ctx context.Context, cfg customers.Config, logger *slog.Logger) error {
	app, err := customers.New(ctx, cfg, cli.Version, logger)
	if err != nil {
		return err
	}
	logger.Info("starting customers service",
		"version", cli.Version,
		"http_addr", cfg.Address(),
		"rpc_addr", cfg.RPC.Address(),
	)
	return app.Service.Run(ctx)
}

func createAdmin(ctx context.Context, cfg customers.Config, args []string, stdout, stderr io.Writer) error {
	var admin customers.AdminUser
	fs := pflag.NewFlagSet(commandCreateAdmin, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&admin.Email, "email", "", "administrator email (required)")
	fs.StringVar(&admin.Password, "password", "", "administrator password (required)")
	fs.StringVar(&admin.FirstName, "first-name", "", "first name")
	fs.StringVar(&admin.LastName, "last-name", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := customers.CreateAdmin(ctx, cfg, admin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "created administrator %d <%s>\n", user.ID, user.Email)
	return err
}

// Command cart runs the cart service. Every protected request is
// authorized by asking the customers service to validate the caller's
// token over mutual TLS.
//
// Usage:
//
//	cart [--config file] [serve]
//	cart [--config file] migrate up|down|version
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/StricklySoft/storefront/internal/cart"
	"github.com/StricklySoft/storefront/internal/cli"
	"github.com/StricklySoft/storefront/pkg/config"
)

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil && cli.ExitCode(err) != 0 {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}

func run(args []string, stdout, stderr io.Writer) error {
	inv, err := cli.Parse(cart.ServiceName, args, stderr)
	if err != nil {
		return err
	}

	var cfg cart.Config
	if err := config.New().WithFile(inv.ConfigPath).Load(&cfg); err != nil {
		return err
	}
	logger := cli.NewLogger(stdout, cfg.LogLevel)

	switch inv.Command {
	case cli.CommandServe:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	case cli.CommandMigrate:
		migrator, err := cart.NewMigrator(cfg.Postgres, logger)
		if err != nil {
			return err
		}
		defer migrator.Close()
		return cli.Migrate(migrator, inv.Args, stdout)
	default:
		return cli.UnknownCommand(inv.Command)
	}
}

func serve(ctx context.Context, cfg cart.Config, logger *slog.Logger) error {
	app, err := cart.New(ctx, cfg, cli.Version, logger)
	if err != nil {
		return err
	}
	logger.Info("starting cart service",
		"version", cli.Version,
		"http_addr", cfg.Address(),
		"customers_rpc", cfg.RPC.Target(),
	)
	return app.Service.Run(ctx)
}

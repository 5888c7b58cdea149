// Package cli holds the command-line plumbing shared by the customers and
// cart binaries: global flag parsing, logger construction, and the
// migrate subcommand.
//
//	customers [--config file] [serve]
//	customers [--config file] migrate up|down|version
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// Version is stamped at build time:
//
//	go build -ldflags "-X github.com/StricklySoft/storefront/internal/cli.Version=1.4.0"
var Version = "dev"

// Command names.
const (
	CommandServe   = "serve"
	CommandMigrate = "migrate"
)

// ErrHelp is returned by [Parse] when --help was requested and usage has
// been printed.
var ErrHelp = pflag.ErrHelp

// Invocation is a parsed command line.
type Invocation struct {
	ConfigPath string
	Command    string
	// Args holds everything after the command name.
	Args []string
}

// Parse reads the global flags from args (without the program name). Flag
// parsing stops at the first positional argument, which names the
// command; the command defaults to serve.
func Parse(program string, args []string, usage io.Writer) (Invocation, error) {
	var inv Invocation
	fs := pflag.NewFlagSet(program, pflag.ContinueOnError)
	fs.SetOutput(usage)
	fs.SetInterspersed(false)
	fs.StringVar(&inv.ConfigPath, "config", "", "YAML or JSON configuration file; environment variables override it")
	fs.Usage = func() {
		fmt.Fprintf(usage, "Usage: %s [--config file] [command] [args]\n\nFlags:\n", program)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Invocation{}, err
	}

	inv.Command = CommandServe
	if rest := fs.Args(); len(rest) > 0 {
		inv.Command, inv.Args = rest[0], rest[1:]
	}
	return inv, nil
}

// NewLogger returns the JSON logger every binary writes to w, and installs
// it as the slog default.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// Migrator is the part of migrate.Migrator the migrate command drives.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, ok bool, err error)
}

// Migrate runs "migrate up|down|version" against m. The version is
// printed to out.
func Migrate(m Migrator, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usageError("migrate expects exactly one of up, down, version")
	}
	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		version, ok, err := m.Version()
		if err != nil {
			return err
		}
		if !ok {
			_, err = fmt.Fprintln(out, "no migration applied")
			return err
		}
		_, err = fmt.Fprintln(out, version)
		return err
	default:
		return usageError(fmt.Sprintf("unknown migrate action %q", args[0]))
	}
}

func usageError(message string) error {
	return sserr.New(sserr.CodeValidation, message)
}

// UnknownCommand reports an unsupported command name.
func UnknownCommand(name string) error {
	return usageError(fmt.Sprintf("unknown command %q", name))
}

// ExitCode maps a run error to a process exit status: 0 for nil and help,
// 2 for usage errors, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, ErrHelp):
		return 0
	case sserr.IsValidation(err):
		return 2
	default:
		return 1
	}
}

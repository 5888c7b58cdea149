package cart

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/rpc"
)

// ServiceName identifies the cart service in logs and spans.
const ServiceName = "cart"

// Config is the cart service configuration. Tokens are never checked
// locally: every protected request is validated by the customers service
// over the RPC channel described by RPC.
type Config struct {
	Port int `json:"port" yaml:"port" env:"SERVICE_PORT" envDefault:"8082"`

	RPC      rpc.ClientConfig `json:"rpc" yaml:"rpc"`
	Postgres postgres.Config  `json:"postgres" yaml:"postgres"`

	// WhiteList holds the routes that need no token, as path templates.
	WhiteList []string `json:"white_list" yaml:"white_list" env:"JWT_WHITE_LIST" envDefault:"/api/v1/products/list/"`

	RequestTimeout  time.Duration `json:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        slog.Level    `json:"log_level" yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`
}

// Validate checks the fields the nested configs do not cover.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return sserr.Newf(sserr.CodeValidation, "config: SERVICE_PORT %d is out of range [1, 65535]", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return sserr.New(sserr.CodeValidation, "config: REQUEST_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout < 0 {
		return sserr.New(sserr.CodeValidation, "config: SHUTDOWN_TIMEOUT must not be negative")
	}
	return nil
}

// Address returns the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

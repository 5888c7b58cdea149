package customers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/StricklySoft/storefront/pkg/auth"
	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	"github.com/StricklySoft/storefront/pkg/clients/redis"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/rpc"
)

// ServiceName identifies the customers service in logs, spans and the
// RPC peer certificate.
const ServiceName = "customers"

// Config is the customers service configuration. Every field has a local
// development default, so an empty environment starts a working service
// against the placeholder database.
type Config struct {
	Port int `json:"port" yaml:"port" env:"SERVICE_PORT" envDefault:"8080"`

	RPC      rpc.ServerConfig `json:"rpc" yaml:"rpc"`
	Postgres postgres.Config  `json:"postgres" yaml:"postgres"`
	Redis    redis.Config     `json:"redis" yaml:"redis"`
	Token    auth.TokenConfig `json:"token" yaml:"token"`

	BcryptCost int `json:"bcrypt_cost" yaml:"bcrypt_cost" env:"BCRYPT_COST" envDefault:"12"`

	// WhiteList holds the routes that need no token, as path templates.
	WhiteList []string `json:"white_list" yaml:"white_list" env:"JWT_WHITE_LIST" envDefault:"/api/v1/auth/login/,/api/v1/users/create/"`

	RequestTimeout  time.Duration `json:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        slog.Level    `json:"log_level" yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`
}

// Validate checks the fields the nested configs do not cover.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return sserr.Newf(sserr.CodeValidation, "config: SERVICE_PORT %d is out of range [1, 65535]", c.Port)
	}
	if c.RPC.Port == c.Port {
		return sserr.Newf(sserr.CodeValidation, "config: SERVICE_PORT and GRPC_PORT must differ, both are %d", c.Port)
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

package rpc

import (
	"net"
	"strconv"
	"time"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// Defaults for [ClientConfig].
const (
	DefaultTimeout         = 5 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerOpen     = 30 * time.Second
	DefaultRateWindow      = time.Minute
)

// TLSFiles names the PEM files of one side of the mutual TLS channel.
type TLSFiles struct {
	CertFile string `json:"cert_file" yaml:"cert_file" env:"RPC_CERT_FILE"`
	KeyFile  string `json:"key_file" yaml:"key_file" env:"RPC_KEY_FILE"`
	CAFile   string `json:"ca_file" yaml:"ca_file" env:"RPC_CA_FILE" envDefault:"ca.pem"`
}

// withDefaults fills empty certificate and key names with
// "<side>.pem" and "<side>.key".
func (f *TLSFiles) withDefaults(side string) {
	if f.CertFile == "" {
		f.CertFile = side + ".pem"
	}
	if f.KeyFile == "" {
		f.KeyFile = side + ".key"
	}
}

func (f *TLSFiles) check() error {
	switch {
	case f.CertFile == "":
		return sserr.New(sserr.CodeValidation, "rpc: RPC_CERT_FILE must be set")
	case f.KeyFile == "":
		return sserr.New(sserr.CodeValidation, "rpc: RPC_KEY_FILE must be set")
	case f.CAFile == "":
		return sserr.New(sserr.CodeValidation, "rpc: RPC_CA_FILE must be set")
	}
	return nil
}

// ServerConfig configures the UserAuth server in the customers service.
type ServerConfig struct {
	Port int `json:"port" yaml:"port" env:"GRPC_PORT" envDefault:"50051"`

	TLS TLSFiles `json:"tls" yaml:"tls"`

	// RateLimit caps ValidateToken calls per calling service per
	// RateWindow. Zero disables throttling.
	RateLimit  int64         `json:"rate_limit" yaml:"rate_limit" env:"RPC_RATE_LIMIT" envDefault:"0"`
	RateWindow time.Duration `json:"rate_window" yaml:"rate_window" env:"RPC_RATE_WINDOW" envDefault:"1m"`
}

// Validate checks the port and the throttle settings. Certificate files
// default to server.pem and server.key.
func (c *ServerConfig) Validate() error {
	c.TLS.withDefaults("server")
	if c.Port < 1 || c.Port > 65535 {
		return sserr.Newf(sserr.CodeValidation, "rpc: GRPC_PORT %d is out of range [1, 65535]", c.Port)
	}
	if c.RateLimit < 0 {
		return sserr.New(sserr.CodeValidation, "rpc: RPC_RATE_LIMIT must not be negative")
	}
	if c.RateLimit > 0 && c.RateWindow <= 0 {
		return sserr.New(sserr.CodeValidation, "rpc: RPC_RATE_WINDOW must be positive when throttling")
	}
	return nil
}

// Address returns the listen address.
func (c *ServerConfig) Address() string {
	return ":" + strconv.Itoa(c.Port)
}

// ClientConfig configures the UserAuth client in the cart service.
type ClientConfig struct {
	Host string `json:"host" yaml:"host" env:"GRPC_HOST" envDefault:"localhost"`
	Port int    `json:"port" yaml:"port" env:"GRPC_PORT" envDefault:"50051"`

	TLS TLSFiles `json:"tls" yaml:"tls"`

	// ServerName is verified against the server certificate.
	ServerName string `json:"server_name" yaml:"server_name" env:"RPC_SERVER_NAME" envDefault:"localhost"`

	// Timeout bounds each ValidateToken call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"RPC_TIMEOUT" envDefault:"5s"`

	// BreakerFailures consecutive transport failures open the breaker for
	// BreakerOpen.
	BreakerFailures uint32        `json:"breaker_failures" yaml:"breaker_failures" env:"RPC_BREAKER_FAILURES" envDefault:"5"`
	BreakerOpen     time.Duration `json:"breaker_open" yaml:"breaker_open" env:"RPC_BREAKER_OPEN" envDefault:"30s"`
}

// Validate applies defaults for zero values and checks the rest.
// Certificate files default to client.pem and client.key.
func (c *ClientConfig) Validate() error {
	c.TLS.withDefaults("client")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}
	if c.BreakerOpen == 0 {
		c.BreakerOpen = DefaultBreakerOpen
	}
	if c.Host == "" {
		return sserr.New(sserr.CodeValidation, "rpc: GRPC_HOST must be set")
	}
	if c.Port < 1 || c.Port > 65535 {
		return sserr.Newf(sserr.CodeValidation, "rpc: GRPC_PORT %d is out of range [1, 65535]", c.Port)
	}
	if c.Timeout < 0 || c.BreakerOpen < 0 {
		return sserr.New(sserr.CodeValidation, "rpc: RPC_TIMEOUT and RPC_BREAKER_OPEN must not be negative")
	}
	return nil
}

// Target returns the dial target.
func (c *ClientConfig) Target() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

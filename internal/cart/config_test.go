package cart

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/storefront/internal/testutil"
	"github.com/StricklySoft/storefront/pkg/config"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

func loadConfig(t *testing.T, env map[string]string) (Config, error) {
	t.Helper()
	var cfg Config
	err := config.New().WithLookup(testutil.MapLookup(env)).Load(&cfg)
	return cfg, err
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig(t, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8082", cfg.Address())
	assert.Equal(t, "localhost:50051", cfg.RPC.Target())
	assert.Equal(t, "localhost", cfg.RPC.ServerName)
	assert.Equal(t, "client.pem", cfg.RPC.TLS.CertFile)
	assert.Equal(t, "client.key", cfg.RPC.TLS.KeyFile)
	assert.Equal(t, "ca.pem", cfg.RPC.TLS.CAFile)
	assert.Equal(t, 5*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, uint32(5), cfg.RPC.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.RPC.BreakerOpen)
	assert.Equal(t, []string{"/api/v1/products/list/"}, cfg.WhiteList)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestConfig_Environment(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig(t, map[string]string{
		"SERVICE_PORT":    "9100",
		"GRPC_HOST":       "customers.internal",
		"GRPC_PORT":       "6000",
		"RPC_SERVER_NAME": "customers",
		"RPC_TIMEOUT":     "750ms",
		"POSTGRES_URI":    "postgres://cart:pw@db:5432/cart",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Address())
	assert.Equal(t, "customers.internal:6000", cfg.RPC.Target())
	assert.Equal(t, "customers", cfg.RPC.ServerName)
	assert.Equal(t, 750*time.Millisecond, cfg.RPC.Timeout)
	assert.Equal(t, "postgres://cart:pw@db:5432/cart", cfg.Postgres.ConnectionString())
}

func TestConfig_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		env     map[string]string
		message string
	}{
		{map[string]string{"SERVICE_PORT": "0"}, "SERVICE_PORT 0 is out of range"},
		{map[string]string{"REQUEST_TIMEOUT": "0s"}, "REQUEST_TIMEOUT must be positive"},
		{map[string]string{"SHUTDOWN_TIMEOUT": "-5s"}, "SHUTDOWN_TIMEOUT must not be negative"},
	}
	for _, tt := range tests {
		_, err := loadConfig(t, tt.env)
		e := testutil.RequireErrorCode(t, err, sserr.CodeValidation, "env %v", tt.env)
		assert.Contains(t, e.Message, tt.message)
	}
}

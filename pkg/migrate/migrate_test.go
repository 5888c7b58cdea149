package migrate

import (
	"bytes"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

func TestNew_MissingDirectory(t *testing.T) {
	t.Parallel()
	_, err := New(postgres.Config{}, fstest.MapFS{}, "migrations", "schema_migrations", nil)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeInternalConfiguration))
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := New(postgres.Config{Port: -1}, fstest.MapFS{}, "migrations", "schema_migrations", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestLogAdapter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := &logAdapter{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Printf("Start buffering %d/u %s\n", 1, "create_users")
	assert.Contains(t, buf.String(), `msg="Start buffering 1/u create_users"`)
	assert.Contains(t, buf.String(), "component=migrate")
	assert.False(t, l.Verbose())
}

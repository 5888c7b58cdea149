//go:build integration

package migrate_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/storefront/internal/testutil/containers"
	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	"github.com/StricklySoft/storefront/pkg/migrate"
)

var testMigrations = fstest.MapFS{
	"sql/000001_create_widgets.up.sql": {Data: []byte(
		`CREATE TABLE widgets (id bigserial CONSTRAINT pk__widgets PRIMARY KEY, name varchar(64));`)},
	"sql/000001_create_widgets.down.sql": {Data: []byte(`DROP TABLE widgets;`)},
	"sql/000002_widgets_name_unique.up.sql": {Data: []byte(
		`ALTER TABLE widgets ADD CONSTRAINT uq__widgets__name UNIQUE (name);`)},
	"sql/000002_widgets_name_unique.down.sql": {Data: []byte(
		`ALTER TABLE widgets DROP CONSTRAINT uq__widgets__name;`)},
}

func TestIntegration_Stairway(t *testing.T) {
	ctx := context.Background()
	result, err := containers.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = result.Container.Terminate(ctx) })

	m, err := migrate.New(postgres.Config{URI: result.ConnString}, testMigrations, "sql", "widgets_schema_migrations", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, ok, err := m.Version()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Up())
	require.NoError(t, m.Up(), "re-running up is a no-op")
	version, ok, err := m.Version()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(2), version)

	require.NoError(t, m.Steps(-1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Steps(1))
	require.NoError(t, m.Down())
	_, ok, err = m.Version()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Up())
}

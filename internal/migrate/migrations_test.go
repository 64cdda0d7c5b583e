package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildboard/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	applied, err := Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	applied, err = Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='group_achievements'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestLoadMigrationsOrdersAndValidates(t *testing.T) {
	got, err := loadMigrations(fstest.MapFS{
		"sql/0002_b.sql": {Data: []byte("SELECT 2;")},
		"sql/0001_a.sql": {Data: []byte("SELECT 1;")},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, "0002_b.sql", got[1].Name)

	_, err = loadMigrations(fstest.MapFS{"sql/init.sql": {Data: []byte("SELECT 1;")}})
	require.Error(t, err)

	_, err = loadMigrations(fstest.MapFS{
		"sql/0001_a.sql": {Data: []byte("SELECT 1;")},
		"sql/001_b.sql":  {Data: []byte("SELECT 1;")},
	})
	require.Error(t, err)
}

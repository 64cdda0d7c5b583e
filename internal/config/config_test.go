package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildboard/internal/engine/calc"
)

func newViper(t *testing.T, workspace string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	v.Set("workspace", workspace)
	return v
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(newViper(t, t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Batch.TenantTimeout)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.False(t, cfg.Scheduler.AllowUnauthenticated)
	require.Error(t, cfg.RequireJWTSecret())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	content := "batch:\n  concurrency: 8\n  tenant_timeout: 5s\nachievements:\n  sticky_unlocks: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guildboard.yml"), []byte(content), 0o644))
	t.Setenv("GUILDBOARD_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("GUILDBOARD_BATCH_CONCURRENCY", "2")

	cfg, err := Load(newViper(t, dir))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Batch.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Batch.TenantTimeout)
	assert.True(t, cfg.Achievements.StickyUnlocks)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	require.NoError(t, cfg.RequireJWTSecret())
}

func TestValidateRejectsBadBatchSettings(t *testing.T) {
	v := newViper(t, t.TempDir())
	v.Set("batch.concurrency", 0)
	_, err := Decode(v)
	require.Error(t, err)

	v = newViper(t, t.TempDir())
	v.Set("batch.tenant_timeout", time.Hour)
	v.Set("batch.run_timeout", time.Minute)
	_, err = Decode(v)
	require.Error(t, err)
}

func TestDefaultCatalogCoversEveryRegisteredType(t *testing.T) {
	cat := DefaultCatalog()
	require.NoError(t, cat.Validate())

	types := map[string]bool{}
	for _, a := range cat.Achievements {
		types[a.RequirementType] = true
	}
	for _, typ := range calc.BuiltinTypes() {
		assert.True(t, types[typ], "no default achievement for %s", typ)
	}
}

func TestCatalogFromYAMLValidation(t *testing.T) {
	_, err := CatalogFromYAML([]byte("achievements:\n  - id: a\n    name: A\n    requirement_type: member_count\n    requirement_value: 5\n"))
	require.NoError(t, err)

	_, err = CatalogFromYAML([]byte("achievements:\n  - id: a\n    name: A\n    requirement_type: x\n  - id: a\n    name: B\n    requirement_type: y\n"))
	require.ErrorContains(t, err, "duplicate")

	_, err = CatalogFromYAML([]byte("achievements:\n  - id: a\n    name: A\n    requirement_type: x\n    requirement_value: -1\n"))
	require.Error(t, err)

	_, err = CatalogFromYAML([]byte("achievements:\n  - id: a\n    nme: A\n"))
	require.Error(t, err)
}

func TestLoadExplicitConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  allow_unauthenticated: true\n"), 0o644))
	v := newViper(t, t.TempDir())
	v.Set("config", path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.True(t, cfg.Scheduler.AllowUnauthenticated)

	v = newViper(t, t.TempDir())
	v.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load(v)
	require.Error(t, err)
}

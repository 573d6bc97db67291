package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
[database]
path = "/data/catalog.db"

[access]
admin_ids = [42, 43]

[logging]
level = "debug"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/catalog.db", cfg.Database.Path)
	assert.Equal(t, []int64{42, 43}, cfg.Access.AdminIDs)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestParseAndValidateDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.ParseAndValidate())

	assert.Equal(t, "clipvault.db", cfg.Database.Path)
	assert.Equal(t, cfg.Database.Path, cfg.Access.Path, "access store follows the catalog path by default")
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DefaultCategories, cfg.Catalog.Categories)
}

func TestParseAndValidateKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Path = "/data/catalog.db"
	cfg.Access.Path = "/data/access.db"
	cfg.Catalog.Categories = []string{"one"}
	require.NoError(t, cfg.ParseAndValidate())

	assert.Equal(t, "/data/access.db", cfg.Access.Path)
	assert.Equal(t, []string{"one"}, cfg.Catalog.Categories)
}

func TestApplyEnvPrefixedOverrides(t *testing.T) {
	t.Setenv("CLIPVAULT_DB_PATH", "/env/catalog.db")
	t.Setenv("CLIPVAULT_ADMIN_IDS", "1,2")
	t.Setenv("CLIPVAULT_LOG_LEVEL", "warn")

	cfg := &Config{}
	cfg.Database.Path = "/file/catalog.db"
	require.NoError(t, cfg.ApplyEnv(os.Getenv))

	assert.Equal(t, "/env/catalog.db", cfg.Database.Path)
	assert.ElementsMatch(t, []int64{1, 2}, cfg.Access.AdminIDs)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestApplyEnvLegacyNames(t *testing.T) {
	env := map[string]string{
		"DB_PATH":   "/legacy/catalog.db",
		"ADMIN_IDS": "10, 11",
		"ADMIN_ID":  "12",
	}

	cfg := &Config{}
	require.NoError(t, cfg.ApplyEnv(func(key string) string { return env[key] }))

	assert.Equal(t, "/legacy/catalog.db", cfg.Database.Path)
	assert.ElementsMatch(t, []int64{10, 11, 12}, cfg.Access.AdminIDs)
}

func TestApplyEnvPrefixedWinsOverLegacy(t *testing.T) {
	t.Setenv("CLIPVAULT_DB_PATH", "/env/catalog.db")
	t.Setenv("CLIPVAULT_ADMIN_IDS", "1")

	env := map[string]string{
		"DB_PATH":   "/legacy/catalog.db",
		"ADMIN_IDS": "99",
	}
	lookup := func(key string) string { return env[key] }

	cfg := &Config{}
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "/env/catalog.db", cfg.Database.Path)
	assert.ElementsMatch(t, []int64{1}, cfg.Access.AdminIDs)
}

func TestAdminIDSet(t *testing.T) {
	cfg := &Config{}
	cfg.Access.AdminIDs = []int64{5, 5, 6}

	set := cfg.AdminIDSet()
	assert.Len(t, set, 2)
	assert.Contains(t, set, int64(5))
	assert.Contains(t, set, int64(6))
}

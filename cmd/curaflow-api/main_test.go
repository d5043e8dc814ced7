package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWithoutPath(t *testing.T) {
	t.Setenv("CURAFLOW_CONFIG", "")
	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort())
	assert.Equal(t, "memory", cfg.StorageBackend())
}

func TestLoadConfigFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curaflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nserver:\n  http_port: 9191\n"), 0600))
	t.Setenv("CURAFLOW_CONFIG", path)

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.HTTPPort())
}

func TestLoadConfigFlagOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curaflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 2\n"), 0600))
	t.Setenv("CURAFLOW_CONFIG", "/does/not/exist.yaml")

	_, err := loadConfig([]string{"-config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported curaflow.yaml version: 2")
}

func TestLoadDataset(t *testing.T) {
	ds, err := loadDataset("")
	require.NoError(t, err)
	assert.Equal(t, "default", ds.Name())
	assert.Equal(t, 0, ds.Len())

	path := filepath.Join(t.TempDir(), "pets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"samples": [{"id": "a"}, {"id": "b"}]}`), 0600))
	ds, err = loadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, "pets", ds.Name())
	assert.Equal(t, 2, ds.Len())
}

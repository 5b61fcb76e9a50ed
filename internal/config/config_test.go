package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROSTERFLOW_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 50, c.Import.ChunkSize)
	require.InDelta(t, 0.9, c.Import.UpdateThreshold, 1e-9)
	require.InDelta(t, 0.6, c.Import.ReviewThreshold, 1e-9)
	require.True(t, c.Import.UnratedWhenZero)
	require.False(t, c.Import.UnratedWhenMissingRegNo)
	require.Equal(t, "first", c.Import.TieBreak)
	require.Zero(t, c.Import.ParseTimeoutMS)
	require.Contains(t, c.Database.Path, "rosterflow.db")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/tmp/other.db"

[import]
chunk_size = 10
tie_break = "lower-index"
unrated_when_zero = false
`), 0o644))
	t.Setenv("ROSTERFLOW_CONFIG", path)

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/other.db", c.Database.Path)
	require.Equal(t, 10, c.Import.ChunkSize)
	require.Equal(t, "lower-index", c.Import.TieBreak)
	require.False(t, c.Import.UnratedWhenZero)
	// untouched keys keep their defaults
	require.InDelta(t, 0.9, c.Import.UpdateThreshold, 1e-9)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ROSTERFLOW_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("ROSTERFLOW_IMPORT_CHUNK_SIZE", "25")
	t.Setenv("ROSTERFLOW_DATABASE_PATH", "/tmp/env.db")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 25, c.Import.ChunkSize)
	require.Equal(t, "/tmp/env.db", c.Database.Path)
}

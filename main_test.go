package main

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("web:\n  port: 9000\ndebugger:\n  port: 5859\n"), 0o644))

	flags := rootCmd.Flags()
	require.NoError(t, flags.Set("config", path))
	require.NoError(t, flags.Set("debug-port", "6000"))
	require.NoError(t, flags.Set("no-inject", "true"))
	require.NoError(t, flags.Set("log-level", "debug"))

	c, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, 9000, c.Web.Port)
	assert.Equal(t, 6000, c.Debugger.Port)
	assert.False(t, c.Injection.Enabled)
	assert.Equal(t, "debug", c.Log.Level)

	require.NoError(t, flags.Set("web-port", "0"))
	_, err = loadConfig(rootCmd)
	assert.Error(t, err)
}

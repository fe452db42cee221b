package jitconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmjit/tracejit/pkg/jitconfig"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, jitconfig.Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Threshold: 50\nLogLevel: debug\n"), 0o600))

	cfg, err := jitconfig.Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(50), cfg.Threshold)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, jitconfig.Default().NodeCap, cfg.NodeCap)
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := jitconfig.Default()
	cfg.LogLevel = "verbose"
	require.Error(t, cfg.Validate())
}

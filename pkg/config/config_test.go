package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadOptional_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 1500*time.Millisecond, cfg.Timings.InstallMinDisplay)
	require.Equal(t, time.Duration(0), cfg.Timings.PPAMinDisplay)
}

func TestLoadFromFile_PartialOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  path: ./bin/servermark-backend
  args: ["--stdio"]
container_prefix: dev
timings:
  install_linger: 750ms
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "./bin/servermark-backend", cfg.Backend.Path)
	require.Equal(t, []string{"--stdio"}, cfg.Backend.Args)
	require.Equal(t, "dev", cfg.ContainerPrefix)
	require.Equal(t, 750*time.Millisecond, cfg.Timings.InstallLinger)
	require.Equal(t, 1500*time.Millisecond, cfg.Timings.InstallMinDisplay, "unset keys keep defaults")
	require.Equal(t, 5*time.Second, cfg.Backend.HandshakeTimeout)
	require.Equal(t, DefaultPackageManager, cfg.DefaultPackageManager)
}

func TestLoadFromFile_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte("timings: [1, 2"), 0o644))
	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte("default_package_manager: dnf\n"), 0o644))

	t.Setenv("SERVERMARK_PACKAGE_MANAGER", "pacman")
	t.Setenv("SERVERMARK_BACKEND_PATH", "/opt/servermark/backend")
	t.Setenv("SERVERMARK_COMMAND_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "pacman", cfg.DefaultPackageManager)
	require.Equal(t, "/opt/servermark/backend", cfg.Backend.Path)
	require.Equal(t, 45*time.Second, cfg.CommandTimeout)
	require.Equal(t, DefaultContainerPrefix, cfg.ContainerPrefix)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte("default_package_manager: brew\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "brew")

	t.Setenv("SERVERMARK_COMMAND_TIMEOUT", "soon")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDump_RoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Backend.Path = "/usr/libexec/servermark-backend"

	b, err := Dump(cfg)
	require.NoError(t, err)
	require.Contains(t, string(b), "install_min_display: 1.5s")

	var back File
	require.NoError(t, yaml.Unmarshal(b, &back))
	require.Equal(t, *cfg, back)
}

package cmds

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	root := &cobra.Command{Use: "servermark", SilenceUsage: true, SilenceErrors: true}
	AddRootFlags(root)
	require.NoError(t, AddCommands(root))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	return root, &out
}

func TestParsePorts(t *testing.T) {
	got, err := parsePorts([]string{"13306:3306", "8080:80"})
	require.NoError(t, err)
	require.Equal(t, map[int]int{3306: 13306, 80: 8080}, got)

	_, err = parsePorts([]string{"3306"})
	require.Error(t, err)
	_, err = parsePorts([]string{"x:3306"})
	require.Error(t, err)
}

type slot string

func (s slot) LastError() string { return string(s) }

func TestStoreErr(t *testing.T) {
	require.NoError(t, storeErr(slot(""), "fetch sites"))
	err := storeErr(slot("permission denied"), "fetch sites")
	require.EqualError(t, err, "fetch sites: permission denied")
}

func TestConfigShow_AppliesFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("container_prefix: acme\ndefault_package_manager: dnf\n"), 0o644))

	root, out := newTestRoot(t)
	root.SetArgs([]string{"--config", cfgPath, "--backend", "/opt/servermark/backend", "--timeout", "45s", "config", "show"})
	require.NoError(t, root.Execute())

	got := out.String()
	require.Contains(t, got, "container_prefix: acme")
	require.Contains(t, got, "default_package_manager: dnf")
	require.Contains(t, got, "path: /opt/servermark/backend")
	require.Contains(t, got, "command_timeout: 45s")
}

func TestConfigShow_RejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("default_package_manager: brew\n"), 0o644))

	root, _ := newTestRoot(t)
	root.SetArgs([]string{"--config", cfgPath, "config", "show"})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "brew")
}

func TestContainersTemplates_ByCategory(t *testing.T) {
	root, out := newTestRoot(t)
	root.SetArgs([]string{"containers", "templates", "--category", "cache"})
	require.NoError(t, root.Execute())
	require.True(t, strings.Contains(out.String(), `"redis"`))
	require.False(t, strings.Contains(out.String(), `"mysql"`))

	root, _ = newTestRoot(t)
	root.SetArgs([]string{"containers", "templates", "--category", "nope"})
	require.Error(t, root.Execute())
}

func TestCommandsAreRegistered(t *testing.T) {
	root, _ := newTestRoot(t)
	for _, path := range [][]string{
		{"containers", "create"},
		{"php", "install"},
		{"php", "ppa", "add"},
		{"sites", "scheduler", "toggle"},
		{"sites", "queue", "start"},
		{"tray", "stop-all"},
		{"system", "refresh"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		require.Equal(t, path[len(path)-1], cmd.Name())
	}
}

// Package discovery turns the backend section of the config into a
// launchable backend spec.
package discovery

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/go-go-golems/servermark/pkg/backend"
	"github.com/go-go-golems/servermark/pkg/config"
	"github.com/pkg/errors"
)

type Options struct {
	// BaseDir resolves relative paths; normally the directory of the config
	// file.
	BaseDir string
	// LookPath finds executables on PATH. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// ResolveBackend picks the backend executable: the configured path if any,
// else an executable bin/servermark-backend under BaseDir, else
// servermark-backend on PATH.
func ResolveBackend(cfg *config.File, opts Options) (backend.Spec, error) {
	if opts.BaseDir == "" {
		return backend.Spec{}, errors.New("missing BaseDir")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}

	b := cfg.Backend
	if b.Path != "" {
		return toSpec(opts.BaseDir, b)
	}

	local := filepath.Join(opts.BaseDir, "bin", config.DefaultBackendName)
	if isExecutable(local) {
		b.Path = local
		return toSpec(opts.BaseDir, b)
	}

	found, err := opts.LookPath(config.DefaultBackendName)
	if err != nil {
		return backend.Spec{}, errors.Wrapf(err, "no backend configured and %s not found", config.DefaultBackendName)
	}
	b.Path = found
	return toSpec(opts.BaseDir, b)
}

func toSpec(baseDir string, b config.Backend) (backend.Spec, error) {
	workDir := b.WorkDir
	if workDir == "" {
		workDir = baseDir
	} else if !filepath.IsAbs(workDir) {
		workDir = filepath.Join(baseDir, workDir)
	}

	path := b.Path
	if !filepath.IsAbs(path) && hasPathSep(path) {
		path = filepath.Join(baseDir, path)
	}

	if hasPathSep(path) {
		if _, err := os.Stat(path); err != nil {
			return backend.Spec{}, errors.Wrapf(err, "backend path not found: %s", path)
		}
	}

	env := map[string]string{}
	for k, v := range b.Env {
		env[k] = v
	}

	return backend.Spec{
		Name:    filepath.Base(path),
		Path:    path,
		Args:    append([]string(nil), b.Args...),
		Env:     env,
		WorkDir: workDir,
	}, nil
}

func hasPathSep(s string) bool {
	for _, c := range s {
		if c == '/' || c == '\\' {
			return true
		}
	}
	return false
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

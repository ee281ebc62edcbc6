package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFilename  = "config.yaml"
	DefaultBackendName     = "servermark-backend"
	DefaultContainerPrefix = "servermark"
	DefaultPackageManager  = "apt"
)

type File struct {
	Backend               Backend       `yaml:"backend"`
	CommandTimeout        time.Duration `yaml:"command_timeout"`
	ContainerPrefix       string        `yaml:"container_prefix"`
	DefaultPackageManager string        `yaml:"default_package_manager"`
	Timings               Timings       `yaml:"timings"`
}

type Backend struct {
	Path             string            `yaml:"path,omitempty"`
	Args             []string          `yaml:"args,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
	WorkDir          string            `yaml:"workdir,omitempty"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	ShutdownTimeout  time.Duration     `yaml:"shutdown_timeout"`
}

// Timings control how long progress stays visible.
type Timings struct {
	InstallMinDisplay time.Duration `yaml:"install_min_display"`
	InstallLinger     time.Duration `yaml:"install_linger"`
	PPAMinDisplay     time.Duration `yaml:"ppa_min_display"`
	PPALinger         time.Duration `yaml:"ppa_linger"`
}

func Default() *File {
	return &File{
		Backend: Backend{
			HandshakeTimeout: 5 * time.Second,
			ShutdownTimeout:  3 * time.Second,
		},
		CommandTimeout:        10 * time.Minute,
		ContainerPrefix:       DefaultContainerPrefix,
		DefaultPackageManager: DefaultPackageManager,
		Timings: Timings{
			InstallMinDisplay: 1500 * time.Millisecond,
			InstallLinger:     500 * time.Millisecond,
			PPAMinDisplay:     0,
			PPALinger:         2000 * time.Millisecond,
		},
	}
}

// DefaultDir is $XDG_CONFIG_HOME/servermark (or the platform equivalent).
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "servermark")
	}
	return filepath.Join(dir, "servermark")
}

func DefaultPath() string {
	return filepath.Join(DefaultDir(), DefaultConfigFilename)
}

// LoadFromFile reads path on top of the defaults; keys missing from the file
// keep their default value.
func LoadFromFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	return cfg, nil
}

func LoadOptional(path string) (*File, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrap(err, "stat config")
	}
	return LoadFromFile(path)
}

// Load reads the optional file at path, applies environment overrides and
// validates the result.
func Load(path string) (*File, error) {
	cfg, err := LoadOptional(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envBindings = map[string]string{
	"backend_path":              "SERVERMARK_BACKEND_PATH",
	"package_manager":           "SERVERMARK_PACKAGE_MANAGER",
	"container_prefix":          "SERVERMARK_CONTAINER_PREFIX",
	"command_timeout":           "SERVERMARK_COMMAND_TIMEOUT",
	"backend_handshake_timeout": "SERVERMARK_HANDSHAKE_TIMEOUT",
}

// ApplyEnv overrides cfg with SERVERMARK_* environment variables.
func ApplyEnv(cfg *File) error {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return errors.Wrapf(err, "bind %s", env)
		}
	}

	if v.IsSet("backend_path") {
		cfg.Backend.Path = v.GetString("backend_path")
	}
	if v.IsSet("package_manager") {
		cfg.DefaultPackageManager = v.GetString("package_manager")
	}
	if v.IsSet("container_prefix") {
		cfg.ContainerPrefix = v.GetString("container_prefix")
	}
	if v.IsSet("command_timeout") {
		d, err := time.ParseDuration(v.GetString("command_timeout"))
		if err != nil {
			return errors.Wrap(err, "SERVERMARK_COMMAND_TIMEOUT")
		}
		cfg.CommandTimeout = d
	}
	if v.IsSet("backend_handshake_timeout") {
		d, err := time.ParseDuration(v.GetString("backend_handshake_timeout"))
		if err != nil {
			return errors.Wrap(err, "SERVERMARK_HANDSHAKE_TIMEOUT")
		}
		cfg.Backend.HandshakeTimeout = d
	}
	return nil
}

var packageManagers = map[string]bool{"apt": true, "dnf": true, "pacman": true, "zypper": true}

func (f *File) Validate() error {
	if f.ContainerPrefix == "" {
		return errors.New("container_prefix must not be empty")
	}
	if !packageManagers[f.DefaultPackageManager] {
		return errors.Errorf("unsupported default_package_manager %q", f.DefaultPackageManager)
	}
	for name, d := range map[string]time.Duration{
		"command_timeout":             f.CommandTimeout,
		"backend.handshake_timeout":   f.Backend.HandshakeTimeout,
		"backend.shutdown_timeout":    f.Backend.ShutdownTimeout,
		"timings.install_min_display": f.Timings.InstallMinDisplay,
		"timings.install_linger":      f.Timings.InstallLinger,
		"timings.ppa_min_display":     f.Timings.PPAMinDisplay,
		"timings.ppa_linger":          f.Timings.PPALinger,
	} {
		if d < 0 {
			return errors.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// Dump renders cfg as YAML.
func Dump(cfg *File) ([]byte, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}
	return b, nil
}

package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-go-golems/servermark/pkg/app"
	"github.com/go-go-golems/servermark/pkg/config"
	"github.com/go-go-golems/servermark/pkg/discovery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type rootOptions struct {
	Config  string
	Backend string
	Timeout time.Duration
}

func AddRootFlags(root *cobra.Command) {
	addRootFlags(root.PersistentFlags())
}

func addRootFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file (defaults to config.yaml under the user config dir)")
	fs.String("backend", "", "Backend executable (overrides backend.path from the config)")
	fs.Duration("timeout", 0, "Timeout for one command (0 uses command_timeout from the config)")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return rootOptions{}, err
	}
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfgPath, err = filepath.Abs(cfgPath)
	if err != nil {
		return rootOptions{}, err
	}

	backendPath, err := cmd.Root().PersistentFlags().GetString("backend")
	if err != nil {
		return rootOptions{}, err
	}
	timeout, err := cmd.Root().PersistentFlags().GetDuration("timeout")
	if err != nil {
		return rootOptions{}, err
	}
	if timeout < 0 {
		return rootOptions{}, errors.New("timeout must be >= 0")
	}

	return rootOptions{
		Config:  cfgPath,
		Backend: backendPath,
		Timeout: timeout,
	}, nil
}

func loadConfig(opts rootOptions) (*config.File, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Backend != "" {
		cfg.Backend.Path = opts.Backend
	}
	if opts.Timeout > 0 {
		cfg.CommandTimeout = opts.Timeout
	}
	return cfg, nil
}

// withApp starts the backend, runs fn with a context bounded by the command
// timeout and shuts everything down again.
func withApp(cmd *cobra.Command, appOpts app.Options, fn func(ctx context.Context, a *app.App) error) error {
	opts, err := getRootOptions(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	spec, err := discovery.ResolveBackend(cfg, discovery.Options{BaseDir: filepath.Dir(opts.Config)})
	if err != nil {
		return err
	}

	appOpts.Config = cfg
	appOpts.Spec = spec
	a, err := app.New(cmd.Context(), appOpts)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.ShutdownTimeout+time.Second)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("close backend")
		}
	}()
	log.Debug().Str("backend", spec.Path).Str("name", a.Client.Handshake().BackendName).Msg("backend ready")

	ctx, cancel := a.CommandContext(cmd.Context())
	defer cancel()
	return fn(ctx, a)
}

type errorSlot interface {
	LastError() string
}

// storeErr turns a store's error slot into an error for read-only fetches,
// which report failures only there.
func storeErr(s errorSlot, what string) error {
	if msg := s.LastError(); msg != "" {
		return errors.Errorf("%s: %s", what, msg)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal output")
	}
	_, _ = fmt.Fprintln(w, string(b))
	return nil
}

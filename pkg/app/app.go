// Package app wires the event channel, the backend connection and one
// instance of every store. Consumers receive the App instead of looking
// stores up globally.
package app

import (
	"context"

	"github.com/go-go-golems/servermark/pkg/backend"
	"github.com/go-go-golems/servermark/pkg/config"
	"github.com/go-go-golems/servermark/pkg/events"
	"github.com/go-go-golems/servermark/pkg/store"
	"github.com/go-go-golems/servermark/pkg/tray"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Config *config.File
	// Spec is launched when Client is nil.
	Spec backend.Spec
	// Client is an already connected backend. It is closed with the App.
	Client backend.Client
	// Bus is created when nil.
	Bus *events.Bus
	// OnTrayDone observes tray runs.
	OnTrayDone func(action tray.Action, results []tray.Result)
}

type App struct {
	Config *config.File
	Bus    *events.Bus
	Client backend.Client

	Containers *store.Containers
	PHP        *store.PHP
	Sites      *store.Sites
	Services   *store.Services
	System     *store.System
	Tray       *tray.Bridge

	ownsBus bool
}

func Timings(cfg *config.File) store.Timings {
	return store.Timings{
		InstallMinDisplay: cfg.Timings.InstallMinDisplay,
		InstallLinger:     cfg.Timings.InstallLinger,
		PPAMinDisplay:     cfg.Timings.PPAMinDisplay,
		PPALinger:         cfg.Timings.PPALinger,
	}
}

// New connects to the backend (unless a client is given) and builds every
// store. ctx bounds startup only; the backend process lives until Close.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	a := &App{Config: cfg, Bus: opts.Bus}
	if a.Bus == nil {
		a.Bus = events.NewInMemoryBus()
		a.ownsBus = true
	}

	a.Client = opts.Client
	if a.Client == nil {
		f := backend.NewFactory(backend.FactoryOptions{
			HandshakeTimeout: cfg.Backend.HandshakeTimeout,
			ShutdownTimeout:  cfg.Backend.ShutdownTimeout,
		})
		// The process must outlive ctx; the handshake has its own timeout.
		c, err := f.Start(context.WithoutCancel(ctx), opts.Spec, a.Bus)
		if err != nil {
			a.closeBus()
			return nil, errors.Wrap(err, "start backend")
		}
		a.Client = c
	}

	a.System = store.NewSystem(a.Client, cfg.DefaultPackageManager)
	a.Containers = store.NewContainers(a.Client, cfg.ContainerPrefix)
	a.PHP = store.NewPHP(a.Client, a.Bus, a.System, Timings(cfg))
	a.Sites = store.NewSites(a.Client)
	a.Services = store.NewServices(nil)

	bridge, err := tray.New(ctx, a.Bus, a.Containers, tray.Options{
		ActionTimeout: cfg.CommandTimeout,
		OnDone:        opts.OnTrayDone,
	})
	if err != nil {
		_ = a.Close(context.Background())
		return nil, errors.Wrap(err, "subscribe tray intents")
	}
	a.Tray = bridge

	return a, nil
}

// CommandContext bounds one user-initiated operation by the configured
// command timeout.
func (a *App) CommandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.Config.CommandTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.Config.CommandTimeout)
}

// Refresh loads every store concurrently. Store errors land in the stores'
// error slots; the system store goes first because the PHP store asks it for
// the package manager.
func (a *App) Refresh(ctx context.Context) {
	a.System.DetectSystem(ctx)

	var g errgroup.Group
	g.Go(func() error {
		a.Containers.DetectRuntime(ctx)
		a.Containers.ListContainers(ctx)
		return nil
	})
	g.Go(func() error {
		a.PHP.FetchVersions(ctx)
		a.PHP.FetchExtensions(ctx)
		return nil
	})
	g.Go(func() error {
		a.Sites.FetchSites(ctx)
		a.Sites.FetchConfig(ctx)
		return nil
	})
	_ = g.Wait()

	for name, msg := range a.Errors() {
		log.Warn().Str("store", name).Str("error", msg).Msg("refresh incomplete")
	}
}

// Errors collects the non-empty error slots by store name.
func (a *App) Errors() map[string]string {
	ret := map[string]string{}
	for name, e := range map[string]interface{ LastError() string }{
		"containers": a.Containers,
		"php":        a.PHP,
		"sites":      a.Sites,
		"services":   a.Services,
		"system":     a.System,
	} {
		if msg := e.LastError(); msg != "" {
			ret[name] = msg
		}
	}
	return ret
}

// Close releases subscriptions, stops pending timers and shuts the backend
// down.
func (a *App) Close(ctx context.Context) error {
	if a.Tray != nil {
		a.Tray.Close()
	}
	if a.PHP != nil {
		a.PHP.Close()
	}
	var err error
	if a.Client != nil {
		err = a.Client.Close(ctx)
	}
	a.closeBus()
	return err
}

func (a *App) closeBus() {
	if a.ownsBus && a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			log.Debug().Err(err).Msg("close bus")
		}
	}
}

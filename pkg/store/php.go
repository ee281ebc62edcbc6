package store

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/servermark/pkg/backend"
	"github.com/go-go-golems/servermark/pkg/events"
	"github.com/go-go-golems/servermark/pkg/progress"
	"github.com/go-go-golems/servermark/pkg/subscription"
	"github.com/rs/zerolog/log"
)

// PHP operation flags.
const (
	FlagInstalling   = "installing"
	FlagUninstalling = "uninstalling"
	FlagAddingPPA    = "adding-ppa"
	FlagSwitching    = "switching"
)

type PHPVersion struct {
	Version     string `json:"version"`
	FullVersion string `json:"full_version"`
	Installed   bool   `json:"installed"`
	Active      bool   `json:"active"`
	Path        string `json:"path"`
}

type PHPExtension struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	Category        string `json:"category"`
	DefaultSelected bool   `json:"default_selected"`
}

type PPAStatus struct {
	Installed  bool   `json:"installed"`
	Name       string `json:"name"`
	AddCommand string `json:"add_command"`
}

var progressKinds = map[string]progress.Kind{
	events.PPAProgress:          progress.KindPPA,
	events.PHPInstallProgress:   progress.KindInstall,
	events.PHPUninstallProgress: progress.KindUninstall,
}

// PHP is the store for PHP versions, extensions and the PPA. Install,
// uninstall and PPA provisioning report progress through the event channel.
type PHP struct {
	opState

	client   backend.Invoker
	pm       PackageManagerSource
	timings  Timings
	sub      *subscription.Manager
	progress *progress.Projector

	mu         sync.RWMutex
	versions   []PHPVersion
	extensions []PHPExtension
	ppa        *PPAStatus
}

func NewPHP(client backend.Invoker, listener events.Listener, pm PackageManagerSource, timings Timings) *PHP {
	s := &PHP{
		client:   client,
		pm:       pm,
		timings:  timings,
		progress: progress.NewProjector(),
	}
	s.sub = subscription.New("php", listener, s.onProgress,
		events.PPAProgress, events.PHPInstallProgress, events.PHPUninstallProgress)
	return s
}

func (s *PHP) onProgress(ev events.Event) {
	kind, ok := progressKinds[ev.Name]
	if !ok {
		return
	}
	var rec progress.Record
	if err := ev.Decode(&rec); err != nil {
		log.Warn().Err(err).Str("event", ev.Name).Msg("bad progress payload")
		return
	}
	s.progress.Update(kind, rec)
}

// Subscription exposes the progress subscription state.
func (s *PHP) Subscription() *subscription.Manager { return s.sub }

// Progress returns the current progress record of kind.
func (s *PHP) Progress(kind progress.Kind) (progress.Record, bool) {
	return s.progress.Get(kind)
}

// ProgressLingering reports whether kind finished and its record is about to
// be cleared.
func (s *PHP) ProgressLingering(kind progress.Kind) bool {
	return s.progress.Lingering(kind)
}

func (s *PHP) Versions() []PHPVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PHPVersion(nil), s.versions...)
}

func (s *PHP) InstalledVersions() []PHPVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ret []PHPVersion
	for _, v := range s.versions {
		if v.Installed {
			ret = append(ret, v)
		}
	}
	return ret
}

func (s *PHP) ActiveVersion() (PHPVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions {
		if v.Active {
			return v, true
		}
	}
	return PHPVersion{}, false
}

func (s *PHP) Extensions() []PHPExtension {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PHPExtension(nil), s.extensions...)
}

// DefaultExtensions are the extension names preselected for a new install.
func (s *PHP) DefaultExtensions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ret []string
	for _, e := range s.extensions {
		if e.DefaultSelected {
			ret = append(ret, e.Name)
		}
	}
	return ret
}

func (s *PHP) PPA() (PPAStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ppa == nil {
		return PPAStatus{}, false
	}
	return *s.ppa, true
}

func (s *PHP) Installing() bool   { return s.Flag(FlagInstalling) }
func (s *PHP) Uninstalling() bool { return s.Flag(FlagUninstalling) }
func (s *PHP) AddingPPA() bool    { return s.Flag(FlagAddingPPA) }

func (s *PHP) packageManager() string {
	if s.pm == nil {
		return "apt"
	}
	return s.pm.PackageManager()
}

// FetchVersions replaces the version list. On failure the old list is kept.
func (s *PHP) FetchVersions(ctx context.Context) {
	defer s.begin()()

	var list []PHPVersion
	if err := s.client.Invoke(ctx, CmdGetPHPVersions, nil, &list); err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("fetch php versions failed")
		return
	}
	seen := map[string]bool{}
	versions := make([]PHPVersion, 0, len(list))
	for _, v := range list {
		if seen[v.Version] {
			continue
		}
		seen[v.Version] = true
		versions = append(versions, v)
	}

	s.mu.Lock()
	s.versions = versions
	s.mu.Unlock()
}

func (s *PHP) FetchExtensions(ctx context.Context) {
	defer s.begin()()

	var list []PHPExtension
	if err := s.client.Invoke(ctx, CmdGetPHPExtensions, nil, &list); err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("fetch php extensions failed")
		return
	}
	s.mu.Lock()
	s.extensions = list
	s.mu.Unlock()
}

// CheckPPA refreshes the cached PPA status.
func (s *PHP) CheckPPA(ctx context.Context) {
	defer s.begin()()

	var st PPAStatus
	if err := s.client.Invoke(ctx, CmdCheckPHPPPA, nil, &st); err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("check php ppa failed")
		return
	}
	s.mu.Lock()
	s.ppa = &st
	s.mu.Unlock()
}

func (s *PHP) SwitchVersion(ctx context.Context, version string) error {
	defer s.begin(FlagSwitching)()

	if err := s.client.Invoke(ctx, CmdSwitchPHPVersion, map[string]any{"version": version}, nil); err != nil {
		return s.fail(err)
	}
	log.Info().Str("version", version).Msg("switched php version")
	s.FetchVersions(ctx)
	return nil
}

// InstallVersion installs version without extension selection and without
// progress reporting.
func (s *PHP) InstallVersion(ctx context.Context, version string) error {
	defer s.begin(FlagInstalling)()

	args := map[string]any{"version": version, "package_manager": s.packageManager()}
	if err := s.client.Invoke(ctx, CmdInstallPHPVersion, args, nil); err != nil {
		return s.fail(err)
	}
	s.FetchVersions(ctx)
	return nil
}

func (s *PHP) InstallWithExtensions(ctx context.Context, version string, extensions []string) error {
	if extensions == nil {
		extensions = []string{}
	}
	args := map[string]any{
		"version":         version,
		"extensions":      extensions,
		"package_manager": s.packageManager(),
	}
	return s.withProgress(ctx, progress.KindInstall, FlagInstalling, s.timings.InstallMinDisplay, s.timings.InstallLinger, func() error {
		if err := s.client.Invoke(ctx, CmdInstallPHPWithExtensions, args, nil); err != nil {
			return err
		}
		s.FetchVersions(ctx)
		return nil
	})
}

func (s *PHP) UninstallVersion(ctx context.Context, version string) error {
	args := map[string]any{"version": version, "package_manager": s.packageManager()}
	return s.withProgress(ctx, progress.KindUninstall, FlagUninstalling, s.timings.InstallMinDisplay, s.timings.InstallLinger, func() error {
		if err := s.client.Invoke(ctx, CmdUninstallPHPVersion, args, nil); err != nil {
			return err
		}
		s.FetchVersions(ctx)
		return nil
	})
}

// AddPPA provisions the ondrej/php repository and re-checks its status.
func (s *PHP) AddPPA(ctx context.Context) error {
	return s.withProgress(ctx, progress.KindPPA, FlagAddingPPA, s.timings.PPAMinDisplay, s.timings.PPALinger, func() error {
		if err := s.client.Invoke(ctx, CmdAddPHPPPA, nil, nil); err != nil {
			return err
		}
		s.CheckPPA(ctx)
		return nil
	})
}

// withProgress runs fn with flag raised and kind open for progress events.
// The flag stays up for at least minDisplay, then the record lingers for
// linger before it is cleared.
func (s *PHP) withProgress(ctx context.Context, kind progress.Kind, flag string, minDisplay, linger time.Duration, fn func() error) error {
	end := s.begin(flag)
	started := time.Now()
	defer func() {
		s.progress.Hold(started, minDisplay)
		end()
		s.progress.Finish(kind, linger)
	}()

	if err := s.sub.Ensure(ctx); err != nil {
		return s.fail(err)
	}
	s.progress.Start(kind)

	if err := fn(); err != nil {
		log.Warn().Err(err).Str("operation", string(kind)).Msg("php operation failed")
		return s.fail(err)
	}
	return nil
}

// Close drops the progress subscription and any pending linger timer.
func (s *PHP) Close() {
	s.sub.Release()
	s.progress.Close()
}

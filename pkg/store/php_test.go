package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-go-golems/servermark/pkg/backend/backendtest"
	"github.com/go-go-golems/servermark/pkg/events"
	"github.com/go-go-golems/servermark/pkg/progress"
	"github.com/go-go-golems/servermark/pkg/subscription"
	"github.com/stretchr/testify/require"
)

var testTimings = Timings{
	InstallMinDisplay: 100 * time.Millisecond,
	InstallLinger:     30 * time.Millisecond,
	PPAMinDisplay:     0,
	PPALinger:         50 * time.Millisecond,
}

func newPHPStore(t *testing.T, f *backendtest.Fake) (*PHP, *events.Bus) {
	t.Helper()
	bus := events.NewInMemoryBus()
	s := NewPHP(f, bus, NewSystem(f, "apt"), testTimings)
	t.Cleanup(func() {
		s.Close()
		_ = bus.Close()
	})
	return s, bus
}

func TestPHP_FetchVersionsReplacesDerivedState(t *testing.T) {
	f := backendtest.New().Reply(CmdGetPHPVersions, []PHPVersion{
		{Version: "8.3", Installed: true, Active: true, Path: "/usr/bin/php8.3"},
		{Version: "8.2", Installed: true},
		{Version: "7.4"},
	})
	s, _ := newPHPStore(t, f)

	s.FetchVersions(context.Background())
	require.False(t, s.Busy())
	require.Len(t, s.InstalledVersions(), 2)
	active, ok := s.ActiveVersion()
	require.True(t, ok)
	require.Equal(t, "8.3", active.Version)

	f.Reply(CmdGetPHPVersions, []PHPVersion{
		{Version: "8.4", Installed: true, Active: true},
		{Version: "8.3"},
	})
	s.FetchVersions(context.Background())

	installed := s.InstalledVersions()
	require.Len(t, installed, 1)
	require.Equal(t, "8.4", installed[0].Version)
	active, ok = s.ActiveVersion()
	require.True(t, ok)
	require.Equal(t, "8.4", active.Version)
	require.Len(t, s.Versions(), 2)

	f.Fail(CmdGetPHPVersions, "boom")
	s.FetchVersions(context.Background())
	require.False(t, s.Busy())
	require.Equal(t, "boom", s.LastError())
	require.Len(t, s.Versions(), 2, "stale list kept")
}

func TestPHP_InstallHonorsMinimumDisplay(t *testing.T) {
	f := backendtest.New().
		Reply(CmdInstallPHPWithExtensions, "installed").
		Reply(CmdGetPHPVersions, []PHPVersion{{Version: "8.3", Installed: true}})
	s, _ := newPHPStore(t, f)

	flagSeen := make(chan bool, 1)
	go func() {
		time.Sleep(40 * time.Millisecond)
		flagSeen <- s.Installing()
	}()

	started := time.Now()
	require.NoError(t, s.InstallWithExtensions(context.Background(), "8.3", []string{"cli", "fpm"}))
	require.GreaterOrEqual(t, time.Since(started), testTimings.InstallMinDisplay)
	require.True(t, <-flagSeen, "flag stays raised while the backend already answered")
	require.False(t, s.Installing())
	require.False(t, s.Busy())
	require.Equal(t, subscription.Subscribed, s.Subscription().State())
	require.Equal(t, 1, f.Count(CmdGetPHPVersions))

	call, _ := f.Last(CmdInstallPHPWithExtensions)
	require.JSONEq(t, `{"version":"8.3","extensions":["cli","fpm"],"package_manager":"apt"}`, string(call.Args))
}

func TestPHP_ProgressEventsReachProjector(t *testing.T) {
	f := backendtest.New()
	s, bus := newPHPStore(t, f)
	f.Handle(CmdUninstallPHPVersion, func(json.RawMessage) (any, error) {
		err := bus.Emit(events.PHPUninstallProgress, progress.Record{Step: "Removing PHP 8.1...", CurrentStep: 1, TotalSteps: 2, Status: progress.StatusRunning})
		return "removed", err
	}).Reply(CmdGetPHPVersions, []PHPVersion{})

	done := make(chan error, 1)
	go func() { done <- s.UninstallVersion(context.Background(), "8.1") }()

	require.Eventually(t, func() bool {
		rec, ok := s.Progress(progress.KindUninstall)
		return ok && rec.Step == "Removing PHP 8.1..."
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, <-done)
	require.Eventually(t, func() bool {
		_, ok := s.Progress(progress.KindUninstall)
		return !ok
	}, time.Second, 5*time.Millisecond, "record cleared after linger")

	// A straggler after the clear is dropped.
	require.NoError(t, bus.Emit(events.PHPUninstallProgress, progress.Record{Step: "late", Status: progress.StatusComplete}))
	time.Sleep(30 * time.Millisecond)
	_, ok := s.Progress(progress.KindUninstall)
	require.False(t, ok)
}

func TestPHP_LastProgressRecordWins(t *testing.T) {
	f := backendtest.New().Reply(CmdGetPHPVersions, []PHPVersion{{Version: "8.3", Installed: true}})
	bus := events.NewInMemoryBus()
	timings := testTimings
	timings.InstallMinDisplay = 0
	timings.InstallLinger = time.Second
	s := NewPHP(f, bus, NewSystem(f, "apt"), timings)
	t.Cleanup(func() {
		s.Close()
		_ = bus.Close()
	})

	const steps = 50
	f.Handle(CmdInstallPHPWithExtensions, func(json.RawMessage) (any, error) {
		for i := 1; i <= steps; i++ {
			rec := progress.Record{Step: "Installing php8.3 packages...", CurrentStep: i, TotalSteps: steps, Status: progress.StatusRunning}
			if i == steps {
				rec.Step, rec.Status = "PHP 8.3 installed", progress.StatusComplete
			}
			if err := bus.Emit(events.PHPInstallProgress, rec); err != nil {
				return nil, err
			}
		}
		return "installed", nil
	})

	require.NoError(t, s.InstallWithExtensions(context.Background(), "8.3", []string{"cli"}))
	rec, ok := s.Progress(progress.KindInstall)
	require.True(t, ok)
	require.Equal(t, progress.StatusComplete, rec.Status)
	require.Equal(t, steps, rec.CurrentStep)
	require.True(t, s.ProgressLingering(progress.KindInstall))
}

func TestPHP_UninstallHonorsMinimumDisplay(t *testing.T) {
	f := backendtest.New().
		Reply(CmdUninstallPHPVersion, "removed").
		Reply(CmdGetPHPVersions, []PHPVersion{})
	s, _ := newPHPStore(t, f)

	flagSeen := make(chan bool, 1)
	go func() {
		time.Sleep(40 * time.Millisecond)
		flagSeen <- s.Uninstalling()
	}()

	started := time.Now()
	require.NoError(t, s.UninstallVersion(context.Background(), "8.1"))
	require.GreaterOrEqual(t, time.Since(started), testTimings.InstallMinDisplay)
	require.True(t, <-flagSeen, "flag stays raised while the backend already answered")
	require.False(t, s.Uninstalling())
	require.False(t, s.Busy())
	require.Equal(t, 1, f.Count(CmdGetPHPVersions))

	call, _ := f.Last(CmdUninstallPHPVersion)
	require.JSONEq(t, `{"version":"8.1","package_manager":"apt"}`, string(call.Args))
}

func TestPHP_FailedAddPPAClearsFlagAndLingers(t *testing.T) {
	f := backendtest.New().Fail(CmdAddPHPPPA, "add-apt-repository failed")
	s, _ := newPHPStore(t, f)

	err := s.AddPPA(context.Background())
	require.Error(t, err)
	require.Equal(t, "add-apt-repository failed", s.LastError())
	require.False(t, s.AddingPPA())
	require.False(t, s.Busy())
	require.True(t, s.ProgressLingering(progress.KindPPA))
	require.Equal(t, 0, f.Count(CmdCheckPHPPPA))

	require.Eventually(t, func() bool {
		return !s.ProgressLingering(progress.KindPPA)
	}, time.Second, 5*time.Millisecond)
}

func TestPHP_AddPPARechecksStatus(t *testing.T) {
	f := backendtest.New().
		Reply(CmdAddPHPPPA, "ok").
		Reply(CmdCheckPHPPPA, PPAStatus{Installed: true, Name: "ondrej/php"})
	s, _ := newPHPStore(t, f)

	_, ok := s.PPA()
	require.False(t, ok)
	require.NoError(t, s.AddPPA(context.Background()))
	st, ok := s.PPA()
	require.True(t, ok)
	require.True(t, st.Installed)
}

func TestPHP_PackageManagerFromSystem(t *testing.T) {
	f := backendtest.New().
		Reply(CmdDetectSystem, SystemInfo{Distro: "arch", PackageManager: "pacman"}).
		Reply(CmdInstallPHPVersion, "ok").
		Reply(CmdGetPHPVersions, []PHPVersion{})
	bus := events.NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	sys := NewSystem(f, "dnf")
	s := NewPHP(f, bus, sys, testTimings)
	defer s.Close()

	require.NoError(t, s.InstallVersion(context.Background(), "8.2"))
	call, _ := f.Last(CmdInstallPHPVersion)
	require.JSONEq(t, `{"version":"8.2","package_manager":"dnf"}`, string(call.Args))

	sys.DetectSystem(context.Background())
	require.NoError(t, s.InstallVersion(context.Background(), "8.2"))
	call, _ = f.Last(CmdInstallPHPVersion)
	require.JSONEq(t, `{"version":"8.2","package_manager":"pacman"}`, string(call.Args))
}

func TestPHP_SwitchAndExtensions(t *testing.T) {
	f := backendtest.New().
		Reply(CmdSwitchPHPVersion, nil).
		Reply(CmdGetPHPVersions, []PHPVersion{{Version: "8.2", Installed: true, Active: true}}).
		Reply(CmdGetPHPExtensions, []PHPExtension{
			{Name: "cli", Category: "required", DefaultSelected: true},
			{Name: "xdebug", Category: "optional"},
			{Name: "mbstring", Category: "recommended", DefaultSelected: true},
		})
	s, _ := newPHPStore(t, f)

	require.NoError(t, s.SwitchVersion(context.Background(), "8.2"))
	require.Equal(t, []string{CmdSwitchPHPVersion, CmdGetPHPVersions}, f.Commands())
	require.False(t, s.Flag(FlagSwitching))

	s.FetchExtensions(context.Background())
	require.Len(t, s.Extensions(), 3)
	require.Equal(t, []string{"cli", "mbstring"}, s.DefaultExtensions())
}

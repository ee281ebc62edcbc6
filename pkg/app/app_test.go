package app

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/servermark/pkg/backend"
	"github.com/go-go-golems/servermark/pkg/backend/backendtest"
	"github.com/go-go-golems/servermark/pkg/config"
	"github.com/go-go-golems/servermark/pkg/events"
	"github.com/go-go-golems/servermark/pkg/protocol"
	"github.com/go-go-golems/servermark/pkg/store"
	"github.com/go-go-golems/servermark/pkg/tray"
	"github.com/stretchr/testify/require"
)

func fakeBackend() *backendtest.Fake {
	return backendtest.New().
		Reply(store.CmdDetectSystem, store.SystemInfo{Distro: "ubuntu", PackageManager: "apt"}).
		Reply(store.CmdDetectContainerRuntime, store.RuntimeInfo{Runtime: "docker", Available: true}).
		Reply(store.CmdListContainers, []store.Container{
			{ID: "c1", Name: "servermark-mysql", Status: store.ContainerStopped},
			{ID: "c2", Name: "servermark-redis", Status: store.ContainerRunning},
		}).
		Reply(store.CmdGetPHPVersions, []store.PHPVersion{{Version: "8.3", Installed: true, Active: true}}).
		Reply(store.CmdGetPHPExtensions, []store.PHPExtension{{Name: "cli", DefaultSelected: true}}).
		Reply(store.CmdListSites, []store.Site{{ID: "s1", Name: "blog", Path: "/srv/blog"}}).
		Reply(store.CmdGetSitesConfig, store.SitesConfig{TLD: "test", SitesPath: "/srv"})
}

type trayRuns struct {
	mu   sync.Mutex
	runs []tray.Action
}

func (r *trayRuns) record(action tray.Action, _ []tray.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, action)
}

func (r *trayRuns) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestApp_RefreshPopulatesStores(t *testing.T) {
	f := fakeBackend()
	a, err := New(context.Background(), Options{Client: f})
	require.NoError(t, err)
	defer func() { _ = a.Close(context.Background()) }()

	a.Refresh(context.Background())

	require.Empty(t, a.Errors())
	require.True(t, a.Containers.IsAvailable())
	require.Len(t, a.Containers.Containers(), 2)
	active, ok := a.PHP.ActiveVersion()
	require.True(t, ok)
	require.Equal(t, "8.3", active.Version)
	require.Equal(t, 1, a.Sites.SiteCount())
	cfg, ok := a.Sites.Config()
	require.True(t, ok)
	require.Equal(t, "test", cfg.TLD)
	require.Equal(t, "apt", a.System.PackageManager())
	require.Equal(t, 7, len(a.Services.Services()))

	// The system store is read before anything else.
	require.Equal(t, store.CmdDetectSystem, f.Commands()[0])
}

func TestApp_ErrorsByStore(t *testing.T) {
	f := fakeBackend().Fail(store.CmdGetSitesConfig, "sites.json is corrupt")
	a, err := New(context.Background(), Options{Client: f})
	require.NoError(t, err)
	defer func() { _ = a.Close(context.Background()) }()

	a.Refresh(context.Background())
	require.Equal(t, map[string]string{"sites": "sites.json is corrupt"}, a.Errors())
}

func TestApp_TrayIntentDrivesContainers(t *testing.T) {
	f := fakeBackend().Reply(store.CmdStartContainer, nil)
	var runs trayRuns
	a, err := New(context.Background(), Options{Client: f, OnTrayDone: runs.record})
	require.NoError(t, err)
	defer func() { _ = a.Close(context.Background()) }()

	a.Containers.DetectRuntime(context.Background())
	a.Containers.ListContainers(context.Background())
	f.ResetCalls()

	require.NoError(t, a.Bus.Emit(events.TrayStartAll, nil))
	require.Eventually(t, func() bool { return runs.count() == 1 }, time.Second, 5*time.Millisecond)

	call, ok := f.Last(store.CmdStartContainer)
	require.True(t, ok)
	require.JSONEq(t, `{"id":"c1"}`, string(call.Args))
	require.Equal(t, 1, f.Count(store.CmdStartContainer))
}

func TestApp_CloseReleasesEverything(t *testing.T) {
	f := fakeBackend().Reply(store.CmdStopContainer, nil)
	bus := events.NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	var runs trayRuns
	a, err := New(context.Background(), Options{Client: f, Bus: bus, OnTrayDone: runs.record})
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	// A shared bus stays usable but nobody listens for tray intents anymore.
	require.NoError(t, bus.Emit(events.TrayStopAll, nil))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, runs.count())

	err = f.Invoke(context.Background(), store.CmdListContainers, nil, nil)
	var opErr *backend.OpError
	require.True(t, stderrors.As(err, &opErr))
	require.Equal(t, protocol.ErrRuntime, opErr.Code)
}

func TestApp_CommandContext(t *testing.T) {
	cfg := config.Default()
	cfg.CommandTimeout = 20 * time.Millisecond
	a, err := New(context.Background(), Options{Client: fakeBackend(), Config: cfg})
	require.NoError(t, err)
	defer func() { _ = a.Close(context.Background()) }()

	ctx, cancel := a.CommandContext(context.Background())
	defer cancel()
	_, ok := ctx.Deadline()
	require.True(t, ok)

	cfg.CommandTimeout = 0
	ctx2, cancel2 := a.CommandContext(context.Background())
	defer cancel2()
	_, ok = ctx2.Deadline()
	require.False(t, ok)
}

func TestTimingsFromConfig(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, store.DefaultTimings(), Timings(cfg))
}

package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/go-go-golems/servermark/pkg/backend/backendtest"
	"github.com/go-go-golems/servermark/pkg/catalog"
	"github.com/stretchr/testify/require"
)

func availableRuntime(f *backendtest.Fake) *backendtest.Fake {
	return f.Reply(CmdDetectContainerRuntime, RuntimeInfo{Runtime: "docker", Version: "24.0.0", APIVersion: "1.43", Available: true})
}

func newContainerStore(t *testing.T, f *backendtest.Fake) *Containers {
	t.Helper()
	s := NewContainers(f, "servermark")
	s.DetectRuntime(context.Background())
	require.True(t, s.IsAvailable())
	f.ResetCalls()
	return s
}

func TestContainers_DetectRuntimeDegrades(t *testing.T) {
	f := backendtest.New().Fail(CmdDetectContainerRuntime, "docker not found")
	s := NewContainers(f, "servermark")

	s.DetectRuntime(context.Background())
	require.False(t, s.IsAvailable())
	require.Equal(t, "none", s.Runtime().Runtime)
	require.Equal(t, "docker not found", s.LastError())
	require.False(t, s.Busy())

	s.ListContainers(context.Background())
	require.Equal(t, 0, f.Count(CmdListContainers), "no runtime, no listing")
}

func TestContainers_CreateWithPortOverride(t *testing.T) {
	f := availableRuntime(backendtest.New()).
		Reply(CmdCreateContainer, "abc123").
		Reply(CmdListContainers, []Container{{ID: "abc123", Name: "servermark-redis", Image: "redis:7-alpine", Status: ContainerRunning}})
	s := newContainerStore(t, f)

	require.NoError(t, s.CreateContainer(context.Background(), "redis", "", map[int]int{6379: 16379}))

	call, ok := f.Last(CmdCreateContainer)
	require.True(t, ok)
	var args struct {
		Params CreateContainerParams `json:"params"`
	}
	require.NoError(t, call.Decode(&args))
	require.Equal(t, "redis:7-alpine", args.Params.Image)
	require.Equal(t, "servermark-redis", args.Params.Name)
	require.Equal(t, []catalog.PortMapping{{Host: 16379, Container: 6379, Protocol: "tcp"}}, args.Params.Ports)
	require.Equal(t, []catalog.VolumeMapping{{Name: "servermark_redis_data", Container: "/data", Description: "Persistent data"}}, args.Params.Volumes)

	require.Equal(t, []string{CmdCreateContainer, CmdListContainers}, f.Commands())
	require.Len(t, s.Running(), 1)
	require.False(t, s.Busy())
	require.Empty(t, s.LastError())

	svc, ok := s.Containers()[0].ServiceID(s.Prefix())
	require.True(t, ok)
	require.Equal(t, "redis", svc)
}

func TestContainers_PartialOverrideKeepsTemplateDefaults(t *testing.T) {
	f := availableRuntime(backendtest.New()).
		Reply(CmdCreateContainer, "m1").
		Reply(CmdListContainers, []Container{})
	s := newContainerStore(t, f)

	require.NoError(t, s.CreateContainer(context.Background(), "mailpit", "latest", map[int]int{1025: 2025}))

	call, _ := f.Last(CmdCreateContainer)
	var args struct {
		Params CreateContainerParams `json:"params"`
	}
	require.NoError(t, call.Decode(&args))
	require.Equal(t, "axllent/mailpit:latest", args.Params.Image)
	require.Equal(t, []catalog.PortMapping{
		{Host: 2025, Container: 1025, Protocol: "tcp"},
		{Host: 8025, Container: 8025, Protocol: "tcp"},
	}, args.Params.Ports)
	require.Empty(t, args.Params.Volumes)
	require.Contains(t, string(call.Args), `"environment":{}`)
}

func TestContainers_CreateUnknownServiceIssuesNoCommand(t *testing.T) {
	f := availableRuntime(backendtest.New())
	s := newContainerStore(t, f)

	err := s.CreateContainer(context.Background(), "phpmyadmin", "", nil)
	require.Error(t, err)
	require.True(t, stderrors.Is(err, ErrUnknownService))
	require.Empty(t, f.Calls())
	require.NotEmpty(t, s.LastError())
	require.False(t, s.Busy())
}

func TestContainers_FailedActionKeepsCollection(t *testing.T) {
	f := availableRuntime(backendtest.New()).
		Reply(CmdListContainers, []Container{
			{ID: "a", Name: "servermark-mysql", Status: ContainerStopped},
			{ID: "b", Name: "servermark-redis", Status: ContainerRunning},
			{ID: "b", Name: "servermark-redis", Status: ContainerRunning},
		}).
		Fail(CmdStartContainer, "port 3306 already allocated")
	s := newContainerStore(t, f)
	s.ListContainers(context.Background())
	require.Len(t, s.Containers(), 2, "duplicate ids are collapsed")

	err := s.StartContainer(context.Background(), "a")
	require.Error(t, err)
	require.Equal(t, "port 3306 already allocated", s.LastError())
	require.False(t, s.Busy())
	require.Equal(t, 1, f.Count(CmdListContainers), "no refresh after failure")
	require.Len(t, s.Stopped(), 1)

	f.Fail(CmdListContainers, "daemon gone")
	s.ListContainers(context.Background())
	require.Equal(t, "daemon gone", s.LastError())
	require.Len(t, s.Containers(), 2, "stale collection is kept")
}

func TestContainers_RestartStopsBeforeStarting(t *testing.T) {
	f := availableRuntime(backendtest.New()).
		Reply(CmdStopContainer, nil).
		Reply(CmdStartContainer, nil).
		Reply(CmdListContainers, []Container{})
	s := newContainerStore(t, f)

	require.NoError(t, s.RestartContainer(context.Background(), "a"))
	require.Equal(t, []string{CmdStopContainer, CmdListContainers, CmdStartContainer, CmdListContainers}, f.Commands())

	f.ResetCalls()
	f.Fail(CmdStopContainer, "no such container")
	require.Error(t, s.RestartContainer(context.Background(), "a"))
	require.Equal(t, []string{CmdStopContainer}, f.Commands())
}

func TestContainers_RemoveAndLogsArgs(t *testing.T) {
	f := availableRuntime(backendtest.New()).
		Reply(CmdRemoveContainer, nil).
		Reply(CmdListContainers, []Container{}).
		Handle(CmdGetContainerLogs, func(args json.RawMessage) (any, error) {
			return "ready to accept connections", nil
		})
	s := newContainerStore(t, f)

	require.NoError(t, s.RemoveContainer(context.Background(), "a", true))
	call, _ := f.Last(CmdRemoveContainer)
	require.JSONEq(t, `{"id":"a","force":true}`, string(call.Args))

	out, err := s.ContainerLogs(context.Background(), "a", 50)
	require.NoError(t, err)
	require.Equal(t, "ready to accept connections", out)
	call, _ = f.Last(CmdGetContainerLogs)
	require.JSONEq(t, `{"id":"a","lines":50}`, string(call.Args))

	_, err = s.Get("missing")
	require.True(t, stderrors.Is(err, ErrUnknownContainer))
}

func TestContainer_CreatedAt(t *testing.T) {
	c := Container{ID: "a", Created: "2024-01-15 10:30:00 +0000 UTC"}
	ts, err := c.CreatedAt()
	require.NoError(t, err)
	require.Equal(t, 2024, ts.Year())
	require.Equal(t, 15, ts.Day())

	_, err = Container{ID: "b"}.CreatedAt()
	require.Error(t, err)
}

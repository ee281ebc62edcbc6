package store

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type transitionLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *transitionLog) observe(id string, from, to ServiceStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, id+":"+string(from)+"->"+string(to))
}

func TestServices_StartStopTransitions(t *testing.T) {
	s := NewServices(nil)
	var log transitionLog
	s.Observe(log.observe)

	require.Equal(t, 7, s.StoppedCount())
	require.NoError(t, s.StartService(context.Background(), "redis"))
	require.Equal(t, 1, s.RunningCount())
	require.Equal(t, 6, s.StoppedCount())

	require.NoError(t, s.RestartService(context.Background(), "redis"))
	require.Equal(t, []string{
		"redis:stopped->starting",
		"redis:starting->running",
		"redis:running->stopping",
		"redis:stopping->stopped",
		"redis:stopped->starting",
		"redis:starting->running",
	}, log.steps)

	require.NoError(t, s.StopService(context.Background(), "redis"))
	svc, ok := s.Get("redis")
	require.True(t, ok)
	require.Equal(t, ServiceStopped, svc.Status)
	require.False(t, s.Busy())
}

func TestServices_UnknownService(t *testing.T) {
	s := NewServices([]Service{{ID: "nginx", Status: ServiceStopped}})

	err := s.StartService(context.Background(), "apache")
	require.True(t, stderrors.Is(err, ErrUnknownService))
	require.NotEmpty(t, s.LastError())

	// Unknown ids are ignored by UpdateStatus.
	s.UpdateStatus("apache", ServiceRunning)
	require.Equal(t, 0, s.RunningCount())
}

func TestServices_CanceledStartEndsInError(t *testing.T) {
	s := NewServices(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, s.StartService(ctx, "mysql"))
	svc, _ := s.Get("mysql")
	require.Equal(t, ServiceError, svc.Status)
	require.False(t, s.Busy())
}

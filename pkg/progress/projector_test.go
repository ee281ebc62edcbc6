package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func running(step string, cur, total int) Record {
	return Record{Step: step, CurrentStep: cur, TotalSteps: total, Status: StatusRunning}
}

func TestProjector_UpdateOutsideOperationIsDropped(t *testing.T) {
	p := NewProjector()
	defer p.Close()

	require.False(t, p.Update(KindInstall, running("Preparing", 1, 3)))
	_, ok := p.Get(KindInstall)
	require.False(t, ok)
}

func TestProjector_LingerThenClear(t *testing.T) {
	p := NewProjector()
	defer p.Close()

	p.Start(KindInstall)
	require.True(t, p.Update(KindInstall, running("Preparing", 1, 3)))
	rec, ok := p.Get(KindInstall)
	require.True(t, ok)
	require.Equal(t, 33, rec.Percent())

	p.Finish(KindInstall, 50*time.Millisecond)
	require.True(t, p.Lingering(KindInstall))

	// Late events still land while lingering.
	require.True(t, p.Update(KindInstall, Record{Step: "Done", CurrentStep: 3, TotalSteps: 3, Status: StatusComplete}))
	rec, ok = p.Get(KindInstall)
	require.True(t, ok)
	require.True(t, rec.Done())

	require.Eventually(t, func() bool {
		_, ok := p.Get(KindInstall)
		return !ok
	}, time.Second, 5*time.Millisecond)

	// ...but never after the linger fired.
	require.False(t, p.Update(KindInstall, running("late", 2, 3)))
	_, ok = p.Get(KindInstall)
	require.False(t, ok)
	require.Empty(t, p.Kinds())
}

func TestProjector_StartOverwritesStaleRecord(t *testing.T) {
	p := NewProjector()
	defer p.Close()

	p.Start(KindPPA)
	p.Update(KindPPA, running("Adding repository", 1, 3))
	p.Finish(KindPPA, 30*time.Millisecond)

	p.Start(KindPPA)
	_, ok := p.Get(KindPPA)
	require.False(t, ok, "new operation starts empty")

	// The old linger timer must not clear the new operation.
	time.Sleep(60 * time.Millisecond)
	require.True(t, p.Update(KindPPA, running("Updating apt", 2, 3)))
	rec, ok := p.Get(KindPPA)
	require.True(t, ok)
	require.Equal(t, "Updating apt", rec.Step)
}

func TestProjector_KindsAreIndependent(t *testing.T) {
	p := NewProjector()
	defer p.Close()

	p.Start(KindInstall)
	p.Start(KindUninstall)
	p.Update(KindInstall, running("a", 1, 2))
	p.Update(KindUninstall, running("b", 1, 2))
	p.Finish(KindUninstall, 0)

	_, ok := p.Get(KindUninstall)
	require.False(t, ok)
	rec, ok := p.Get(KindInstall)
	require.True(t, ok)
	require.Equal(t, "a", rec.Step)
	require.Equal(t, []Kind{KindInstall}, p.Kinds())
}

func TestProjector_HoldWaitsForMinimum(t *testing.T) {
	p := NewProjector()
	defer p.Close()

	started := time.Now()
	p.Hold(started, 80*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(started), 80*time.Millisecond)

	before := time.Now()
	p.Hold(started.Add(-time.Second), 80*time.Millisecond)
	require.Less(t, time.Since(before), 50*time.Millisecond)
}

func TestProjector_CloseStopsTimersAndReleasesHold(t *testing.T) {
	p := NewProjector()

	p.Start(KindInstall)
	p.Update(KindInstall, running("a", 1, 2))
	p.Finish(KindInstall, time.Hour)

	done := make(chan struct{})
	go func() {
		p.Hold(time.Now(), time.Hour)
		close(done)
	}()

	p.Close()
	p.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "hold did not return after close")
	}
	_, ok := p.Get(KindInstall)
	require.False(t, ok)
	require.False(t, p.Update(KindInstall, running("b", 2, 2)))
}

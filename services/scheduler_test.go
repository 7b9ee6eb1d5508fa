package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scholar-trace/collectors"
	"scholar-trace/models"
)

// blockingCollector parks its first fetch until released, so tests can
// observe a run while it is in flight.
type blockingCollector struct {
	name      string
	targets   []collectors.Target
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
}

func newBlockingCollector(name string, targetCount int) *blockingCollector {
	targets := make([]collectors.Target, 0, targetCount)
	for i := 0; i < targetCount; i++ {
		targets = append(targets, collectors.Target{Key: name + "-target"})
	}
	return &blockingCollector{
		name:    name,
		targets: targets,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingCollector) Name() string { return b.name }

func (b *blockingCollector) Targets(ctx context.Context) ([]collectors.Target, error) {
	return b.targets, nil
}

func (b *blockingCollector) Fetch(ctx context.Context, target collectors.Target) ([]models.Candidate, error) {
	b.startOnce.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, chan *models.CollectorRun) {
	t.Helper()
	runner, _, _ := newTestRunner(t)
	sched := NewScheduler(runner.Config, runner, runner.Log, zap.NewNop())

	finished := make(chan *models.CollectorRun, 4)
	sched.OnRunFinished = func(run *models.CollectorRun) { finished <- run }
	return sched, finished
}

func waitStarted(t *testing.T, col *blockingCollector) {
	t.Helper()
	select {
	case <-col.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("collector %s never started fetching", col.name)
	}
}

func waitFinished(t *testing.T, finished chan *models.CollectorRun) *models.CollectorRun {
	t.Helper()
	select {
	case run := <-finished:
		return run
	case <-time.After(2 * time.Second):
		t.Fatal("run never finished")
		return nil
	}
}

func TestSchedulerRejectsSecondTriggerWhileInFlight(t *testing.T) {
	sched, finished := newTestScheduler(t)
	col := newBlockingCollector("govapi", 1)
	require.NoError(t, sched.Register(col, "@daily"))

	runID, err := sched.TriggerRun("govapi")
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	waitStarted(t, col)
	assert.True(t, sched.InFlight("govapi"))

	_, err = sched.TriggerRun("govapi")
	assert.ErrorIs(t, err, ErrRunInFlight)

	close(col.release)
	run := waitFinished(t, finished)
	assert.Equal(t, runID, run.RunID)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	require.Eventually(t, func() bool { return !sched.InFlight("govapi") },
		2*time.Second, 10*time.Millisecond)

	// The slot is free again: a fresh trigger dispatches a new run.
	col.release = make(chan struct{})
	close(col.release)
	nextID, err := sched.TriggerRun("govapi")
	require.NoError(t, err)
	assert.NotEqual(t, runID, nextID)
	waitFinished(t, finished)
}

func TestSchedulerParallelAcrossCollectors(t *testing.T) {
	sched, finished := newTestScheduler(t)
	colA := newBlockingCollector("govapi", 1)
	colB := newBlockingCollector("library", 1)
	require.NoError(t, sched.Register(colA, "@daily"))
	require.NoError(t, sched.Register(colB, "@daily"))
	assert.Equal(t, []string{"govapi", "library"}, sched.Names())

	_, err := sched.TriggerRun("govapi")
	require.NoError(t, err)
	_, err = sched.TriggerRun("library")
	require.NoError(t, err)

	waitStarted(t, colA)
	waitStarted(t, colB)
	assert.True(t, sched.InFlight("govapi"))
	assert.True(t, sched.InFlight("library"))

	close(colA.release)
	close(colB.release)
	waitFinished(t, finished)
	waitFinished(t, finished)
}

func TestSchedulerCancelRun(t *testing.T) {
	sched, finished := newTestScheduler(t)
	// Two targets: the first fetch is allowed to finish after the cancel
	// request; the checkpoint before the second target then ends the run.
	col := newBlockingCollector("govapi", 2)
	require.NoError(t, sched.Register(col, "@daily"))

	assert.False(t, sched.CancelRun("govapi"))

	_, err := sched.TriggerRun("govapi")
	require.NoError(t, err)
	waitStarted(t, col)

	assert.True(t, sched.CancelRun("govapi"))
	close(col.release)

	run := waitFinished(t, finished)
	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.True(t, run.Success)
	assert.Equal(t, 0, run.ErroredCount)
	assert.Empty(t, run.ErrorMessages)
}

func TestSchedulerUnknownCollector(t *testing.T) {
	sched, _ := newTestScheduler(t)

	_, err := sched.TriggerRun("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown collector")
	assert.False(t, sched.InFlight("nope"))
}

package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"scholar-trace/collectors"
	"scholar-trace/config"
	"scholar-trace/models"
)

// dispatchBackoff is the initial wait between dispatch retries; it doubles
// per attempt, bounded by Config.DispatchRetries.
const dispatchBackoff = 500 * time.Millisecond

// Scheduler fires collector runs on a recurring and an on-demand basis,
// serialized per collector and parallel across collectors. Dispatch is
// retried with exponential backoff on transient infrastructure failure;
// a failed run itself is never auto-retried.
type Scheduler struct {
	Config *config.Config
	Runner *Runner
	Log    *ActivityLog
	Logger *zap.Logger

	// OnRunFinished, when set, observes every terminal run (metrics hook).
	OnRunFinished func(run *models.CollectorRun)

	cron       *cron.Cron
	mu         sync.Mutex
	registered map[string]collectors.Collector
	inFlight   map[string]context.CancelFunc
}

// NewScheduler creates a scheduler with no collectors registered.
func NewScheduler(cfg *config.Config, runner *Runner, activity *ActivityLog, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Config:     cfg,
		Runner:     runner,
		Log:        activity,
		Logger:     logger,
		cron:       cron.New(),
		registered: make(map[string]collectors.Collector),
		inFlight:   make(map[string]context.CancelFunc),
	}
}

// Register wires a collector to an independent recurring trigger.
func (s *Scheduler) Register(col collectors.Collector, schedule string) error {
	name := col.Name()

	s.mu.Lock()
	s.registered[name] = col
	s.mu.Unlock()

	_, err := s.cron.AddFunc(schedule, func() {
		s.Logger.Info("Scheduled trigger fired", zap.String("collector", name))
		if _, err := s.TriggerRun(name); err != nil {
			if err == ErrRunInFlight {
				s.Log.Append(name, LogWarn, "scheduled run skipped: previous run still in flight")
				return
			}
			s.Logger.Error("Scheduled dispatch failed", zap.String("collector", name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register collector %s: %w", name, err)
	}
	return nil
}

// Names returns the registered collector names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.registered))
	for name := range s.registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins the recurring triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the recurring triggers and cancels every in-flight run.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, cancel := range s.inFlight {
		s.Logger.Info("Cancelling in-flight run on shutdown", zap.String("collector", name))
		cancel()
	}
}

// TriggerRun dispatches a run for the named collector on demand. At most
// one run per collector is in flight; a second trigger returns
// ErrRunInFlight rather than queueing. The run-record write is retried
// with bounded exponential backoff before giving up.
func (s *Scheduler) TriggerRun(name string) (string, error) {
	s.mu.Lock()
	col, ok := s.registered[name]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("unknown collector %q", name)
	}
	if _, busy := s.inFlight[name]; busy {
		s.mu.Unlock()
		return "", ErrRunInFlight
	}
	// Reserve the slot before releasing the lock so concurrent triggers
	// cannot both dispatch.
	ctx, cancel := context.WithCancel(context.Background())
	s.inFlight[name] = cancel
	s.mu.Unlock()

	run, err := s.prepareWithRetry(name)
	if err != nil {
		s.release(name)
		cancel()
		return "", err
	}

	go func() {
		defer s.release(name)
		defer cancel()

		finished, execErr := s.Runner.Execute(ctx, run, col)
		if execErr != nil {
			// Setup failures are surfaced for manual re-trigger, never
			// auto-retried.
			s.Logger.Error("Collector run failed",
				zap.String("collector", name),
				zap.String("run_id", run.RunID),
				zap.Error(execErr))
		}
		if s.OnRunFinished != nil && finished != nil {
			s.OnRunFinished(finished)
		}
	}()

	return run.RunID, nil
}

// CancelRun asks the in-flight run of a collector to stop cooperatively.
// It reports whether a run was in flight.
func (s *Scheduler) CancelRun(name string) bool {
	s.mu.Lock()
	cancel, ok := s.inFlight[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	s.Log.Append(name, LogInfo, "cancellation requested for in-flight run")
	return true
}

// InFlight reports whether the collector currently has a run in flight.
func (s *Scheduler) InFlight(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[name]
	return ok
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, name)
}

// prepareWithRetry retries the transient dispatch step (creating the run
// record) with exponential backoff.
func (s *Scheduler) prepareWithRetry(name string) (*models.CollectorRun, error) {
	backoff := dispatchBackoff
	attempts := s.Config.DispatchRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		run, err := s.Runner.Prepare(name)
		if err == nil {
			return run, nil
		}
		lastErr = err
		if attempt < attempts {
			s.Logger.Warn("Run dispatch failed, backing off",
				zap.String("collector", name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("dispatch for %s exhausted %d attempts: %w", name, attempts, lastErr)
}

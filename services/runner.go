package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"scholar-trace/collectors"
	"scholar-trace/config"
	"scholar-trace/models"
)

// runUpdateEvery is how many targets pass between run-row checkpoints.
const runUpdateEvery = 5

// Runner executes one collector run: a strictly sequential target loop
// with control-state and cancellation checkpoints, per-target fetch
// timeouts, per-record failure isolation, and a fixed inter-target delay.
// Per-record and per-target failures become counters and log lines; only
// a SetupFailure aborts the run.
type Runner struct {
	Config  *config.Config
	DB      *gorm.DB
	Merge   *MergeService
	Control *ControlStore
	Log     *ActivityLog
	Logger  *zap.Logger
}

func NewRunner(cfg *config.Config, db *gorm.DB, merge *MergeService, control *ControlStore, activity *ActivityLog, logger *zap.Logger) *Runner {
	return &Runner{Config: cfg, DB: db, Merge: merge, Control: control, Log: activity, Logger: logger}
}

// Prepare creates the run record in the created state. Kept separate from
// Execute so the scheduler can retry this one transient dispatch step.
func (r *Runner) Prepare(source string) (*models.CollectorRun, error) {
	run := &models.CollectorRun{
		RunID:     uuid.NewString(),
		Source:    source,
		Status:    models.RunStatusCreated,
		StartedAt: time.Now().UTC(),
	}
	if err := r.DB.Create(run).Error; err != nil {
		return nil, &PersistenceError{Op: "create run record", Err: err}
	}
	return run, nil
}

// Execute drives the prepared run against the collector. The run receives
// exactly one terminal status: completed, cancelled (cooperative stop,
// still a success with partial totals) or failed (setup failure only).
func (r *Runner) Execute(ctx context.Context, run *models.CollectorRun, col collectors.Collector) (*models.CollectorRun, error) {
	name := col.Name()
	log := r.Logger.With(zap.String("collector", name), zap.String("run_id", run.RunID))

	r.Log.Append(name, LogInfo, fmt.Sprintf("run %s started", run.RunID))

	targets, err := col.Targets(ctx)
	if err != nil {
		failure := &SetupFailure{Err: err}
		r.recordError(run, failure.Error())
		r.finalize(run, models.RunStatusFailed, false)
		r.Log.Append(name, LogError, fmt.Sprintf("run %s failed during setup: %v", run.RunID, err))
		return run, failure
	}

	run.Status = models.RunStatusRunning
	r.touch(run)
	log.Info("Run started", zap.Int("targets", len(targets)))

	interrupted := false

targetLoop:
	for i, target := range targets {
		if i > 0 {
			if !r.pause(ctx) {
				interrupted = true
				break
			}
		}
		if err := r.checkpoint(ctx, name); err != nil {
			interrupted = true
			break
		}

		// The fetch timeout is deliberately detached from the run context:
		// a stop or cancel request takes effect at the next checkpoint,
		// never by aborting an in-flight fetch.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.Config.FetchTimeout())
		candidates, fetchErr := col.Fetch(fetchCtx, target)
		cancel()
		if fetchErr != nil {
			run.ErroredCount++
			srcErr := &TransientSourceError{Target: target.Key, Err: fetchErr}
			r.recordError(run, srcErr.Error())
			r.Log.Append(name, LogWarn, srcErr.Error())
			continue
		}

		for _, candidate := range candidates {
			if err := r.checkpoint(ctx, name); err != nil {
				interrupted = true
				break targetLoop
			}

			result, pubResult, mergeErr := r.Merge.UpsertResearcherWithPublication(candidate, candidate.Provenance)
			if mergeErr != nil {
				run.ErroredCount++
				r.recordError(run, mergeErr.Error())
				r.Log.Append(name, LogWarn, fmt.Sprintf("candidate rejected: %v", mergeErr))
				continue
			}

			if result.Created || (pubResult != nil && pubResult.Created) {
				run.CreatedCount++
			} else {
				run.SkippedCount++
			}

			if candidate.Provenance.Source == EnrichmentSource {
				if enrichErr := r.Merge.AdvanceEnrichment(result.ID, candidate.Provenance); enrichErr != nil {
					r.Log.Append(name, LogWarn, fmt.Sprintf("enrichment advance failed: %v", enrichErr))
				}
			}
		}

		if (i+1)%runUpdateEvery == 0 {
			r.touch(run)
			r.Log.Append(name, LogInfo, fmt.Sprintf("run %s progress: %d/%d targets, created=%d skipped=%d errored=%d",
				run.RunID, i+1, len(targets), run.CreatedCount, run.SkippedCount, run.ErroredCount))
		}
	}

	status := models.RunStatusCompleted
	if interrupted {
		status = models.RunStatusCancelled
	}
	// A cooperative stop is not an error: partial totals, success = true.
	r.finalize(run, status, true)

	r.Log.Append(name, LogInfo, fmt.Sprintf("run %s %s: created=%d skipped=%d errored=%d",
		run.RunID, status, run.CreatedCount, run.SkippedCount, run.ErroredCount))
	log.Info("Run finished",
		zap.String("status", status),
		zap.Int("created", run.CreatedCount),
		zap.Int("skipped", run.SkippedCount),
		zap.Int("errored", run.ErroredCount))
	return run, nil
}

// checkpoint enforces the cooperative stop contract: consulted before each
// target and before each candidate, never mid-fetch.
func (r *Runner) checkpoint(ctx context.Context, name string) error {
	if ctx.Err() != nil {
		return ErrControlInterrupt
	}
	if !r.Control.ShouldRun(name) {
		return ErrControlInterrupt
	}
	return nil
}

// pause applies the fixed inter-target delay; returns false if the run
// was cancelled while waiting.
func (r *Runner) pause(ctx context.Context) bool {
	delay := r.Config.TargetDelay()
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// recordError appends to the bounded error-message list.
func (r *Runner) recordError(run *models.CollectorRun, message string) {
	var messages []string
	if len(run.ErrorMessages) > 0 {
		_ = json.Unmarshal(run.ErrorMessages, &messages)
	}
	if len(messages) >= r.Config.RunErrorCap {
		return
	}
	messages = append(messages, message)
	if encoded, err := json.Marshal(messages); err == nil {
		run.ErrorMessages = datatypes.JSON(encoded)
	}
}

// touch persists the current counters and bumps the last-activity stamp.
// A write failure here only costs a progress checkpoint.
func (r *Runner) touch(run *models.CollectorRun) {
	now := time.Now().UTC()
	run.LastActivityAt = &now
	if err := r.DB.Save(run).Error; err != nil {
		r.Logger.Warn("Failed to checkpoint run record", zap.String("run_id", run.RunID), zap.Error(err))
	}
}

// finalize sets the terminal status exactly once.
func (r *Runner) finalize(run *models.CollectorRun, status string, success bool) {
	run.Status = status
	run.Success = success
	r.touch(run)
}

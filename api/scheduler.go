/*
scheduler.go - Periodic recurring-transaction materialization

PURPOSE:
  Runs MaterializeAll on a fixed interval so recurring rules catch up
  without anyone calling the API. Every pass, scheduled or manual, is
  recorded as a materialization run for audit and UI display.

DESIGN:
  - A background goroutine with a ticker; one pass immediately on Start
  - Passes never overlap: a tick that arrives while a pass is running waits
  - Materialization is idempotent, so a missed or repeated tick is harmless

CONFIGURATION:
  - Interval: How often to run (default: 1 hour)
  - Enabled:  Whether the scheduler starts at all (default: true)

USAGE:
  scheduler := NewMaterializationScheduler(runner, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - recurring.go: ProcessAll endpoint (manual trigger)
  - finance/materialize.go: MaterializeAll
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/finance-tracker/finance"
	"github.com/warp/finance-tracker/store/sqlite"
)

// Run triggers.
const (
	TriggerScheduler = "scheduler"
	TriggerAPI       = "api"
	TriggerCLI       = "cli"
)

// =============================================================================
// BATCH RUNNER
// =============================================================================

// RunRecorder persists materialization run records.
type RunRecorder interface {
	SaveRun(ctx context.Context, r sqlite.MaterializationRun) error
}

// BatchRunner wraps MaterializeAll with a persisted run record.
type BatchRunner struct {
	Runs      RunRecorder
	Engine    *finance.Materializer
	SafetyCap int
	Logger    logrus.FieldLogger

	mu sync.Mutex
}

func NewBatchRunner(runs RunRecorder, engine *finance.Materializer, safetyCap int, logger logrus.FieldLogger) *BatchRunner {
	return &BatchRunner{Runs: runs, Engine: engine, SafetyCap: safetyCap, Logger: logger}
}

// Run materializes every active rule as of asOf and records the pass. Rule
// failures are part of the result; the returned error is reserved for a pass
// that could not start or could not run. Once MaterializeAll has committed,
// a failure to close the run record is only logged: the ledger is already
// written and the run stays "running" in the history.
func (br *BatchRunner) Run(ctx context.Context, trigger string, asOf finance.Date) (sqlite.MaterializationRun, finance.BatchResult, error) {
	br.mu.Lock()
	defer br.mu.Unlock()

	run := sqlite.MaterializationRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		AsOf:      asOf,
		Status:    sqlite.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	log := br.Logger.WithFields(logrus.Fields{"run_id": run.ID, "trigger": trigger, "as_of": asOf.String()})

	if err := br.Runs.SaveRun(ctx, run); err != nil {
		return run, finance.BatchResult{}, fmt.Errorf("failed to save run record: %w", err)
	}

	batch, err := br.Engine.MaterializeAll(ctx, asOf, br.SafetyCap)
	run.Complete(batch, err)
	if saveErr := br.Runs.SaveRun(ctx, run); saveErr != nil {
		log.WithError(saveErr).Error("BatchRunner.Run.SaveFailed")
	}
	if err != nil {
		log.WithError(err).Error("BatchRunner.Run.Error")
		return run, batch, err
	}

	log.WithFields(logrus.Fields{
		"total_created": batch.TotalCreated,
		"processed":     batch.Processed,
		"failed":        batch.Failed,
	}).Info("BatchRunner.Run.Complete")
	return run, batch, nil
}

// =============================================================================
// SCHEDULER
// =============================================================================

// MaterializationScheduler runs BatchRunner on a ticker.
type MaterializationScheduler struct {
	Runner   *BatchRunner
	Interval time.Duration
	Enabled  bool
	Logger   logrus.FieldLogger
	Today    func() finance.Date

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewMaterializationScheduler(runner *BatchRunner, logger logrus.FieldLogger) *MaterializationScheduler {
	return &MaterializationScheduler{
		Runner:   runner,
		Interval: time.Hour,
		Enabled:  true,
		Logger:   logger,
		Today:    finance.Today,
	}
}

// Start begins the scheduler. It is a no-op when disabled or already running.
func (ms *MaterializationScheduler) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		ms.Logger.Info("Scheduler.Disabled")
		return
	}
	if ms.ticker != nil {
		return
	}

	ms.ticker = time.NewTicker(ms.Interval)
	ms.stop = make(chan struct{})
	ms.wg.Add(1)
	go ms.run()

	ms.Logger.WithField("interval", ms.Interval.String()).Info("Scheduler.Started")
}

// Stop stops the scheduler and waits for a pass in progress to finish.
func (ms *MaterializationScheduler) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ticker == nil {
		return
	}
	ms.ticker.Stop()
	close(ms.stop)
	ms.wg.Wait()
	ms.ticker = nil
	ms.Logger.Info("Scheduler.Stopped")
}

func (ms *MaterializationScheduler) run() {
	defer ms.wg.Done()

	ms.RunNow()
	for {
		select {
		case <-ms.ticker.C:
			ms.RunNow()
		case <-ms.stop:
			return
		}
	}
}

// RunNow performs one pass immediately.
func (ms *MaterializationScheduler) RunNow() {
	ctx := context.Background()
	if _, _, err := ms.Runner.Run(ctx, TriggerScheduler, ms.Today()); err != nil {
		ms.Logger.WithError(err).Error("Scheduler.RunFailed")
	}
}

// NextRunTime estimates when the next tick fires.
func (ms *MaterializationScheduler) NextRunTime() time.Time {
	return time.Now().Add(ms.Interval)
}

// Package scheduler runs the recurring jobs that drive the lifecycle engine:
// hourly recheck, six-hour automated sweep, notification flush, daily morning
// batch, and daily cleanup.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/towops/impound/internal/config"
	"github.com/towops/impound/internal/notify"
	"github.com/towops/impound/internal/store"
	"github.com/towops/impound/internal/workflow"
)

// jobTimeout bounds a single job run. A timed-out job is a transient failure
// retried on its next tick, never within the same tick.
const jobTimeout = 5 * time.Minute

// Job names.
const (
	JobRecheck      = "recheck"
	JobSweep        = "sweep"
	JobNotifyFlush  = "notify_flush"
	JobMorningBatch = "morning_batch"
	JobCleanup      = "cleanup"
)

// JobStatus describes one scheduled job for the management surface.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type jobState struct {
	entryID   cron.EntryID
	schedule  string
	lastRun   time.Time
	lastError string
}

// Scheduler owns the cron timers. It is constructed explicitly and passed to
// its collaborators; there is no ambient global instance.
type Scheduler struct {
	engine     *workflow.Engine
	dispatcher *notify.Dispatcher
	store      *store.Store
	cfg        *config.Config
	cron       *cron.Cron

	mu          sync.Mutex
	jobs        map[string]*jobState
	actionsCache []workflow.Action
	actionsAt    time.Time

	baseCtx context.Context
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	Engine     *workflow.Engine
	Dispatcher *notify.Dispatcher
	Store      *store.Store
	Config     *config.Config
}

// New creates a Scheduler and registers its five jobs. Call Start to begin.
func New(opts Opts) (*Scheduler, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("scheduler: engine is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("scheduler: dispatcher is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("scheduler: store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Scheduler{
		engine:     opts.Engine,
		dispatcher: opts.Dispatcher,
		store:      opts.Store,
		cfg:        cfg,
		cron:       cron.New(),
		jobs:       make(map[string]*jobState),
		baseCtx:    context.Background(),
	}

	morning := fmt.Sprintf("0 %d * * *", cfg.Schedule.MorningHour)

	specs := []struct {
		name string
		expr string
		run  func(context.Context) error
	}{
		{JobRecheck, cfg.Schedule.Recheck, s.runRecheck},
		{JobSweep, cfg.Schedule.Sweep, s.runSweep},
		{JobNotifyFlush, cfg.Schedule.NotifyFlush, s.runNotifyFlush},
		{JobMorningBatch, morning, s.runMorningBatch},
		{JobCleanup, cfg.Schedule.Cleanup, s.runCleanup},
	}

	for _, spec := range specs {
		spec := spec
		id, err := s.cron.AddFunc(spec.expr, func() { s.runJob(spec.name, spec.run) })
		if err != nil {
			return nil, fmt.Errorf("scheduler: register %s (%q): %w", spec.name, spec.expr, err)
		}
		s.jobs[spec.name] = &jobState{entryID: id, schedule: spec.expr}
	}

	return s, nil
}

// Start begins the timers. ctx cancellation is propagated to running jobs,
// which finish their current vehicle and stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the timers and waits for any running job to finish, bounded by
// ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		log.Printf("scheduler: stop timed out waiting for running jobs")
	}
}

// runJob executes one job with a bounded context and records its outcome.
func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	if base.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(base, jobTimeout)
	defer cancel()

	err := run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.jobs[name]
	st.lastRun = time.Now()
	if err != nil {
		st.lastError = err.Error()
		log.Printf("scheduler: job %s failed: %v", name, err)
	} else {
		st.lastError = ""
	}
}

// runRecheck recomputes due actions and refreshes the dashboard snapshot.
// Read-only: no mutation.
func (s *Scheduler) runRecheck(ctx context.Context) error {
	actions, err := s.engine.AllDueActions(ctx)
	if err != nil {
		return err
	}
	counts := make(map[string]int)
	for _, a := range actions {
		counts[a.PriorityStr]++
	}
	log.Printf("scheduler: recheck: %d due actions (urgent=%d high=%d medium=%d low=%d)",
		len(actions), counts["urgent"], counts["high"], counts["medium"], counts["low"])

	s.mu.Lock()
	s.actionsCache = actions
	s.actionsAt = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) runSweep(ctx context.Context) error {
	result, err := s.engine.RunAutomatedSweep(ctx)
	if err != nil {
		return err
	}
	log.Printf("scheduler: sweep %s: processed=%d advanced=%d errors=%d",
		result.SweepID, result.Processed, result.Advanced, len(result.Errors))
	return nil
}

func (s *Scheduler) runNotifyFlush(ctx context.Context) error {
	result, err := s.dispatcher.FlushPending(ctx)
	if err != nil {
		return err
	}
	if result.Sent > 0 || result.Failed > 0 || result.Remaining > 0 {
		log.Printf("scheduler: notify flush: sent=%d failed=%d remaining=%d",
			result.Sent, result.Failed, result.Remaining)
	}
	return nil
}

func (s *Scheduler) runMorningBatch(ctx context.Context) error {
	result, err := s.engine.MorningBatch(ctx)
	if err != nil {
		return err
	}
	log.Printf("scheduler: morning batch: sweep=%s escalated=%d errors=%d",
		result.Sweep.SweepID, result.Escalated, len(result.Errors))
	return nil
}

// runCleanup deletes notification records and closed history entries older
// than the retention window.
func (s *Scheduler) runCleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.Schedule.RetentionDays)

	notifs, err := s.store.PurgeNotifications(ctx, cutoff)
	if err != nil {
		return err
	}
	entries, err := s.store.PurgeClosedHistory(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Printf("scheduler: cleanup: purged %d notifications, %d history entries (before %s)",
		notifs, entries, cutoff.Format("2006-01-02"))
	return nil
}

// TriggerSweep runs the automated sweep immediately, outside its cadence.
// Safe alongside the timer: the sweep is idempotent.
func (s *Scheduler) TriggerSweep(ctx context.Context) (workflow.SweepResult, error) {
	return s.engine.RunAutomatedSweep(ctx)
}

// Status reports every job with its schedule and next fire time.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := []string{JobRecheck, JobSweep, JobNotifyFlush, JobMorningBatch, JobCleanup}
	out := make([]JobStatus, 0, len(names))
	for _, name := range names {
		st := s.jobs[name]
		out = append(out, JobStatus{
			Name:      name,
			Schedule:  st.schedule,
			NextRun:   s.cron.Entry(st.entryID).Next,
			LastRun:   st.lastRun,
			LastError: st.lastError,
		})
	}
	return out
}

// ActionsSnapshot returns the cached due-action list and when it was taken.
// The dashboard recomputes on demand when the snapshot is stale or absent.
func (s *Scheduler) ActionsSnapshot() ([]workflow.Action, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actionsCache, s.actionsAt
}

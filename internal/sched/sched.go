// Package sched runs the daemon's recurring work: fixed-interval sweeps and
// wall-clock daily triggers.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Task is a fixed-interval job. Run receives a context bounded by Timeout
// (when set) and by the runner's lifetime.
type Task struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Job is a wall-clock daily trigger described by a cron spec.
type Job struct {
	Name string
	Spec string // standard five-field cron, evaluated in the runner's location
	Run  func(ctx context.Context)
}

type task struct {
	Task
	mu sync.Mutex // overlap guard
}

// Runner drives tasks and jobs until its context is canceled. Task failures
// are logged and never stop the schedule.
type Runner struct {
	loc   *time.Location
	tasks []*task
	jobs  []Job
	log   *slog.Logger
}

// NewRunner creates a scheduler evaluating cron specs in loc.
func NewRunner(loc *time.Location, log *slog.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{loc: loc, log: log.With("component", "sched")}
}

// AddTask registers a fixed-interval task. Tasks run once immediately on
// start, then on their interval.
func (r *Runner) AddTask(t Task) {
	r.tasks = append(r.tasks, &task{Task: t})
}

// AddJob registers a daily cron trigger.
func (r *Runner) AddJob(j Job) {
	r.jobs = append(r.jobs, j)
}

// Run blocks until ctx is canceled, then drains and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(r.loc))
	for _, j := range r.jobs {
		j := j
		if _, err := c.AddFunc(j.Spec, func() {
			r.log.Debug("cron trigger fired", "job", j.Name)
			j.Run(ctx)
		}); err != nil {
			return fmt.Errorf("cron job %s (%q): %w", j.Name, j.Spec, err)
		}
	}
	c.Start()
	defer func() {
		stopCtx := c.Stop()
		<-stopCtx.Done()
	}()

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range r.tasks {
		t := t
		g.Go(func() error {
			return r.runTask(ctx, t)
		})
	}
	return g.Wait()
}

func (r *Runner) runTask(ctx context.Context, t *task) error {
	ticker := time.NewTicker(t.Every)
	defer ticker.Stop()

	r.log.Info("task scheduled", "task", t.Name, "every", t.Every)
	r.fire(ctx, t)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.fire(ctx, t)
		}
	}
}

// fire runs one cycle, skipping it if the previous cycle is still going.
func (r *Runner) fire(ctx context.Context, t *task) {
	if !t.mu.TryLock() {
		r.log.Warn("task still running, skipping cycle", "task", t.Name)
		return
	}
	defer t.mu.Unlock()

	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := t.Run(runCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Error("task failed", "task", t.Name, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	r.log.Debug("task completed", "task", t.Name, "duration_ms", time.Since(start).Milliseconds())
}

package power

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stewarr/stewarr/internal/notify"
)

// Phase is the shutdown cycle's state.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseCheckingStreams Phase = "checking_streams"
	PhaseAwaitingRecheck Phase = "awaiting_recheck"
	PhaseShuttingDown    Phase = "shutting_down"
	PhaseDone            Phase = "done"
	PhaseFailed          Phase = "failed"
)

// StreamChecker reports playback activity. The Tautulli monitor satisfies this.
type StreamChecker interface {
	ActiveStreams(ctx context.Context) (bool, error)
}

// Clock is a wall-clock trigger time.
type Clock struct {
	Hour   int
	Minute int
}

// Schedule is the controller's timing configuration.
type Schedule struct {
	Location        *time.Location
	WeekdayWake     Clock
	WeekendWake     Clock
	ShutdownEnabled bool
	ShutdownAt      Clock
	Recheck         time.Duration
	Grace           time.Duration
}

// Controller runs the daily wake and shutdown state machines. Its state is
// in-memory only: losing it across a restart degrades to one duplicated or
// skipped wake and a shutdown cycle restarting from idle, never to a shutdown
// mid-stream.
type Controller struct {
	adapter Adapter
	streams StreamChecker
	sink    notify.Sink
	sched   Schedule
	log     *slog.Logger

	mu          sync.Mutex
	lastWakeDay string // local date of the last wake attempt
	phase       Phase
	phaseDay    string // local date the shutdown phase belongs to
	nextRecheck time.Time
}

// NewController creates a power controller.
func NewController(adapter Adapter, streams StreamChecker, sink notify.Sink, sched Schedule, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if sched.Location == nil {
		sched.Location = time.UTC
	}
	if sched.Recheck <= 0 {
		sched.Recheck = 30 * time.Minute
	}
	if sched.Grace <= 0 {
		sched.Grace = 30 * time.Minute
	}
	return &Controller{
		adapter: adapter,
		streams: streams,
		sink:    sink,
		sched:   sched,
		log:     log,
		phase:   PhaseIdle,
	}
}

// Phase returns the shutdown cycle's current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// wakeTrigger returns the wake time for the given local day.
func (c *Controller) wakeTrigger(local time.Time) time.Time {
	clock := c.sched.WeekdayWake
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		clock = c.sched.WeekendWake
	}
	return time.Date(local.Year(), local.Month(), local.Day(),
		clock.Hour, clock.Minute, 0, 0, c.sched.Location)
}

// WakeTick evaluates the wake schedule. It fires at most once per local day,
// any time within the grace window after the trigger; that makes it safe to
// call both from the cron trigger and from a frequent liveness task, and
// gives restarts inside the window a catch-up wake.
func (c *Controller) WakeTick(ctx context.Context, now time.Time) {
	local := now.In(c.sched.Location)
	day := local.Format("2006-01-02")
	trigger := c.wakeTrigger(local)

	c.mu.Lock()
	due := c.lastWakeDay != day &&
		!local.Before(trigger) && local.Before(trigger.Add(c.sched.Grace))
	if due {
		// Attempted, regardless of outcome: one wake per day.
		c.lastWakeDay = day
	}
	c.mu.Unlock()

	if !due {
		return
	}

	if c.adapter.Reachable(ctx) {
		c.log.Info("wake skipped, server already online", "trigger", trigger.Format("15:04"))
		return
	}

	if err := c.adapter.SendWake(ctx); err != nil {
		c.log.Error("wake failed", "error", err)
		c.sink.Notify(ctx, notify.ScopeServer,
			fmt.Sprintf("❌ Auto-wake failed at %s: %v", local.Format("15:04"), err), false)
		return
	}

	c.log.Info("wake signal sent", "trigger", trigger.Format("15:04"))
	c.sink.Notify(ctx, notify.ScopeServer,
		fmt.Sprintf("🔌 Server auto-start at %s, wake signal sent", local.Format("15:04")), false)
}

// TriggerShutdown starts the daily shutdown cycle. Called by the cron trigger
// at the configured time; a no-op when disabled or when today's cycle has
// already started.
func (c *Controller) TriggerShutdown(ctx context.Context, now time.Time) {
	if !c.sched.ShutdownEnabled {
		return
	}
	local := now.In(c.sched.Location)
	day := local.Format("2006-01-02")

	c.mu.Lock()
	c.rollOverLocked(day)
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseCheckingStreams
	c.phaseDay = day
	c.mu.Unlock()

	c.log.Info("shutdown cycle started", "trigger", local.Format("15:04"))
	c.checkStreams(ctx, now)
}

// ShutdownTick advances a pending recheck. Called from the frequent liveness
// task; a no-op unless a recheck is due.
func (c *Controller) ShutdownTick(ctx context.Context, now time.Time) {
	local := now.In(c.sched.Location)

	c.mu.Lock()
	c.rollOverLocked(local.Format("2006-01-02"))
	due := c.phase == PhaseAwaitingRecheck && !now.Before(c.nextRecheck)
	if due {
		c.phase = PhaseCheckingStreams
	}
	c.mu.Unlock()

	if due {
		c.checkStreams(ctx, now)
	}
}

// rollOverLocked resets a finished or stale cycle when the local day changes.
func (c *Controller) rollOverLocked(day string) {
	if c.phaseDay != "" && c.phaseDay != day && c.phase != PhaseIdle {
		c.log.Debug("shutdown cycle reset for new day", "prev_day", c.phaseDay)
		c.phase = PhaseIdle
		c.phaseDay = ""
	}
}

// checkStreams is the CHECKING_STREAMS state: shut down if the server is
// idle, otherwise wait out another recheck interval. Availability always
// wins over promptness; a stuck "always active" signal just means no
// shutdown today.
func (c *Controller) checkStreams(ctx context.Context, now time.Time) {
	active, err := c.streams.ActiveStreams(ctx)
	if err != nil {
		// Monitor unreachable: abandon this iteration, retry at the next
		// recheck. No notification for a transient probe failure.
		c.log.Error("stream check failed", "error", err)
		c.mu.Lock()
		c.phase = PhaseAwaitingRecheck
		c.nextRecheck = now.Add(c.sched.Recheck)
		c.mu.Unlock()
		return
	}

	if active {
		c.mu.Lock()
		c.phase = PhaseAwaitingRecheck
		c.nextRecheck = now.Add(c.sched.Recheck)
		c.mu.Unlock()

		c.log.Info("shutdown delayed, streams active", "recheck_in", c.sched.Recheck)
		c.sink.Notify(ctx, notify.ScopeServer,
			fmt.Sprintf("⏸ Shutdown delayed: streams active, rechecking in %d minutes",
				int(c.sched.Recheck.Minutes())), true)
		return
	}

	c.mu.Lock()
	c.phase = PhaseShuttingDown
	c.mu.Unlock()

	if err := c.adapter.Shutdown(ctx); err != nil {
		c.mu.Lock()
		c.phase = PhaseFailed
		c.mu.Unlock()

		c.log.Error("shutdown failed", "error", err)
		c.sink.Notify(ctx, notify.ScopeServer,
			fmt.Sprintf("❌ Scheduled shutdown failed: %v", err), false)
		return
	}

	c.mu.Lock()
	c.phase = PhaseDone
	c.mu.Unlock()

	c.log.Info("server shut down")
	c.sink.Notify(ctx, notify.ScopeServer, "🔌 Server shut down for the night", true)
}

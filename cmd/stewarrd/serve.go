package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/stewarr/stewarr/internal/backend"
	"github.com/stewarr/stewarr/internal/config"
	"github.com/stewarr/stewarr/internal/migrations"
	"github.com/stewarr/stewarr/internal/monitor"
	"github.com/stewarr/stewarr/internal/notify"
	"github.com/stewarr/stewarr/internal/power"
	"github.com/stewarr/stewarr/internal/recent"
	"github.com/stewarr/stewarr/internal/request"
	"github.com/stewarr/stewarr/internal/sched"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(configPath)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// cronSpec renders a daily wall-clock trigger; days uses cron day-of-week
// syntax ("*", "1-5", "0,6").
func cronSpec(c config.Clock, days string) string {
	return fmt.Sprintf("%d %d * * %s", c.Minute, c.Hour, days)
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}

	db, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	// === Stores ===
	requestStore := request.NewStore(db)
	notifiedStore := recent.NewStore(db)

	// === Notification sink ===
	var sink notify.Sink = notify.Discard{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID,
			cfg.Telegram.TopicID, cfg.Telegram.Silent, logger.With("component", "telegram"))
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		sink = tg
	} else {
		logger.Warn("telegram not configured, notifications disabled")
	}

	// === Clients (optional - nil if not configured) ===
	var radarr *backend.RadarrClient
	if cfg.Radarr != nil {
		radarr = backend.NewRadarrClient(cfg.Radarr.URL, cfg.Radarr.APIKey,
			cfg.Radarr.RootFolder, cfg.Radarr.QualityProfile, logger.With("component", "radarr"))
	}
	var sonarr *backend.SonarrClient
	if cfg.Sonarr != nil {
		sonarr = backend.NewSonarrClient(cfg.Sonarr.URL, cfg.Sonarr.APIKey,
			cfg.Sonarr.RootFolder, cfg.Sonarr.QualityProfile, logger.With("component", "sonarr"))
	}
	var tautulli *monitor.TautulliClient
	if cfg.Tautulli.URL != "" {
		tautulli = monitor.NewTautulliClient(cfg.Tautulli.URL, cfg.Tautulli.APIKey,
			logger.With("component", "tautulli"))
	}

	// === Services ===
	var tracker *request.Tracker
	if radarr != nil && sonarr != nil {
		tracker = request.NewTracker(requestStore, radarr, sonarr, sink, request.Config{
			FailAfter:         cfg.Tracker.FailAfter,
			ReconcileInterval: time.Duration(cfg.Tracker.ReconcileMinutes) * time.Minute,
			Retention:         time.Duration(cfg.Tracker.RetentionDays) * 24 * time.Hour,
		}, logger.With("component", "tracker"))
	} else {
		logger.Warn("radarr/sonarr not both configured, request tracking disabled")
	}

	var notifier *recent.Notifier
	if tautulli != nil {
		notifier = recent.NewNotifier(tautulli, notifiedStore, requestStore, sink, recent.Config{
			Overlap:   time.Duration(cfg.Recent.OverlapMinutes) * time.Minute,
			Retention: time.Duration(cfg.Recent.RetentionDays) * 24 * time.Hour,
		}, logger.With("component", "recent"))
	} else {
		logger.Warn("tautulli not configured, recently-added announcements disabled")
	}

	// === Power control ===
	var wol *power.WakeSender
	if cfg.Power.MAC != "" {
		wol, err = power.NewWakeSender(cfg.Power.MAC, cfg.Power.Broadcast)
		if err != nil {
			return fmt.Errorf("power: %w", err)
		}
	}
	var sshDown *power.SSHShutdown
	if cfg.Power.SSHHost != "" {
		sshDown = power.NewSSHShutdown(cfg.Power.SSHHost, cfg.Power.SSHUser, cfg.Power.SSHPassword)
	}
	var probe power.Prober
	if tautulli != nil {
		probe = tautulli
	}
	adapter := power.NewServerAdapter(wol, probe, sshDown, logger)

	weekdayWake, _ := config.ParseClock(cfg.Schedule.WeekdayWake)
	weekendWake, _ := config.ParseClock(cfg.Schedule.WeekendWake)
	shutdownAt, _ := config.ParseClock(cfg.Schedule.ShutdownAt)

	var streams power.StreamChecker
	if tautulli != nil {
		streams = tautulli
	}
	controller := power.NewController(adapter, streams, sink, power.Schedule{
		Location:        loc,
		WeekdayWake:     power.Clock(weekdayWake),
		WeekendWake:     power.Clock(weekendWake),
		ShutdownEnabled: cfg.Schedule.ShutdownEnabled && streams != nil,
		ShutdownAt:      power.Clock(shutdownAt),
		Recheck:         time.Duration(cfg.Schedule.RecheckMinutes) * time.Minute,
		Grace:           time.Duration(cfg.Schedule.GraceMinutes) * time.Minute,
	}, logger.With("component", "controller"))

	// === Schedule ===
	runner := sched.NewRunner(loc, logger)

	if tracker != nil {
		runner.AddTask(sched.Task{
			Name:    "reconcile",
			Every:   time.Duration(cfg.Tracker.ReconcileMinutes) * time.Minute,
			Timeout: 5 * time.Minute,
			Run:     tracker.Reconcile,
		})
		runner.AddTask(sched.Task{
			Name:    "prune-requests",
			Every:   6 * time.Hour,
			Timeout: time.Minute,
			Run: func(ctx context.Context) error {
				return tracker.Prune(ctx, time.Now().UTC())
			},
		})
	}
	if notifier != nil {
		runner.AddTask(sched.Task{
			Name:    "recently-added",
			Every:   time.Duration(cfg.Recent.SweepMinutes) * time.Minute,
			Timeout: 2 * time.Minute,
			Run:     notifier.Sweep,
		})
	}
	// The minute tick catches wakes missed by a restart inside the grace
	// window and drives shutdown rechecks.
	runner.AddTask(sched.Task{
		Name:  "power-tick",
		Every: time.Minute,
		Run: func(ctx context.Context) error {
			now := time.Now()
			controller.WakeTick(ctx, now)
			controller.ShutdownTick(ctx, now)
			return nil
		},
	})

	runner.AddJob(sched.Job{
		Name: "weekday-wake",
		Spec: cronSpec(weekdayWake, "1-5"),
		Run: func(ctx context.Context) {
			controller.WakeTick(ctx, time.Now())
		},
	})
	runner.AddJob(sched.Job{
		Name: "weekend-wake",
		Spec: cronSpec(weekendWake, "0,6"),
		Run: func(ctx context.Context) {
			controller.WakeTick(ctx, time.Now())
		},
	})
	if cfg.Schedule.ShutdownEnabled {
		runner.AddJob(sched.Job{
			Name: "shutdown",
			Spec: cronSpec(shutdownAt, "*"),
			Run: func(ctx context.Context) {
				controller.TriggerShutdown(ctx, time.Now())
			},
		})
	}

	logger.Info("daemon starting",
		"database", cfg.Database.Path,
		"timezone", cfg.Schedule.Timezone,
		"tracker", tracker != nil,
		"recently_added", notifier != nil,
		"telegram", cfg.Telegram.Token != "",
		"shutdown_enabled", cfg.Schedule.ShutdownEnabled,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	logger.Info("daemon stopped")
	return nil
}

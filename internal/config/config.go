// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Telegram TelegramConfig `toml:"telegram"`
	Radarr   *ArrConfig     `toml:"radarr"`
	Sonarr   *ArrConfig     `toml:"sonarr"`
	Tautulli TautulliConfig `toml:"tautulli"`
	Power    PowerConfig    `toml:"power"`
	Schedule ScheduleConfig `toml:"schedule"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Recent   RecentConfig   `toml:"recent"`
}

type ServerConfig struct {
	LogLevel string `toml:"log_level"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type TelegramConfig struct {
	Token   string `toml:"token"`
	ChatID  int64  `toml:"chat_id"`
	TopicID int    `toml:"topic_id"`
	Silent  bool   `toml:"silent"`
}

// ArrConfig configures a Radarr or Sonarr instance.
type ArrConfig struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	RootFolder     string `toml:"root_folder"`
	QualityProfile int    `toml:"quality_profile"`
}

type TautulliConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

type PowerConfig struct {
	MAC         string `toml:"mac"`
	Broadcast   string `toml:"broadcast"`
	SSHHost     string `toml:"ssh_host"`
	SSHUser     string `toml:"ssh_user"`
	SSHPassword string `toml:"ssh_password"`
}

type ScheduleConfig struct {
	Timezone        string `toml:"timezone"`
	WeekdayWake     string `toml:"weekday_wake"`
	WeekendWake     string `toml:"weekend_wake"`
	ShutdownEnabled bool   `toml:"shutdown_enabled"`
	ShutdownAt      string `toml:"shutdown_at"`
	RecheckMinutes  int    `toml:"recheck_minutes"`
	GraceMinutes    int    `toml:"grace_minutes"`
}

type TrackerConfig struct {
	ReconcileMinutes int `toml:"reconcile_minutes"`
	FailAfter        int `toml:"fail_after"`
	RetentionDays    int `toml:"retention_days"`
}

type RecentConfig struct {
	SweepMinutes   int `toml:"sweep_minutes"`
	OverlapMinutes int `toml:"overlap_minutes"`
	RetentionDays  int `toml:"retention_days"`
}

// Clock is a parsed HH:MM wall-clock time.
type Clock struct {
	Hour   int
	Minute int
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseClock parses an "HH:MM" string into a Clock.
func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return Clock{}, fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	var c Clock
	_, _ = fmt.Sscanf(s, "%d:%d", &c.Hour, &c.Minute)
	if c.Hour > 23 || c.Minute > 59 {
		return Clock{}, fmt.Errorf("clock time %q out of range", s)
	}
	return c, nil
}

// Location resolves the configured IANA timezone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Substitute environment variables
	content := substituteEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/stewarr.db"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "Australia/Melbourne"
	}
	if cfg.Schedule.WeekdayWake == "" {
		cfg.Schedule.WeekdayWake = "17:30"
	}
	if cfg.Schedule.WeekendWake == "" {
		cfg.Schedule.WeekendWake = "18:00"
	}
	if cfg.Schedule.ShutdownAt == "" {
		cfg.Schedule.ShutdownAt = "01:00"
	}
	if cfg.Schedule.RecheckMinutes == 0 {
		cfg.Schedule.RecheckMinutes = 30
	}
	if cfg.Schedule.GraceMinutes == 0 {
		cfg.Schedule.GraceMinutes = 30
	}
	if cfg.Tracker.ReconcileMinutes == 0 {
		cfg.Tracker.ReconcileMinutes = 15
	}
	if cfg.Tracker.FailAfter == 0 {
		cfg.Tracker.FailAfter = 5
	}
	if cfg.Tracker.RetentionDays == 0 {
		cfg.Tracker.RetentionDays = 30
	}
	if cfg.Recent.SweepMinutes == 0 {
		cfg.Recent.SweepMinutes = 5
	}
	if cfg.Recent.OverlapMinutes == 0 {
		cfg.Recent.OverlapMinutes = 2
	}
	if cfg.Recent.RetentionDays == 0 {
		cfg.Recent.RetentionDays = 30
	}
}

func validate(cfg *Config) error {
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	for name, s := range map[string]string{
		"schedule.weekday_wake": cfg.Schedule.WeekdayWake,
		"schedule.weekend_wake": cfg.Schedule.WeekendWake,
		"schedule.shutdown_at":  cfg.Schedule.ShutdownAt,
	} {
		if _, err := ParseClock(s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required when telegram.token is set")
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1] // Strip ${ and }
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return match // Leave unchanged if not found
	})
}

// Package config provides YAML-based configuration loading for the impound engine.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, loaded from impound.yaml.
type Config struct {
	Lot        string          `yaml:"lot"`
	DB         DBConfig        `yaml:"db"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Schedule   ScheduleConfig  `yaml:"schedule"`
	Notify     NotifyConfig    `yaml:"notify"`
	Dashboard  DashboardConfig `yaml:"dashboard"`
}

// DBConfig holds connection settings for the MySQL server.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

// ThresholdConfig holds the per-stage day thresholds that drive due actions.
type ThresholdConfig struct {
	NoticeDays             int `yaml:"notice_days"`
	UnknownOwnerNoticeDays int `yaml:"unknown_owner_notice_days"`
	ResponseDays           int `yaml:"response_days"`
	AuctionWindowDays      int `yaml:"auction_window_days"`
	ScrapWindowDays        int `yaml:"scrap_window_days"`
	RemovalWindowDays      int `yaml:"removal_window_days"`
	OverdueGraceDays       int `yaml:"overdue_grace_days"`
}

// ScheduleConfig holds cron expressions for the recurring jobs.
type ScheduleConfig struct {
	Recheck       string `yaml:"recheck"`
	Sweep         string `yaml:"sweep"`
	NotifyFlush   string `yaml:"notify_flush"`
	MorningHour   int    `yaml:"morning_hour"`
	Cleanup       string `yaml:"cleanup"`
	RetentionDays int    `yaml:"retention_days"`
}

// NotifyConfig controls outbound notification delivery.
type NotifyConfig struct {
	Command      string `yaml:"command"` // shell command template, e.g. "sendnotice '{{.Type}}' '{{.Recipient}}'"
	MaxAttempts  int    `yaml:"max_attempts"`
	OpsRecipient string `yaml:"ops_recipient"`
}

// DashboardConfig holds settings for the management HTTP surface.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied, for callers that run
// without a config file (tests, one-off commands).
func Default() *Config {
	cfg := &Config{Lot: "default"}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.User == "" {
		c.DB.User = "root"
	}
	if c.DB.Database == "" && c.Lot != "" {
		c.DB.Database = "impound_" + c.Lot
	}

	if c.Thresholds.NoticeDays == 0 {
		c.Thresholds.NoticeDays = 7
	}
	if c.Thresholds.UnknownOwnerNoticeDays == 0 {
		c.Thresholds.UnknownOwnerNoticeDays = 14
	}
	if c.Thresholds.ResponseDays == 0 {
		c.Thresholds.ResponseDays = 7
	}
	if c.Thresholds.AuctionWindowDays == 0 {
		c.Thresholds.AuctionWindowDays = 30
	}
	if c.Thresholds.ScrapWindowDays == 0 {
		c.Thresholds.ScrapWindowDays = 10
	}
	if c.Thresholds.RemovalWindowDays == 0 {
		c.Thresholds.RemovalWindowDays = 3
	}
	if c.Thresholds.OverdueGraceDays == 0 {
		c.Thresholds.OverdueGraceDays = 3
	}

	if c.Schedule.Recheck == "" {
		c.Schedule.Recheck = "0 * * * *"
	}
	if c.Schedule.Sweep == "" {
		c.Schedule.Sweep = "0 */6 * * *"
	}
	if c.Schedule.NotifyFlush == "" {
		c.Schedule.NotifyFlush = "*/30 * * * *"
	}
	if c.Schedule.MorningHour == 0 {
		c.Schedule.MorningHour = 7
	}
	if c.Schedule.Cleanup == "" {
		c.Schedule.Cleanup = "30 3 * * *"
	}
	if c.Schedule.RetentionDays == 0 {
		c.Schedule.RetentionDays = 90
	}

	if c.Notify.MaxAttempts == 0 {
		c.Notify.MaxAttempts = 5
	}
	if c.Notify.OpsRecipient == "" {
		c.Notify.OpsRecipient = "operations"
	}

	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Lot == "" {
		errs = append(errs, "lot is required")
	}
	if c.Thresholds.NoticeDays < 0 {
		errs = append(errs, "thresholds.notice_days must not be negative")
	}
	if c.Thresholds.ResponseDays < 0 {
		errs = append(errs, "thresholds.response_days must not be negative")
	}
	if c.Schedule.MorningHour < 0 || c.Schedule.MorningHour > 23 {
		errs = append(errs, "schedule.morning_hour must be between 0 and 23")
	}
	if c.Notify.MaxAttempts < 1 {
		errs = append(errs, "notify.max_attempts must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

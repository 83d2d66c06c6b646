// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "MCP_PINGR_"

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the MCP server
type ServerConfig struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Address       string `yaml:"address"`
	Port          int    `yaml:"port"`
	TransportMode string `yaml:"transport_mode"`
}

// SchedulerConfig configures the notification scheduler and the resolver
type SchedulerConfig struct {
	// Interval is how often due tasks are scanned
	Interval time.Duration `yaml:"interval"`
	// DefaultHour is used when a day keyword carries no time of day
	DefaultHour int `yaml:"default_hour"`
	// NotificationTitle is the title of every delivered reminder
	NotificationTitle string `yaml:"notification_title"`
}

// StorageConfig configures the durable task backend
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	JSONPath string `yaml:"json_path"`
	Watch    bool   `yaml:"watch"`
}

// NotifierConfig configures reminder delivery
type NotifierConfig struct {
	// Kind is a comma separated list of desktop, webhook, log
	Kind       string        `yaml:"kind"`
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
	AppIcon    string        `yaml:"app_icon"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:          "mcp-pingr",
			Version:       "dev",
			Address:       "localhost",
			Port:          8080,
			TransportMode: "stdio",
		},
		Scheduler: SchedulerConfig{
			Interval:          time.Second,
			DefaultHour:       8,
			NotificationTitle: "Pingr",
		},
		Storage: StorageConfig{
			Backend: "json",
		},
		Notifier: NotifierConfig{
			Kind:    "desktop",
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFile merges a YAML file into cfg. Keys absent from the file keep their value.
func LoadFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// FromEnv overrides cfg with MCP_PINGR_* environment variables
func FromEnv(cfg *Config) {
	setString(&cfg.Server.Address, "SERVER_ADDRESS")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.TransportMode, "SERVER_TRANSPORT")

	setDuration(&cfg.Scheduler.Interval, "SCHEDULER_INTERVAL")
	setInt(&cfg.Scheduler.DefaultHour, "SCHEDULER_DEFAULT_HOUR")
	setString(&cfg.Scheduler.NotificationTitle, "SCHEDULER_NOTIFICATION_TITLE")

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.JSONPath, "STORAGE_JSON_PATH")
	setBool(&cfg.Storage.Watch, "STORAGE_WATCH")

	setString(&cfg.Notifier.Kind, "NOTIFIER_KIND")
	setString(&cfg.Notifier.WebhookURL, "NOTIFIER_WEBHOOK_URL")
	setDuration(&cfg.Notifier.Timeout, "NOTIFIER_TIMEOUT")
	setString(&cfg.Notifier.AppIcon, "NOTIFIER_APP_ICON")

	setString(&cfg.Logging.Level, "LOGGING_LEVEL")
	setString(&cfg.Logging.FilePath, "LOGGING_FILE_PATH")
}

// Validate checks the configuration for inconsistent values
func (c *Config) Validate() error {
	switch c.Server.TransportMode {
	case "stdio", "sse":
	default:
		return fmt.Errorf("invalid transport mode %q: must be stdio or sse", c.Server.TransportMode)
	}
	if c.Server.TransportMode == "sse" && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("scheduler interval must be at least 1s, got %s", c.Scheduler.Interval)
	}
	if c.Scheduler.DefaultHour < 0 || c.Scheduler.DefaultHour > 23 {
		return fmt.Errorf("default hour must be within 0-23, got %d", c.Scheduler.DefaultHour)
	}
	switch c.Storage.Backend {
	case "json":
		if strings.TrimSpace(c.Storage.JSONPath) == "" {
			return fmt.Errorf("storage json_path is required for the json backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	for _, kind := range c.Notifier.Kinds() {
		switch kind {
		case "desktop", "log":
		case "webhook":
			if c.Notifier.WebhookURL == "" {
				return fmt.Errorf("notifier webhook_url is required for the webhook notifier")
			}
		default:
			return fmt.Errorf("unsupported notifier %q", kind)
		}
	}
	return nil
}

// Kinds splits Kind into its trimmed, non-empty parts
func (n NotifierConfig) Kinds() []string {
	var kinds []string
	for _, k := range strings.Split(n.Kind, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

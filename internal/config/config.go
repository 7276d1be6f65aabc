// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers understood by the service.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
)

// Archive backends understood by the service.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Directory DirectoryConfig `mapstructure:"directory"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Store     StoreConfig     `mapstructure:"store"`
	Slack     SlackConfig     `mapstructure:"slack"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	DebugMode bool            `mapstructure:"debug_mode"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig holds the shared secrets for inbound triggers.
type AuthConfig struct {
	// TriggerToken guards POST /triggers.
	TriggerToken string `mapstructure:"trigger_token"`
	// SlackVerificationToken is compared with the token on slash commands.
	SlackVerificationToken string `mapstructure:"slack_verification_token"`
}

// DirectoryConfig describes the organization directory being reported on.
type DirectoryConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	MarketplacePath   string `mapstructure:"marketplace_path"`
	ResourcePath      string `mapstructure:"resource_path"`
	OrganizationID    string `mapstructure:"organization_id"`
	MaxPages          int    `mapstructure:"max_pages"`
	ContainerSelector string `mapstructure:"container_selector"`
	TargetFormat      string `mapstructure:"target_format"`
	NextSelector      string `mapstructure:"next_selector"`
}

// HTTPConfig configures outbound HTTP behavior.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
	UserAgent      string  `mapstructure:"user_agent"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// StoreConfig selects the extremum store backend.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SlackConfig holds the bot credentials and channels.
type SlackConfig struct {
	BotToken       string `mapstructure:"bot_token"`
	APIURL         string `mapstructure:"api_url"`
	DefaultChannel string `mapstructure:"default_channel"`
	SandboxChannel string `mapstructure:"sandbox_channel"`
	Header         string `mapstructure:"header"`
	Footer         string `mapstructure:"footer"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig selects where finished reports are archived.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	ServiceName  string            `mapstructure:"service_name"`
	OTLPEndpoint string            `mapstructure:"otlp_endpoint"`
	Headers      map[string]string `mapstructure:"headers"`
	SampleRatio  float64           `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DORANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	// Secrets have empty defaults so AutomaticEnv can see them on Unmarshal.
	v.SetDefault("auth.trigger_token", "")
	v.SetDefault("auth.slack_verification_token", "")
	v.SetDefault("directory.base_url", "https://www.drupal.org")
	v.SetDefault("directory.marketplace_path", "/drupal-services")
	v.SetDefault("directory.resource_path", "/api-d7/node/%s.json")
	v.SetDefault("directory.organization_id", "2127245")
	v.SetDefault("directory.max_pages", 200)
	v.SetDefault("directory.container_selector", "")
	v.SetDefault("directory.target_format", "")
	v.SetDefault("directory.next_selector", "")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.user_agent", "dorank/1.0")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.rate_limit_rps", 2)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", ".data/dorank.db")
	v.SetDefault("store.table", "keyvalues")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.api_url", "https://slack.com/api")
	v.SetDefault("slack.default_channel", "")
	v.SetDefault("slack.sandbox_channel", "")
	v.SetDefault("slack.header", "Here are the latest drupal.org stats:")
	v.SetDefault("slack.footer", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.local_dir", ".data/reports")
	v.SetDefault("archive.prefix", "reports")
	v.SetDefault("logging.development", false)
	v.SetDefault("telemetry.service_name", "dorank")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("debug_mode", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	u, err := url.Parse(c.Directory.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("directory.base_url must be an absolute URL")
	}
	if strings.TrimSpace(c.Directory.OrganizationID) == "" {
		return fmt.Errorf("directory.organization_id is required")
	}
	if c.Directory.MaxPages < 0 {
		return fmt.Errorf("directory.max_pages must be >= 0")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverLibSQL, DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory, "":
	case ArchiveLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required for the local backend")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// HTTPTimeout converts the configured timeout to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ShutdownTimeout converts the configured shutdown grace period to a duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// BroadcastChannel is where scheduled reports go: the sandbox channel in
// debug mode, the default channel otherwise.
func (c Config) BroadcastChannel() string {
	if c.DebugMode && c.Slack.SandboxChannel != "" {
		return c.Slack.SandboxChannel
	}
	return c.Slack.DefaultChannel
}

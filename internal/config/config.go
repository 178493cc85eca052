package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Producer   ProducerConfig   `mapstructure:"producer" validate:"required"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" validate:"required"`
	Reclaimer  ReclaimerConfig  `mapstructure:"reclaimer" validate:"required"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Health     HealthConfig     `mapstructure:"health" validate:"required"`
	Events     EventsConfig     `mapstructure:"events"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// DatabaseConfig selects and configures the job store.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"required,oneof=postgres badger"`
	URL          string `mapstructure:"url" validate:"required_if=Driver postgres"`
	BadgerPath   string `mapstructure:"badger_path" validate:"required_if=Driver badger"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
// The secret is only required by commands that serve the admin API.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gte=1"`
}

// Producer kinds
const (
	ProducerSimulated = "simulated"
	ProducerGemini    = "gemini"
)

// ProducerConfig configures the asset producer used by the dispatcher.
type ProducerConfig struct {
	Kind    string        `mapstructure:"kind" validate:"required,oneof=simulated gemini"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`

	GeminiAPIKey   string        `mapstructure:"gemini_api_key" validate:"required_if=Kind gemini"`
	ImageModel     string        `mapstructure:"image_model"`
	VideoModel     string        `mapstructure:"video_model"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	AspectRatio    string        `mapstructure:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16 1:1 4:3 3:4"`
	// Prompt overrides the built-in prompt template; see gemini.Config.
	Prompt         string        `mapstructure:"prompt"`
	AssetDir       string        `mapstructure:"asset_dir"`
	PublicBaseURL  string        `mapstructure:"public_base_url"`
	BreakerTrips   uint32        `mapstructure:"breaker_trips" validate:"gt=0"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout" validate:"gt=0"`
}

// DispatcherConfig configures the batch dispatcher.
type DispatcherConfig struct {
	DefaultLimit int    `mapstructure:"default_limit" validate:"gte=1,lte=200"`
	Concurrency  int    `mapstructure:"concurrency" validate:"gte=1,lte=50"`
	RunnerName   string `mapstructure:"runner_name" validate:"required"`
}

// ReclaimerConfig configures the stale job reclaimer.
type ReclaimerConfig struct {
	MaxAgeMinutes int    `mapstructure:"max_age_minutes" validate:"gte=5,lte=10080"`
	Limit         int    `mapstructure:"limit" validate:"gte=1,lte=500"`
	RunnerName    string `mapstructure:"runner_name" validate:"required"`
}

// ScheduleConfig holds cron expressions for the long-running serve mode.
type ScheduleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Dispatch string `mapstructure:"dispatch" validate:"required_if=Enabled true"`
	Reclaim  string `mapstructure:"reclaim" validate:"required_if=Enabled true"`
	// ReclaimApply turns scheduled reclaims from previews into real requeues.
	ReclaimApply bool `mapstructure:"reclaim_apply"`
}

// HealthConfig holds queue health thresholds.
type HealthConfig struct {
	StaleHours      int `mapstructure:"stale_hours" validate:"gte=1"`
	BacklogLimit    int `mapstructure:"backlog_limit" validate:"gte=1"`
	Failure24hLimit int `mapstructure:"failure_24h_limit" validate:"gte=1"`
}

// EventsConfig configures lifecycle event publishing. Publishing is disabled
// when no brokers are configured.
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic" validate:"required_with=Brokers"`
}

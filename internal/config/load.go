package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// MEDIAQ_DATABASE_URL.
const EnvPrefix = "MEDIAQ"

// Load reads configuration from defaults, an optional config file, and
// environment variables. Environment variables take precedence over values
// from the file. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags on cfg and flattens validator errors into a
// readable message.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.badger_path", "")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("producer.kind", ProducerSimulated)
	v.SetDefault("producer.timeout", 5*time.Minute)
	v.SetDefault("producer.gemini_api_key", "")
	v.SetDefault("producer.image_model", "imagen-3.0-generate-002")
	v.SetDefault("producer.video_model", "veo-2.0-generate-001")
	v.SetDefault("producer.poll_interval", 10*time.Second)
	v.SetDefault("producer.max_retries", 2)
	v.SetDefault("producer.retry_delay", 2*time.Second)
	v.SetDefault("producer.aspect_ratio", "16:9")
	v.SetDefault("producer.prompt", "")
	v.SetDefault("producer.asset_dir", "")
	v.SetDefault("producer.public_base_url", "/media")
	v.SetDefault("producer.breaker_trips", 5)
	v.SetDefault("producer.breaker_timeout", 60*time.Second)

	v.SetDefault("dispatcher.default_limit", 50)
	v.SetDefault("dispatcher.concurrency", 1)
	v.SetDefault("dispatcher.runner_name", "media-dispatcher")

	v.SetDefault("reclaimer.max_age_minutes", 90)
	v.SetDefault("reclaimer.limit", 100)
	v.SetDefault("reclaimer.runner_name", "media-reclaimer")

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.dispatch", "@every 1m")
	v.SetDefault("schedule.reclaim", "@every 15m")
	v.SetDefault("schedule.reclaim_apply", false)

	v.SetDefault("health.stale_hours", 6)
	v.SetDefault("health.backlog_limit", 30)
	v.SetDefault("health.failure_24h_limit", 20)

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "media-jobs")
}

// Clamp bounds *n to [lo, hi]. A nil n means the value was not given and def
// is used instead; an explicit zero is clamped like any other value.
func Clamp(n *int, def, lo, hi int) int {
	v := def
	if n != nil {
		v = *n
	}
	return min(hi, max(lo, v))
}

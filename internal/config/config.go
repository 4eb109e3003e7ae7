package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig      `yaml:"store" mapstructure:"store"`
	Log         LogConfig        `yaml:"log" mapstructure:"log"`
	Ingest      IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Geocode     GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Fetch       FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Extract     ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Anthropic   AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI      OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Server      ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring  MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Sentry      SentryConfig     `yaml:"sentry" mapstructure:"sentry"`
	Temporal    TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	SourcesFile string           `yaml:"sources_file" mapstructure:"sources_file"`
}

// StoreConfig configures the call store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IngestConfig configures the ingestion run.
type IngestConfig struct {
	WindowHours       int    `yaml:"window_hours" mapstructure:"window_hours"`
	BatchSize         int    `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelayMS      int    `yaml:"batch_delay_ms" mapstructure:"batch_delay_ms"`
	SourceConcurrency int    `yaml:"source_concurrency" mapstructure:"source_concurrency"`
	RunTimeoutSecs    int    `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	RetentionHours    int    `yaml:"retention_hours" mapstructure:"retention_hours"`
	TimeZone          string `yaml:"time_zone" mapstructure:"time_zone"`
}

// Window returns the active-call horizon.
func (c IngestConfig) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

// BatchDelay returns the pause between record batches.
func (c IngestConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

// RunTimeout returns the bound on a whole run (zero means unbounded).
func (c IngestConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSecs) * time.Second
}

// Retention returns how long stored calls are kept before the expiry pass removes them.
func (c IngestConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// Location loads the configured time zone used to anchor clock-only times.
func (c IngestConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load time zone %q", c.TimeZone)
	}
	return loc, nil
}

// GeocodeConfig configures the geocoding resolver.
type GeocodeConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	Email           string  `yaml:"email" mapstructure:"email"`
	CountryCodes    string  `yaml:"country_codes" mapstructure:"country_codes"`
	MinDelayMS      int     `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLMinutes int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
	AIRewrite       bool    `yaml:"ai_rewrite" mapstructure:"ai_rewrite"`
	MaxDistanceKM   float64 `yaml:"max_distance_km" mapstructure:"max_distance_km"`
	BreakerFailures int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
}

// MinDelay returns the minimum spacing between geocoder requests.
func (c GeocodeConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMS) * time.Millisecond
}

// worstCaseLookups is the most requests one call can cost the geocoder:
// normalized, raw, number+street and street-only.
const worstCaseLookups = 4

// UncachedCallBudget estimates how many cache-missing calls a run can
// geocode before its timeout, assuming every strategy misses. Zero means
// unbounded (no run timeout or no request spacing).
func (c *Config) UncachedCallBudget() int {
	timeout, spacing := c.Ingest.RunTimeout(), c.Geocode.MinDelay()
	if timeout <= 0 || spacing <= 0 {
		return 0
	}
	return int(timeout / (spacing * worstCaseLookups))
}

// FetchConfig configures source fetching.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	MaxBodyMB   int    `yaml:"max_body_mb" mapstructure:"max_body_mb"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ExtractConfig selects the LLM backend used for AI-assisted extraction.
type ExtractConfig struct {
	Provider        string `yaml:"provider" mapstructure:"provider"`
	MaxInputChars   int    `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	MaxOutputTokens int64  `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds settings for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run-health alerting.
type MonitoringConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	RunFailureThreshold    float64 `yaml:"run_failure_threshold" mapstructure:"run_failure_threshold"`
	RecordFailureThreshold float64 `yaml:"record_failure_threshold" mapstructure:"record_failure_threshold"`
	EmptySourceRuns        int     `yaml:"empty_source_runs" mapstructure:"empty_source_runs"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// TemporalConfig configures the scheduled ingestion worker.
type TemporalConfig struct {
	HostPort     string `yaml:"host_port" mapstructure:"host_port"`
	Namespace    string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue    string `yaml:"task_queue" mapstructure:"task_queue"`
	ScheduleID   string `yaml:"schedule_id" mapstructure:"schedule_id"`
	IntervalMins int    `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cad-ingest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingest.window_hours", 6)
	v.SetDefault("ingest.batch_size", 10)
	v.SetDefault("ingest.batch_delay_ms", 1000)
	v.SetDefault("ingest.source_concurrency", 4)
	v.SetDefault("ingest.run_timeout_secs", 600)
	v.SetDefault("ingest.retention_hours", 48)
	v.SetDefault("ingest.time_zone", "America/New_York")
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.user_agent", "cad-ingest/1.0 (dispatch call geocoder)")
	v.SetDefault("geocode.country_codes", "us")
	v.SetDefault("geocode.min_delay_ms", 1100)
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.cache_ttl_minutes", 360)
	v.SetDefault("geocode.breaker_failures", 5)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.max_body_mb", 8)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("extract.provider", "anthropic")
	v.SetDefault("extract.max_input_chars", 60000)
	v.SetDefault("extract.max_output_tokens", 4096)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 6)
	v.SetDefault("monitoring.run_failure_threshold", 0.5)
	v.SetDefault("monitoring.record_failure_threshold", 0.2)
	v.SetDefault("monitoring.empty_source_runs", 3)
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "cad-ingest")
	v.SetDefault("temporal.schedule_id", "cad-ingest-periodic")
	v.SetDefault("temporal.interval_mins", 5)

	// Secrets and optional paths have empty defaults so AutomaticEnv can
	// resolve them during Unmarshal.
	for _, key := range []string{
		"anthropic.key", "openai.key", "sentry.dsn", "monitoring.webhook_url",
		"geocode.email", "sources_file",
	} {
		v.SetDefault(key, "")
	}
}

// Validate checks the settings required by a command scope.
// Known scopes: "store", "ingest", "extract", "temporal".
func (c *Config) Validate(scope string) error {
	switch scope {
	case "store":
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			return eris.Errorf("config: unsupported store driver %q (valid: sqlite, postgres)", c.Store.Driver)
		}
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required (CAD_STORE_DATABASE_URL)")
		}
	case "ingest":
		if err := c.Validate("store"); err != nil {
			return err
		}
		if c.Ingest.BatchSize <= 0 {
			return eris.Errorf("config: ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
		}
		if c.Ingest.WindowHours <= 0 {
			return eris.Errorf("config: ingest.window_hours must be positive, got %d", c.Ingest.WindowHours)
		}
		if c.Geocode.UserAgent == "" {
			return eris.New("config: geocode.user_agent is required by the geocoding usage policy")
		}
	case "extract":
		switch c.Extract.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				return eris.New("config: anthropic.key is required for extract.provider=anthropic (CAD_ANTHROPIC_KEY)")
			}
		case "openai":
			if c.OpenAI.Key == "" {
				return eris.New("config: openai.key is required for extract.provider=openai (CAD_OPENAI_KEY)")
			}
		case "none", "":
		default:
			return eris.Errorf("config: unknown extract.provider %q (valid: anthropic, openai, none)", c.Extract.Provider)
		}
	case "temporal":
		if c.Temporal.HostPort == "" || c.Temporal.TaskQueue == "" {
			return eris.New("config: temporal.host_port and temporal.task_queue are required")
		}
	default:
		return eris.Errorf("config: unknown validation scope %q", scope)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Geocoder GeocoderConfig `yaml:"geocoder" mapstructure:"geocoder"`
	Routing  RoutingConfig  `yaml:"routing" mapstructure:"routing"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GeocoderConfig configures the HERE-style geocoding client. Either the
// app_id/app_code pair or the single api_key must be set, depending on the
// provider generation in use.
type GeocoderConfig struct {
	AppID             string  `yaml:"app_id" mapstructure:"app_id"`
	AppCode           string  `yaml:"app_code" mapstructure:"app_code"`
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	BatchBaseURL      string  `yaml:"batch_base_url" mapstructure:"batch_base_url"`
	GeocodeBaseURL    string  `yaml:"geocode_base_url" mapstructure:"geocode_base_url"`
	MinBatchedSearch  int     `yaml:"min_batched_search" mapstructure:"min_batched_search"`
	MaxStalledRetries int     `yaml:"max_stalled_retries" mapstructure:"max_stalled_retries"`
	PollIntervalSecs  int     `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	ConnectTimeoutSec int     `yaml:"connect_timeout_secs" mapstructure:"connect_timeout_secs"`
	ReadTimeoutSecs   int     `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	RateLimitRPS      float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	SerialConcurrency int     `yaml:"serial_concurrency" mapstructure:"serial_concurrency"`
}

// RoutingConfig configures the Valhalla-style routing client.
type RoutingConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Units   string `yaml:"units" mapstructure:"units"`
}

// CacheConfig configures the optional Postgres-backed geocode result cache.
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	TTLDays     int    `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOSVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credential keys default to empty so AutomaticEnv can bind
	// them during Unmarshal.
	v.SetDefault("geocoder.app_id", "")
	v.SetDefault("geocoder.app_code", "")
	v.SetDefault("geocoder.api_key", "")
	v.SetDefault("routing.api_key", "")
	v.SetDefault("cache.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geocoder.batch_base_url", "https://batch.geocoder.ls.hereapi.com/6.2/jobs")
	v.SetDefault("geocoder.geocode_base_url", "https://geocoder.ls.hereapi.com/6.2/geocode.json")
	v.SetDefault("geocoder.min_batched_search", 100)
	v.SetDefault("geocoder.max_stalled_retries", 100)
	v.SetDefault("geocoder.poll_interval_secs", 5)
	v.SetDefault("geocoder.connect_timeout_secs", 10)
	v.SetDefault("geocoder.read_timeout_secs", 60)
	v.SetDefault("geocoder.rate_limit_rps", 10)
	v.SetDefault("geocoder.serial_concurrency", 1)
	v.SetDefault("routing.base_url", "https://valhalla.mapzen.com/route")
	v.SetDefault("routing.units", "kilometers")
	v.SetDefault("cache.table", "public.geocode_cache")
	v.SetDefault("cache.ttl_days", 30)

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

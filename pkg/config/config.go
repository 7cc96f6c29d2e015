package config

import "time"

// Config holds runtime configuration for the pizzeria ordering bot.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Bot         BotConfig         `mapstructure:"bot" validate:"required"`
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database"`
	ElasticPath ElasticPathConfig `mapstructure:"elasticpath" validate:"required"`
	Geocoder    GeocoderConfig    `mapstructure:"geocoder" validate:"required"`
	Delivery    DeliveryConfig    `mapstructure:"delivery"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token         string        `mapstructure:"token" validate:"required"`
	ProviderToken string        `mapstructure:"provider_token" validate:"required"`
	Currency      string        `mapstructure:"currency"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
}

// ServerConfig configures the auxiliary HTTP server (metrics, health).
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig configures the Redis connection shared by session storage,
// per-chat locks, the commerce token cache, and the jobs queue.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// DatabaseConfig configures the Postgres order log.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" sslmode=" + c.SSLMode
}

// ElasticPathConfig configures the commerce backend client.
type ElasticPathConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"required,url"`
	ClientID     string        `mapstructure:"client_id" validate:"required"`
	ClientSecret string        `mapstructure:"client_secret" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// GeocoderConfig configures the Yandex geocoder client.
type GeocoderConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	APIKey  string        `mapstructure:"api_key" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DeliveryConfig holds the distance-band thresholds and the courier fee.
type DeliveryConfig struct {
	NearRadiusKm  float64       `mapstructure:"near_radius_km" validate:"gt=0"`
	MaxRadiusKm   float64       `mapstructure:"max_radius_km" validate:"gtfield=NearRadiusKm"`
	CourierFee    int64         `mapstructure:"courier_fee"` // kopecks
	FollowUpDelay time.Duration `mapstructure:"follow_up_delay"`
}

// RateLimitConfig bounds updates per chat within a sliding window.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// LoggerConfig configures slog output and file rotation.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

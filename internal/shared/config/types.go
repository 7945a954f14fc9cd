package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	BaseURL        string   `mapstructure:"base_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// GetDSN builds a driver specific DSN. MySQL is the default driver.
func (d *DatabaseConfig) GetDSN() string {
	if d.Driver == "postgres" {
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			d.Host, d.Port, d.Username, d.Password, d.Database, sslMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	AccessExpMinutes int    `mapstructure:"access_exp_minutes"`
}

type AuthConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

type EmailConfig struct {
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	FromAddress  string `mapstructure:"from_address"`
	FromName     string `mapstructure:"from_name"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PaymentConfig controls the payment lifecycle: outbound calls, callbacks and background jobs.
type PaymentConfig struct {
	CallbackBaseURL          string `mapstructure:"callback_base_url"`
	HTTPTimeoutSeconds       int    `mapstructure:"http_timeout_seconds"`
	ReminderThresholdMinutes int    `mapstructure:"reminder_threshold_minutes"`
	SweepIntervalMinutes     int    `mapstructure:"sweep_interval_minutes"`
	SweepBatchSize           int    `mapstructure:"sweep_batch_size"`
	SweepLockEnabled         bool   `mapstructure:"sweep_lock_enabled"`
	ExpiryIntervalMinutes    int    `mapstructure:"expiry_interval_minutes"`
	TokenStore               string `mapstructure:"token_store"`
	TokenSafetyMarginSeconds int    `mapstructure:"token_safety_margin_seconds"`
	TransitionRetries        int    `mapstructure:"transition_retries"`
	// CallbackRateLimit caps callback requests per client IP per minute; 0 disables it.
	CallbackRateLimit int `mapstructure:"callback_rate_limit"`
}

func (p *PaymentConfig) HTTPTimeout() time.Duration {
	return time.Duration(p.HTTPTimeoutSeconds) * time.Second
}

func (p *PaymentConfig) ReminderThreshold() time.Duration {
	return time.Duration(p.ReminderThresholdMinutes) * time.Minute
}

func (p *PaymentConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalMinutes) * time.Minute
}

func (p *PaymentConfig) ExpiryInterval() time.Duration {
	return time.Duration(p.ExpiryIntervalMinutes) * time.Minute
}

func (p *PaymentConfig) TokenSafetyMargin() time.Duration {
	return time.Duration(p.TokenSafetyMarginSeconds) * time.Second
}

// GatewaysConfig selects where gateway identities are resolved from.
type GatewaysConfig struct {
	Source        string `mapstructure:"source"`
	FilePath      string `mapstructure:"file_path"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

type ExchangeRateConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	MaxStaleMinutes int    `mapstructure:"max_stale_minutes"`
}

type FulfillmentConfig struct {
	Driver       string   `mapstructure:"driver"`
	RedisChannel string   `mapstructure:"redis_channel"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	Insecure       bool    `mapstructure:"insecure"`
}

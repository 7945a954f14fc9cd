package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/orris-inc/paygate/internal/shared/config"
)

type Config struct {
	Server       sharedConfig.ServerConfig       `mapstructure:"server"`
	Database     sharedConfig.DatabaseConfig     `mapstructure:"database"`
	Logger       sharedConfig.LoggerConfig       `mapstructure:"logger"`
	Auth         sharedConfig.AuthConfig         `mapstructure:"auth"`
	Email        sharedConfig.EmailConfig        `mapstructure:"email"`
	Redis        sharedConfig.RedisConfig        `mapstructure:"redis"`
	Payment      sharedConfig.PaymentConfig      `mapstructure:"payment"`
	Gateways     sharedConfig.GatewaysConfig     `mapstructure:"gateways"`
	ExchangeRate sharedConfig.ExchangeRateConfig `mapstructure:"exchange_rate"`
	Fulfillment  sharedConfig.FulfillmentConfig  `mapstructure:"fulfillment"`
	Telemetry    sharedConfig.TelemetryConfig    `mapstructure:"telemetry"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables. An empty
// configPath searches ./configs and its parents for config.yaml.
func Load(env, configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("../configs")
		viper.AddConfigPath("../../configs")
	}

	// PAYGATE_DATABASE_HOST overrides database.host
	viper.SetEnvPrefix("PAYGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		viper.Set("server.mode", env)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	Set(&config)
	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// Set replaces the active configuration. Tests use it to inject a config without a file.
func Set(cfg *Config) {
	appConfigMu.Lock()
	appConfig = cfg
	appConfigMu.Unlock()
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	switch cfg.Gateways.Source {
	case "file", "database":
	default:
		return fmt.Errorf("unsupported gateways source %q", cfg.Gateways.Source)
	}
	if cfg.Gateways.Source == "database" && cfg.Gateways.EncryptionKey == "" {
		return fmt.Errorf("gateways.encryption_key is required when gateways.source is database")
	}
	if cfg.Payment.TokenSafetyMarginSeconds < 60 {
		return fmt.Errorf("payment.token_safety_margin_seconds must be at least 60")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.base_url", "http://localhost:8080")

	viper.SetDefault("database.driver", "mysql")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.username", "root")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "paygate_dev")
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.conn_max_lifetime", 60)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	viper.SetDefault("auth.jwt.secret", "change-me-in-production")
	viper.SetDefault("auth.jwt.access_exp_minutes", 15)

	viper.SetDefault("email.smtp_host", "localhost")
	viper.SetDefault("email.smtp_port", 1025)
	viper.SetDefault("email.smtp_user", "")
	viper.SetDefault("email.smtp_password", "")
	viper.SetDefault("email.from_address", "noreply@paygate.local")
	viper.SetDefault("email.from_name", "Paygate")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("payment.callback_base_url", "http://localhost:8080")
	viper.SetDefault("payment.http_timeout_seconds", 15)
	viper.SetDefault("payment.reminder_threshold_minutes", 30)
	viper.SetDefault("payment.sweep_interval_minutes", 10)
	viper.SetDefault("payment.sweep_batch_size", 100)
	viper.SetDefault("payment.sweep_lock_enabled", false)
	viper.SetDefault("payment.expiry_interval_minutes", 5)
	viper.SetDefault("payment.token_store", "memory")
	viper.SetDefault("payment.token_safety_margin_seconds", 300)
	viper.SetDefault("payment.transition_retries", 3)
	viper.SetDefault("payment.callback_rate_limit", 120)

	viper.SetDefault("gateways.source", "file")
	viper.SetDefault("gateways.file_path", "./configs/gateways.yaml")
	viper.SetDefault("gateways.encryption_key", "")

	viper.SetDefault("exchange_rate.base_url", "https://open.er-api.com/v6/latest")
	viper.SetDefault("exchange_rate.cache_ttl_seconds", 300)
	viper.SetDefault("exchange_rate.max_stale_minutes", 60)

	viper.SetDefault("fulfillment.driver", "log")
	viper.SetDefault("fulfillment.redis_channel", "paygate:payment:captured")
	viper.SetDefault("fulfillment.kafka_topic", "payment.captured")

	viper.SetDefault("telemetry.tracing_enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "paygate")
	viper.SetDefault("telemetry.sample_ratio", 1.0)
	viper.SetDefault("telemetry.insecure", true)
}

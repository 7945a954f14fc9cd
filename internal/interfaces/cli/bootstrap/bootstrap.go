// Package bootstrap loads configuration and opens the shared resources every
// paygate command needs.
package bootstrap

import (
	"fmt"
	"os"

	"github.com/orris-inc/paygate/internal/infrastructure/config"
	"github.com/orris-inc/paygate/internal/infrastructure/database"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

// Env is the loaded configuration plus the process logger.
type Env struct {
	Name   string
	Config *config.Config
	Log    logger.Interface
}

// Load reads configuration for env, honouring the ENV variable, and
// initializes the process logger.
func Load(env, configPath string) (*Env, error) {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Server.Mode = GinMode(env)

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &Env{Name: env, Config: cfg, Log: logger.NewLogger()}, nil
}

// OpenDatabase connects the global gorm handle. Callers defer database.Close.
func (e *Env) OpenDatabase() error {
	if err := database.Init(&e.Config.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// GinMode maps an environment name to a gin mode.
func GinMode(environment string) string {
	switch environment {
	case "production", "prod", "release":
		return "release"
	case "test", "testing":
		return "test"
	default:
		return "debug"
	}
}

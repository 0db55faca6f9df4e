package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/DrSkyle/cloudsentinel/pkg/config"
	"github.com/DrSkyle/cloudsentinel/pkg/telemetry"
	"github.com/DrSkyle/cloudsentinel/pkg/version"
)

// ConfigFileEnv names an optional YAML file merged under the environment.
const ConfigFileEnv = "CLOUDSENTINEL_CONFIG"

// Bootstrap prepares a Lambda cold start: .env, config, logger and tracing.
func Bootstrap(ctx context.Context, service string) (*Handlers, error) {
	// Absent outside local runs.
	_ = godotenv.Load()

	cfg, err := config.Load(viper.New(), os.Getenv(ConfigFileEnv))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(cfg.LogLevel), cfg.JSONLogs)
	slog.SetDefault(logger)

	if _, err := telemetry.Init(ctx, service, version.Current, cfg.OtelEndpoint); err != nil {
		logger.Warn("Telemetry failed", "error", err)
	}

	return NewHandlers(cfg, logger, Options{}), nil
}

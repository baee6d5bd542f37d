// Package commands implements the leapdb subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapdb/internal/config"
	"github.com/leapstack-labs/leapdb/pkg/adapter"
	"github.com/leapstack-labs/leapdb/pkg/database"
)

type configKey struct{}

type loggerKey struct{}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFrom retrieves the config stored by WithConfig.
func ConfigFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom retrieves the logger from ctx. Defaults to a discard logger.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// openDatabase opens the database described by the config in ctx. The
// caller closes it.
func openDatabase(ctx context.Context) (*database.Database, *config.Config, error) {
	cfg, err := ConfigFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	s, migrations, err := cfg.AppSchema()
	if err != nil {
		return nil, nil, err
	}
	logger := LoggerFrom(ctx)

	a, err := adapter.NewAdapter(cfg.Adapter.Core(), adapter.Options{
		Schema:     s,
		Migrations: migrations,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create adapter: %w", err)
	}
	db, err := database.Open(ctx, a, database.WithLogger(logger), database.WithDevMode(cfg.DevMode))
	if err != nil {
		_ = a.Close()
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, cfg, nil
}

package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/emergent-company/ageload/domain/indexer"
	"github.com/emergent-company/ageload/domain/loader"
	"github.com/emergent-company/ageload/domain/pipeline"
	"github.com/emergent-company/ageload/internal/config"
	"github.com/emergent-company/ageload/internal/database"
	"github.com/emergent-company/ageload/internal/migrate"
	"github.com/emergent-company/ageload/pkg/logger"
)

const stopTimeout = 15 * time.Second

// startApp builds and starts the dependency graph, filling targets the way
// fx.Populate does. The returned stop function releases the database pool.
func startApp(ctx context.Context, targets ...any) (func(), error) {
	app := fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			if debug {
				return &fxevent.SlogLogger{Logger: log}
			}
			return fxevent.NopLogger
		}),

		logger.Module,
		config.Module,
		database.Module,
		migrate.Module,
		loader.Module,
		indexer.Module,
		pipeline.Module,

		fx.Decorate(applyOverrides),
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}, nil
}

// applyOverrides layers flags, AGELOAD_* variables and the config file on top
// of the environment configuration.
func applyOverrides(cfg *config.Config) (*config.Config, error) {
	c := *cfg

	if viper.IsSet("graph") {
		c.Graph.Name = viper.GetString("graph")
	}
	if viper.IsSet("debug") && viper.GetBool("debug") {
		c.Debug = true
	}
	if viper.IsSet("strategy") {
		c.Loader.Strategy = viper.GetString("strategy")
	}
	if viper.IsSet("fallback") {
		c.Loader.Fallback = viper.GetString("fallback")
	}
	if viper.IsSet("batch-size") {
		c.Loader.BatchSize = viper.GetInt("batch-size")
	}
	if viper.IsSet("binary") {
		c.Loader.Binary = viper.GetString("binary")
	}
	if viper.IsSet("work-dir") {
		c.Loader.WorkDir = viper.GetString("work-dir")
	}
	if viper.IsSet("keep-files") {
		c.Loader.KeepFiles = viper.GetBool("keep-files")
	}
	if viper.IsSet("skip-indexes") {
		c.Loader.SkipIndexes = viper.GetBool("skip-indexes")
	}
	if viper.IsSet("metrics-addr") {
		c.MetricsAddr = viper.GetString("metrics-addr")
	}

	if err := c.Loader.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

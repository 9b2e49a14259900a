package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/screenlens/screenlens/db"
	"github.com/screenlens/screenlens/internal/analysis"
	"github.com/screenlens/screenlens/internal/archive"
	"github.com/screenlens/screenlens/internal/config"
	"github.com/screenlens/screenlens/internal/script"
	"github.com/screenlens/screenlens/internal/workflow"
)

// Setup creates the full application: storage, archive, and the analysis
// pipeline. Call Close() to release resources.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a, err := SetupStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	analyst, err := analysis.NewAnalyst(analysis.AnalystConfig{
		Genkit:    g,
		ModelName: cfg.FullModelName(),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	a.Analyst = analyst

	pipeline, err := workflow.NewPipeline(analyst, logger)
	if err != nil {
		return nil, err
	}
	a.Pipeline = pipeline
	a.Flow = workflow.NewFlow(g, pipeline)

	return a, nil
}

// SetupStorage creates an App with configuration, database pool, store
// and archive only. The dashboard and migrate commands use this: they
// never talk to Gemini.
func SetupStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &App{
		Config: cfg,
		Logger: logger,
		cancel: cancel,
	}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.Store = script.New(pool, logger)

	if cfg.ArchiveEnabled() {
		arc, err := archive.Connect(ctx, archive.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDBName,
			Collection: cfg.MongoCollection,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting document archive: %w", err)
		}
		a.Archive = arc
	} else {
		logger.Info("document archive disabled, no cluster URI configured")
	}

	return a, nil
}

// provideGenkit initializes Genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY from the environment, so the configured key is
// exported before Init.
//
// SAFETY: os.Setenv is not concurrent-safe, but this runs exactly once
// during startup before any goroutines are spawned.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	if err := os.Setenv("GEMINI_API_KEY", cfg.GeminiKey); err != nil {
		return nil, fmt.Errorf("exporting Gemini key: %w", err)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}

	logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelChoice)
	return g, nil
}

// provideDBPool runs migrations and creates the PostgreSQL pool sized
// from DB_POOL_SIZE and DB_MAX_OVERFLOW. With DB_ECHO enabled every
// statement is logged at debug level.
func provideDBPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = cfg.PoolMaxConns()
	poolCfg.MinConns = cfg.PoolMinConns()
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	if cfg.DBEcho {
		poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger: tracelog.LoggerFunc(func(_ context.Context, _ tracelog.LogLevel, msg string, data map[string]any) {
				attrs := make([]any, 0, len(data)*2)
				for k, v := range data {
					attrs = append(attrs, k, v)
				}
				logger.Debug("pgx: "+msg, attrs...)
			}),
			LogLevel: tracelog.LogLevelDebug,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("database pool ready",
		"host", cfg.DBHost,
		"database", cfg.DBName,
		"min_conns", poolCfg.MinConns,
		"max_conns", poolCfg.MaxConns,
	)

	return pool, nil
}

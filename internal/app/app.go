// Package app wires the application together: configuration, database
// pool, migrations, the Gemini analyst, the workflow pipeline, and the
// optional document archive.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screenlens/screenlens/internal/analysis"
	"github.com/screenlens/screenlens/internal/archive"
	"github.com/screenlens/screenlens/internal/config"
	"github.com/screenlens/screenlens/internal/script"
	"github.com/screenlens/screenlens/internal/workflow"
)

// App is the application container. Fields not needed by a given process
// stay nil: the dashboard builds an App without the analyst.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool  *pgxpool.Pool
	Store *script.Store

	Genkit   *genkit.Genkit
	Analyst  *analysis.Analyst
	Pipeline *workflow.Pipeline
	Flow     *workflow.Flow

	Archive *archive.Archive // nil when no cluster URI is configured

	cancel context.CancelFunc
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}

	if a.Archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Archive.Close(ctx); err != nil {
			a.Logger.Warn("closing archive", "error", err)
		}
	}

	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}

	return nil
}

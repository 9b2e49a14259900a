package api

import (
	"log/slog"
	"net/http"
	"time"
)

// root is the service banner at GET /.
func root(logger *slog.Logger) http.HandlerFunc {
	banner := map[string]any{
		"message": "Script Analysis API v2.1 is running",
		"status":  "healthy",
		"version": Version,
		"features": []string{
			"AI-powered script analysis",
			"Save-compatible response structure",
			"Separate analysis and storage endpoints",
			"Database storage with search",
			"Cost and production breakdowns",
			"RESTful API with validation",
			"Comprehensive error handling",
		},
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, banner, logger)
	}
}

// healthHandler reports liveness plus dependency status. It always
// returns 200: a degraded database shows up in the body, and probes that
// only care about process liveness keep passing.
func healthHandler(store ScriptStore, archive Archiver, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "connected"
		if err := store.Ping(r.Context()); err != nil {
			dbStatus = "error: " + err.Error()
		}

		archiveStatus := "disabled"
		if archive != nil {
			archiveStatus = "connected"
			if err := archive.Ping(r.Context()); err != nil {
				archiveStatus = "error: " + err.Error()
			}
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "script-analysis-api",
			"timestamp": time.Now().Format(time.RFC3339),
			"database":  dbStatus,
			"archive":   archiveStatus,
			"version":   Version,
		}, logger)
	}
}

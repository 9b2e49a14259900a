// Package api is the JSON HTTP surface of the script analysis service.
//
// Endpoints:
//   - GET    /                      - service banner
//   - GET    /health                - liveness plus dependency status
//   - POST   /analyze-script        - upload a PDF, run the analysis pipeline
//   - POST   /save-analysis         - persist a previously returned analysis
//   - GET    /analyzed-scripts      - list with pagination, search, filtering
//   - GET    /analyzed-scripts/{id} - fetch one record with full analysis
//   - DELETE /analyzed-scripts/{id} - delete one record
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/screenlens/screenlens/internal/script"
	"github.com/screenlens/screenlens/internal/workflow"
)

// Version reported by the banner and health endpoints.
const Version = "2.1.0"

// Default analysis timeout when ServerConfig leaves it zero.
const defaultAnalysisTimeout = 300 * time.Second

// ScriptStore is the persistence surface the handlers need. *script.Store
// satisfies it; tests substitute a fake.
type ScriptStore interface {
	Save(ctx context.Context, p script.SaveParams) (*script.AnalyzedScript, error)
	Get(ctx context.Context, id uuid.UUID) (*script.AnalyzedScript, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, p script.ListParams) ([]*script.Summary, error)
	Search(ctx context.Context, term string, skip, limit int) ([]*script.Summary, error)
	ByStatus(ctx context.Context, status string, skip, limit int) ([]*script.Summary, error)
	Count(ctx context.Context, status string) (int64, error)
	Ping(ctx context.Context) error
}

// Analyzer runs the analysis pipeline on an uploaded screenplay.
// *workflow.Pipeline satisfies it.
type Analyzer interface {
	Run(ctx context.Context, pdfPath string) (*workflow.State, error)
}

// Archiver mirrors analyses into the document archive. Optional.
type Archiver interface {
	Put(ctx context.Context, scriptID, filename string, analysis json.RawMessage) error
	Delete(ctx context.Context, scriptID string) error
	Ping(ctx context.Context) error
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger          *slog.Logger
	Store           ScriptStore   // Required
	Analyzer        Analyzer      // Optional: nil disables /analyze-script
	Archive         Archiver      // Optional: nil disables archive mirroring
	CORSOrigins     []string      // Allowed origins, normally the dashboard
	TrustProxy      bool          // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst       int           // Rate limiter burst size per IP (0 = default 60)
	AnalysisTimeout time.Duration // Per-request analysis budget (0 = 300s)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("script store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.AnalysisTimeout
	if timeout <= 0 {
		timeout = defaultAnalysisTimeout
	}

	ah := &analyzeHandler{
		analyzer: cfg.Analyzer,
		store:    cfg.Store,
		archive:  cfg.Archive,
		timeout:  timeout,
		logger:   logger,
	}
	sh := &scriptsHandler{
		store:   cfg.Store,
		archive: cfg.Archive,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", root(logger))
	if cfg.Analyzer != nil {
		mux.HandleFunc("POST /analyze-script", ah.analyze)
	}
	mux.HandleFunc("POST /save-analysis", ah.saveAnalysis)
	mux.HandleFunc("GET /analyzed-scripts", sh.list)
	mux.HandleFunc("GET /analyzed-scripts/{id}", sh.get)
	mux.HandleFunc("DELETE /analyzed-scripts/{id}", sh.delete)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = defaultRateBurst
	}
	rl := newRateLimiter(defaultRefillPerSecond, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, false)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps the health probe outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.Handle("GET /health", healthHandler(cfg.Store, cfg.Archive, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

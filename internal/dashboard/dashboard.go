// Package dashboard serves the read-only web UI for browsing analyzed
// screenplays. It renders server-side templates over the same store the
// API uses; all mutations go through the JSON API.
package dashboard

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/screenlens/screenlens/internal/script"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const pageSize = 20

// ScriptReader is the read-only store surface the dashboard needs.
// *script.Store satisfies it.
type ScriptReader interface {
	Get(ctx context.Context, id uuid.UUID) (*script.AnalyzedScript, error)
	List(ctx context.Context, p script.ListParams) ([]*script.Summary, error)
	Search(ctx context.Context, term string, skip, limit int) ([]*script.Summary, error)
	ByStatus(ctx context.Context, status string, skip, limit int) ([]*script.Summary, error)
	Count(ctx context.Context, status string) (int64, error)
}

// Server renders the dashboard pages.
type Server struct {
	store  ScriptReader
	tmpl   *template.Template
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer parses the embedded templates and configures routes.
func NewServer(store ScriptReader, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("script store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.New("dashboard").Funcs(template.FuncMap{
		"money":   formatMoney,
		"bytes":   formatBytes,
		"moment":  formatMoment,
		"seconds": formatSeconds,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("dashboard: parsing templates: %w", err)
	}

	s := &Server{
		store:  store,
		tmpl:   tmpl,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /scripts/{id}", s.detail)
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /static/", http.FileServerFS(staticFS))
	s.mux = mux

	return s, nil
}

// Handler returns the dashboard as an http.Handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		s.mux.ServeHTTP(w, r)
	})
}

// indexData feeds the listing page.
type indexData struct {
	Scripts      []*script.Summary
	Total        int64
	Completed    int64
	Failed       int64
	Search       string
	StatusFilter string
	Page         int
	HasPrev      bool
	HasNext      bool
	PrevPage     int
	NextPage     int
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * pageSize

	search := q.Get("search")
	statusFilter := q.Get("status")

	var (
		summaries []*script.Summary
		err       error
	)
	switch {
	case search != "":
		summaries, err = s.store.Search(ctx, search, skip, pageSize)
	case statusFilter != "":
		summaries, err = s.store.ByStatus(ctx, statusFilter, skip, pageSize)
	default:
		summaries, err = s.store.List(ctx, script.ListParams{Skip: skip, Limit: pageSize})
	}
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, "failed to load scripts", err)
		return
	}

	total, err := s.store.Count(ctx, "")
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, "failed to load totals", err)
		return
	}
	completed, err := s.store.Count(ctx, script.StatusCompleted)
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, "failed to load totals", err)
		return
	}
	failed, err := s.store.Count(ctx, script.StatusFailed)
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, "failed to load totals", err)
		return
	}

	s.render(w, "index.html", indexData{
		Scripts:      summaries,
		Total:        total,
		Completed:    completed,
		Failed:       failed,
		Search:       search,
		StatusFilter: statusFilter,
		Page:         page,
		HasPrev:      page > 1,
		HasNext:      len(summaries) == pageSize,
		PrevPage:     page - 1,
		NextPage:     page + 1,
	})
}

// detailData feeds the single-script page. Analysis is re-indented for
// the raw JSON view.
type detailData struct {
	Script       *script.AnalyzedScript
	Analysis     map[string]any
	AnalysisJSON string
}

func (s *Server) detail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.renderError(w, http.StatusNotFound, "script not found", err)
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, script.ErrNotFound) {
		s.renderError(w, http.StatusNotFound, "script not found", err)
		return
	}
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, "failed to load script", err)
		return
	}

	data := detailData{Script: rec}
	if len(rec.Analysis) > 0 {
		if err := json.Unmarshal(rec.Analysis, &data.Analysis); err != nil {
			s.logger.Warn("stored analysis is not valid JSON", "id", id, "error", err)
		}
		if pretty, err := json.MarshalIndent(json.RawMessage(rec.Analysis), "", "  "); err == nil {
			data.AnalysisJSON = string(pretty)
		}
	}

	s.render(w, "detail.html", data)
}

// health reports whether the dashboard can reach its store. Used by
// process monitors; not linked from any page.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := "ok"
	if _, err := s.store.Count(r.Context(), ""); err != nil {
		status = http.StatusServiceUnavailable
		body = "store unavailable"
		s.logger.Warn("dashboard health check failed", "error", err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, body)
}

// render executes a page template buffer-first so a template error can
// still produce a clean 500.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	buf := new(bytes.Buffer)
	if err := s.tmpl.ExecuteTemplate(buf, name, data); err != nil {
		s.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("failed to write page", "error", err)
	}
}

func (s *Server) renderError(w http.ResponseWriter, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("dashboard error", "error", err, "message", message)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if terr := s.tmpl.ExecuteTemplate(w, "error.html", map[string]any{
		"Status":  status,
		"Message": message,
	}); terr != nil {
		s.logger.Error("failed to render error page", "error", terr)
	}
}

// formatMoney renders a dollar amount with thousands separators.
func formatMoney(amount float64) string {
	n := int64(math.Round(amount))
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	for i := len(digits) - 3; i > 0; i -= 3 {
		digits = digits[:i] + "," + digits[i:]
	}
	return sign + "$" + digits
}

// formatBytes renders a byte count in human units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatMoment(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.1fs", s)
}

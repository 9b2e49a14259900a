package dashboard

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlens/screenlens/internal/script"
)

type fakeReader struct {
	records map[uuid.UUID]*script.AnalyzedScript
}

func newFakeReader() *fakeReader {
	return &fakeReader{records: make(map[uuid.UUID]*script.AnalyzedScript)}
}

func (f *fakeReader) add(filename string, status string) *script.AnalyzedScript {
	rec := &script.AnalyzedScript{
		ID:               uuid.New(),
		Filename:         filename,
		OriginalFilename: filename,
		FileSizeBytes:    4096,
		Status:           status,
		Analysis:         json.RawMessage(`{"title":"Heat","logline":"A crew of thieves.","summary":"Cops and robbers."}`),
		TotalScenes:      100,
		TotalCharacters:  30,
		TotalLocations:   20,
		EstimatedBudget:  60_000_000,
		BudgetCategory:   "high",
		CreatedAt:        time.Now(),
	}
	f.records[rec.ID] = rec
	return rec
}

func (f *fakeReader) Get(_ context.Context, id uuid.UUID) (*script.AnalyzedScript, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, script.ErrNotFound
	}
	return rec, nil
}

func (f *fakeReader) List(context.Context, script.ListParams) ([]*script.Summary, error) {
	var out []*script.Summary
	for _, rec := range f.records {
		out = append(out, rec.Summary())
	}
	return out, nil
}

func (f *fakeReader) Search(_ context.Context, term string, _, _ int) ([]*script.Summary, error) {
	var out []*script.Summary
	for _, rec := range f.records {
		if strings.Contains(rec.Filename, term) {
			out = append(out, rec.Summary())
		}
	}
	return out, nil
}

func (f *fakeReader) ByStatus(_ context.Context, status string, _, _ int) ([]*script.Summary, error) {
	var out []*script.Summary
	for _, rec := range f.records {
		if rec.Status == status {
			out = append(out, rec.Summary())
		}
	}
	return out, nil
}

func (f *fakeReader) Count(_ context.Context, status string) (int64, error) {
	if status == "" {
		return int64(len(f.records)), nil
	}
	var n int64
	for _, rec := range f.records {
		if rec.Status == status {
			n++
		}
	}
	return n, nil
}

func newTestDashboard(t *testing.T, store ScriptReader) http.Handler {
	t.Helper()
	srv, err := NewServer(store, nil)
	require.NoError(t, err)
	return srv.Handler()
}

func TestIndexPage(t *testing.T) {
	reader := newFakeReader()
	reader.add("heat.pdf", script.StatusCompleted)
	reader.add("ronin.pdf", script.StatusCompleted)
	h := newTestDashboard(t, reader)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "heat.pdf")
	assert.Contains(t, body, "ronin.pdf")
	assert.Contains(t, body, "$60,000,000")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestIndexPageEmpty(t *testing.T) {
	h := newTestDashboard(t, newFakeReader())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No analyzed scripts yet")
}

func TestIndexPageSearch(t *testing.T) {
	reader := newFakeReader()
	reader.add("heat.pdf", script.StatusCompleted)
	reader.add("ronin.pdf", script.StatusCompleted)
	h := newTestDashboard(t, reader)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?search=heat", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "heat.pdf")
	assert.NotContains(t, body, "ronin.pdf")
}

func TestDetailPage(t *testing.T) {
	reader := newFakeReader()
	rec1 := reader.add("heat.pdf", script.StatusCompleted)
	h := newTestDashboard(t, reader)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scripts/"+rec1.ID.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "heat.pdf")
	assert.Contains(t, body, "A crew of thieves.")
	assert.Contains(t, body, rec1.ID.String())
}

func TestDetailPageNotFound(t *testing.T) {
	h := newTestDashboard(t, newFakeReader())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scripts/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scripts/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexPageRendersOversizedRecord(t *testing.T) {
	reader := newFakeReader()
	rec1 := reader.add("bloated.pdf", script.StatusCompleted)
	rec1.FileSizeBytes = 1 << 40
	h := newTestDashboard(t, reader)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.0 TB")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scripts/"+rec1.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "$0", formatMoney(0))
	assert.Equal(t, "$999", formatMoney(999))
	assert.Equal(t, "$1,000", formatMoney(1000))
	assert.Equal(t, "$60,000,000", formatMoney(60_000_000))
	assert.Equal(t, "-$1,500", formatMoney(-1500))

	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "4.0 KB", formatBytes(4096))
	assert.Equal(t, "1.5 MB", formatBytes(3<<19))
	assert.Equal(t, "1.0 TB", formatBytes(1<<40))
	assert.Equal(t, "1.0 PB", formatBytes(1<<50))
	assert.Equal(t, "8.0 EB", formatBytes(math.MaxInt64))

	assert.Equal(t, "42.5s", formatSeconds(42.5))
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlens/screenlens/internal/analysis"
	"github.com/screenlens/screenlens/internal/script"
	"github.com/screenlens/screenlens/internal/workflow"
)

// fakeStore is an in-memory ScriptStore for handler tests.
type fakeStore struct {
	records  map[uuid.UUID]*script.AnalyzedScript
	saveErr  error
	listErr  error
	pingErr  error
	lastList script.ListParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[uuid.UUID]*script.AnalyzedScript)}
}

func (f *fakeStore) Save(_ context.Context, p script.SaveParams) (*script.AnalyzedScript, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	rec := &script.AnalyzedScript{
		ID:                    uuid.New(),
		Filename:              p.Filename,
		OriginalFilename:      p.OriginalFilename,
		FileSizeBytes:         p.FileSizeBytes,
		Status:                script.StatusCompleted,
		Analysis:              p.Analysis,
		TotalScenes:           p.TotalScenes,
		TotalCharacters:       p.TotalCharacters,
		TotalLocations:        p.TotalLocations,
		EstimatedBudget:       p.EstimatedBudget,
		BudgetCategory:        p.BudgetCategory,
		ProcessingTimeSeconds: p.ProcessingTimeSeconds,
		APICallsUsed:          p.APICallsUsed,
		CreatedAt:             time.Now(),
		UpdatedAt:             time.Now(),
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*script.AnalyzedScript, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, script.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.records[id]; !ok {
		return script.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeStore) List(_ context.Context, p script.ListParams) ([]*script.Summary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.lastList = p
	var out []*script.Summary
	for _, rec := range f.records {
		out = append(out, rec.Summary())
	}
	return out, nil
}

func (f *fakeStore) Search(_ context.Context, term string, _, _ int) ([]*script.Summary, error) {
	var out []*script.Summary
	for _, rec := range f.records {
		if strings.Contains(strings.ToLower(rec.Filename), strings.ToLower(term)) {
			out = append(out, rec.Summary())
		}
	}
	return out, nil
}

func (f *fakeStore) ByStatus(_ context.Context, status string, _, _ int) ([]*script.Summary, error) {
	var out []*script.Summary
	for _, rec := range f.records {
		if rec.Status == status {
			out = append(out, rec.Summary())
		}
	}
	return out, nil
}

func (f *fakeStore) Count(_ context.Context, status string) (int64, error) {
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

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

// fakeAnalyzer returns a canned workflow state or error.
type fakeAnalyzer struct {
	state *workflow.State
	err   error
}

func (f *fakeAnalyzer) Run(context.Context, string) (*workflow.State, error) {
	return f.state, f.err
}

func completedState() *workflow.State {
	return &workflow.State{
		Analysis: &analysis.ComprehensiveAnalysis{
			Title:           "Test Script",
			Scenes:          []analysis.Scene{{Number: 1, Heading: "INT. LAB - DAY"}},
			EstimatedBudget: 2_000_000,
			BudgetCategory:  analysis.BudgetLow,
		},
		APICallsUsed: analysis.ExpectedCalls,
		Status:       workflow.StatusCompleted,
	}
}

func newTestServer(t *testing.T, store ScriptStore, analyzer Analyzer) http.Handler {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:   slog.New(slog.DiscardHandler),
		Store:    store,
		Analyzer: analyzer,
	})
	require.NoError(t, err)
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body io.Reader) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestNewServerRequiresStore(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestRootBanner(t *testing.T) {
	h := newTestServer(t, newFakeStore(), nil)

	rec, payload := doJSON(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", payload["status"])
	assert.Equal(t, Version, payload["version"])
}

func TestHealth(t *testing.T) {
	store := newFakeStore()
	h := newTestServer(t, store, nil)

	rec, payload := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", payload["database"])
	assert.Equal(t, "disabled", payload["archive"])

	store.pingErr = errors.New("connection refused")
	_, payload = doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Contains(t, payload["database"], "error:")
}

func TestListScripts(t *testing.T) {
	store := newFakeStore()
	for range 3 {
		_, err := store.Save(context.Background(), script.SaveParams{
			Filename: "a.pdf", Analysis: json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}
	h := newTestServer(t, store, nil)

	rec, payload := doJSON(t, h, http.MethodGet, "/analyzed-scripts?skip=0&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["success"])
	assert.Len(t, payload["data"], 3)

	p, ok := payload["pagination"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, p["total"])
	assert.EqualValues(t, 3, p["returned"])
	assert.Equal(t, false, p["has_more"])
}

func TestListScriptsValidation(t *testing.T) {
	h := newTestServer(t, newFakeStore(), nil)

	rec, _ := doJSON(t, h, http.MethodGet, "/analyzed-scripts?limit=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/analyzed-scripts?limit=5000", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/analyzed-scripts?skip=-1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	store := newFakeStore()
	store.listErr = script.ErrInvalidOrderBy
	h = newTestServer(t, store, nil)
	rec, _ = doJSON(t, h, http.MethodGet, "/analyzed-scripts?order_by=analysis", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetScript(t *testing.T) {
	store := newFakeStore()
	saved, err := store.Save(context.Background(), script.SaveParams{
		Filename: "a.pdf", Analysis: json.RawMessage(`{"title":"A"}`),
	})
	require.NoError(t, err)
	h := newTestServer(t, store, nil)

	rec, payload := doJSON(t, h, http.MethodGet, "/analyzed-scripts/"+saved.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := payload["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a.pdf", data["filename"])

	rec, _ = doJSON(t, h, http.MethodGet, "/analyzed-scripts/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/analyzed-scripts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteScript(t *testing.T) {
	store := newFakeStore()
	saved, err := store.Save(context.Background(), script.SaveParams{
		Filename: "a.pdf", Analysis: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	h := newTestServer(t, store, nil)

	rec, payload := doJSON(t, h, http.MethodDelete, "/analyzed-scripts/"+saved.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["success"])

	rec, _ = doJSON(t, h, http.MethodDelete, "/analyzed-scripts/"+saved.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveAnalysis(t *testing.T) {
	store := newFakeStore()
	h := newTestServer(t, store, nil)

	body := `{
		"filename": "heat.pdf",
		"file_size_bytes": 2048,
		"analysis_data": {"title":"Heat","scenes":[{"number":1,"heading":"INT. BANK - DAY"}],"estimated_budget":60000000,"budget_category":"high"},
		"processing_time_seconds": 42.5,
		"api_calls_used": 2
	}`
	rec, payload := doJSON(t, h, http.MethodPost, "/save-analysis", strings.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, payload["success"])
	assert.NotEmpty(t, payload["database_id"])

	meta, ok := payload["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "heat.pdf", meta["filename"])
	assert.Equal(t, "heat.pdf", meta["original_filename"]) // falls back to filename
	assert.EqualValues(t, 1, meta["total_scenes"])         // derived from payload
	assert.Equal(t, "high", meta["budget_category"])
}

func TestSaveAnalysisValidation(t *testing.T) {
	h := newTestServer(t, newFakeStore(), nil)

	rec, _ := doJSON(t, h, http.MethodPost, "/save-analysis", strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/save-analysis",
		strings.NewReader(`{"analysis_data":{"title":"x"}}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/save-analysis",
		strings.NewReader(`{"filename":"a.pdf"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/save-analysis",
		strings.NewReader(`{"filename":"a.pdf","file_size_bytes":-1,"analysis_data":{"title":"x"}}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/save-analysis",
		strings.NewReader(`{"filename":"a.pdf","file_size_bytes":1099511627776,"analysis_data":{"title":"x"}}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func pdfUpload(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile(uploadFormField, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake content"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestAnalyzeScript(t *testing.T) {
	store := newFakeStore()
	h := newTestServer(t, store, &fakeAnalyzer{state: completedState()})

	body, contentType := pdfUpload(t, "heat.pdf")
	req := httptest.NewRequest(http.MethodPost, "/analyze-script", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["success"])

	opt, ok := payload["optimization_info"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, analysis.ExpectedCalls, opt["expected_calls"])

	saveReq, ok := payload["save_request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "heat.pdf", saveReq["filename"])
	assert.NotNil(t, saveReq["analysis_data"])

	// save defaults to true, so the record was persisted.
	assert.NotEmpty(t, payload["database_id"])
	assert.Len(t, store.records, 1)
}

func TestAnalyzeScriptSkipSave(t *testing.T) {
	store := newFakeStore()
	h := newTestServer(t, store, &fakeAnalyzer{state: completedState()})

	body, contentType := pdfUpload(t, "heat.pdf")
	req := httptest.NewRequest(http.MethodPost, "/analyze-script?save=false", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Nil(t, payload["database_id"])
	assert.Empty(t, store.records)
}

func TestAnalyzeScriptSkipSaveLegacyParam(t *testing.T) {
	store := newFakeStore()
	h := newTestServer(t, store, &fakeAnalyzer{state: completedState()})

	body, contentType := pdfUpload(t, "heat.pdf")
	req := httptest.NewRequest(http.MethodPost, "/analyze-script?save_to_db=false", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.records)
}

func TestAnalyzeScriptSaveFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	h := newTestServer(t, store, &fakeAnalyzer{state: completedState()})

	body, contentType := pdfUpload(t, "heat.pdf")
	req := httptest.NewRequest(http.MethodPost, "/analyze-script", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["success"])
	assert.Contains(t, payload["database_error"], "disk full")
}

func TestAnalyzeScriptErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "extraction failure",
			err:        analysis.ErrExtraction,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "validation failure",
			err:        analysis.ErrValidation,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "model failure",
			err:        analysis.ErrAnalysis,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAnalyzer{state: &workflow.State{Status: workflow.StatusFailed}, err: tt.err}
			h := newTestServer(t, newFakeStore(), fa)

			body, contentType := pdfUpload(t, "heat.pdf")
			req := httptest.NewRequest(http.MethodPost, "/analyze-script", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestAnalyzeScriptRejectsNonPDF(t *testing.T) {
	h := newTestServer(t, newFakeStore(), &fakeAnalyzer{state: completedState()})

	body, contentType := pdfUpload(t, "notes.txt")
	req := httptest.NewRequest(http.MethodPost, "/analyze-script", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyzeScriptRejectsEmptyFile(t *testing.T) {
	h := newTestServer(t, newFakeStore(), &fakeAnalyzer{state: completedState()})

	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	_, err := mw.CreateFormFile(uploadFormField, "empty.pdf")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze-script", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyzeScriptDisabledWithoutAnalyzer(t *testing.T) {
	h := newTestServer(t, newFakeStore(), nil)

	body, contentType := pdfUpload(t, "heat.pdf")
	req := httptest.NewRequest(http.MethodPost, "/analyze-script", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

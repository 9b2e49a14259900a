package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/screenlens/screenlens/internal/analysis"
	"github.com/screenlens/screenlens/internal/script"
)

// Upload limits for /analyze-script.
const (
	maxUploadBytes  = 10 << 20 // 10 MiB
	uploadFormField = "file"
)

type analyzeHandler struct {
	analyzer Analyzer
	store    ScriptStore
	archive  Archiver
	timeout  time.Duration
	logger   *slog.Logger
}

// analyzeMetadata describes the upload and the run that analyzed it.
type analyzeMetadata struct {
	Filename              string  `json:"filename"`
	OriginalFilename      string  `json:"original_filename"`
	FileSizeBytes         int64   `json:"file_size_bytes"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	Timestamp             string  `json:"timestamp"`
	APICallsUsed          int     `json:"api_calls_used"`
}

// saveAnalysisRequest is the /save-analysis payload. /analyze-script
// returns a ready-to-post copy of it in the save_request field.
type saveAnalysisRequest struct {
	Filename              string          `json:"filename"`
	OriginalFilename      string          `json:"original_filename"`
	FileSizeBytes         int64           `json:"file_size_bytes"`
	AnalysisData          json.RawMessage `json:"analysis_data"`
	ProcessingTimeSeconds float64         `json:"processing_time_seconds"`
	APICallsUsed          int             `json:"api_calls_used"`
}

// analyze handles POST /analyze-script: accept a PDF upload, run the
// pipeline within the analysis timeout, and return the analysis with a
// save-compatible envelope. With ?save=true (the default) the result is
// also persisted; persistence failures are reported in the response but
// never fail the analysis.
func (h *analyzeHandler) analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("upload exceeds %d bytes", maxUploadBytes), h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_upload",
			"multipart form with a 'file' field is required", h.logger)
		return
	}
	defer file.Close()

	if err := validateUpload(header.Filename, header.Header.Get("Content-Type")); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "invalid_file", err.Error(), h.logger)
		return
	}

	tempPath, fileSize, err := spoolUpload(file)
	if err != nil {
		h.logger.Error("failed to spool upload", "error", err, "filename", header.Filename)
		WriteError(w, http.StatusInternalServerError, "upload_failed",
			"failed to store uploaded file", h.logger)
		return
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil {
			h.logger.Warn("failed to cleanup temp file", "path", tempPath, "error", err)
		}
	}()

	if fileSize == 0 {
		WriteError(w, http.StatusUnprocessableEntity, "invalid_file",
			"uploaded file is empty", h.logger)
		return
	}

	start := time.Now()
	h.logger.Info("starting script analysis",
		"filename", header.Filename, "size_bytes", fileSize)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	state, err := h.analyzer.Run(ctx, tempPath)
	if err != nil {
		h.writeAnalysisError(w, ctx, err)
		return
	}

	processingTime := round2(time.Since(start).Seconds())
	h.logger.Info("script analysis completed",
		"filename", header.Filename,
		"seconds", processingTime,
		"api_calls", state.APICallsUsed)

	analysisJSON, err := json.Marshal(state.Analysis)
	if err != nil {
		h.logger.Error("failed to encode analysis", "error", err)
		WriteError(w, http.StatusInternalServerError, "analysis_failed",
			"analysis completed but could not be encoded", h.logger)
		return
	}

	saveReq := saveAnalysisRequest{
		Filename:              header.Filename,
		OriginalFilename:      header.Filename,
		FileSizeBytes:         fileSize,
		AnalysisData:          analysisJSON,
		ProcessingTimeSeconds: processingTime,
		APICallsUsed:          state.APICallsUsed,
	}

	resp := map[string]any{
		"success": true,
		"message": "Script analysis completed successfully",
		"optimization_info": map[string]int{
			"actual_calls_used": state.APICallsUsed,
			"expected_calls":    analysis.ExpectedCalls,
		},
		"metadata": analyzeMetadata{
			Filename:              header.Filename,
			OriginalFilename:      header.Filename,
			FileSizeBytes:         fileSize,
			ProcessingTimeSeconds: processingTime,
			Timestamp:             time.Now().Format(time.RFC3339),
			APICallsUsed:          state.APICallsUsed,
		},
		// data and analysis_data carry the same payload: data for older
		// clients, analysis_data to match the save endpoint's field name.
		"data":          json.RawMessage(analysisJSON),
		"analysis_data": json.RawMessage(analysisJSON),
		"save_request":  saveReq,
	}

	if saveRequested(r.URL.Query()) {
		saved, err := h.persist(r.Context(), saveReq, state.Analysis)
		if err != nil {
			h.logger.Error("failed to save analysis", "error", err, "filename", header.Filename)
			resp["database_error"] = err.Error()
		} else {
			resp["database_id"] = saved.ID.String()
			resp["saved_at"] = saved.CreatedAt.Format(time.RFC3339)
		}
	}

	WriteJSON(w, http.StatusOK, resp, h.logger)
}

// saveAnalysis handles POST /save-analysis: persist an analysis payload
// previously returned by /analyze-script.
func (h *analyzeHandler) saveAnalysis(w http.ResponseWriter, r *http.Request) {
	var req saveAnalysisRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request",
			"invalid JSON body: "+err.Error(), h.logger)
		return
	}
	if req.Filename == "" {
		WriteError(w, http.StatusUnprocessableEntity, "invalid_request",
			"filename is required", h.logger)
		return
	}
	if len(req.AnalysisData) == 0 {
		WriteError(w, http.StatusUnprocessableEntity, "invalid_request",
			"analysis_data is required", h.logger)
		return
	}
	// Same ceiling as uploads; a size outside it cannot describe a file
	// this service analyzed.
	if req.FileSizeBytes < 0 || req.FileSizeBytes > maxUploadBytes {
		WriteError(w, http.StatusUnprocessableEntity, "invalid_request",
			fmt.Sprintf("file_size_bytes must be between 0 and %d", int(maxUploadBytes)), h.logger)
		return
	}

	var ca analysis.ComprehensiveAnalysis
	if err := json.Unmarshal(req.AnalysisData, &ca); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "invalid_request",
			"analysis_data is not a valid analysis payload: "+err.Error(), h.logger)
		return
	}
	// Structural oddities are logged, not rejected, matching the
	// analyze endpoint.
	if err := ca.Validate(); err != nil {
		h.logger.Warn("analysis validation warning", "error", err, "filename", req.Filename)
	}

	saved, err := h.persist(r.Context(), req, &ca)
	if err != nil {
		h.logger.Error("failed to save analysis", "error", err, "filename", req.Filename)
		WriteError(w, http.StatusInternalServerError, "database_error",
			"failed to save analysis to database: "+err.Error(), h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"message":     "Analysis saved to database successfully",
		"database_id": saved.ID.String(),
		"saved_at":    saved.CreatedAt.Format(time.RFC3339),
		"metadata": map[string]any{
			"filename":                saved.Filename,
			"original_filename":       saved.OriginalFilename,
			"file_size_bytes":         saved.FileSizeBytes,
			"processing_time_seconds": saved.ProcessingTimeSeconds,
			"api_calls_used":          saved.APICallsUsed,
			"status":                  saved.Status,
			"total_scenes":            saved.TotalScenes,
			"estimated_budget":        saved.EstimatedBudget,
			"budget_category":         saved.BudgetCategory,
		},
	}, h.logger)
}

// persist stores the analysis and mirrors it into the archive. Archive
// failures are logged only.
func (h *analyzeHandler) persist(ctx context.Context, req saveAnalysisRequest, ca *analysis.ComprehensiveAnalysis) (*script.AnalyzedScript, error) {
	original := req.OriginalFilename
	if original == "" {
		original = req.Filename
	}

	saved, err := h.store.Save(ctx, script.SaveParams{
		Filename:              req.Filename,
		OriginalFilename:      original,
		FileSizeBytes:         req.FileSizeBytes,
		Status:                script.StatusCompleted,
		Analysis:              req.AnalysisData,
		TotalScenes:           ca.SceneCount(),
		TotalCharacters:       ca.CharacterCount(),
		TotalLocations:        ca.LocationCount(),
		EstimatedBudget:       ca.EstimatedBudget,
		BudgetCategory:        ca.BudgetCategory,
		ProcessingTimeSeconds: req.ProcessingTimeSeconds,
		APICallsUsed:          req.APICallsUsed,
	})
	if err != nil {
		return nil, err
	}

	if h.archive != nil {
		if err := h.archive.Put(ctx, saved.ID.String(), saved.Filename, req.AnalysisData); err != nil {
			h.logger.Warn("failed to archive analysis", "error", err, "id", saved.ID)
		}
	}
	return saved, nil
}

// writeAnalysisError maps pipeline failures onto HTTP statuses:
// timeout → 408, extraction and validation → 422, everything else → 500.
func (h *analyzeHandler) writeAnalysisError(w http.ResponseWriter, ctx context.Context, err error) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		WriteError(w, http.StatusRequestTimeout, "analysis_timeout",
			"Analysis timed out. Please try with a smaller script.", h.logger)
	case errors.Is(err, analysis.ErrExtraction):
		WriteError(w, http.StatusUnprocessableEntity, "extraction_failed",
			"PDF extraction failed: "+err.Error(), h.logger)
	case errors.Is(err, analysis.ErrValidation):
		WriteError(w, http.StatusUnprocessableEntity, "validation_failed",
			"Script validation failed: "+err.Error(), h.logger)
	default:
		h.logger.Error("analysis failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "analysis_failed",
			"Analysis failed: "+err.Error(), h.logger)
	}
}

// validateUpload checks the filename extension and declared content type.
// saveRequested reports whether the analysis should be persisted.
// Defaults to true; clients opt out with ?save=false or the older
// ?save_to_db=false spelling.
func saveRequested(q url.Values) bool {
	return q.Get("save") != "false" && q.Get("save_to_db") != "false"
}

func validateUpload(filename, contentType string) error {
	if filename == "" {
		return errors.New("filename is required")
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return fmt.Errorf("only PDF files are supported, got %q", filepath.Ext(filename))
	}
	if contentType != "" && contentType != "application/pdf" && contentType != "application/octet-stream" {
		return fmt.Errorf("unsupported content type %q", contentType)
	}
	return nil
}

// spoolUpload copies the upload to a temp file so the PDF reader can
// seek it, returning the path and byte count.
func spoolUpload(file io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp("", "screenlens-*.pdf")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}

	n, err := io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("writing temp file: %w", err)
	}
	return tmp.Name(), n, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

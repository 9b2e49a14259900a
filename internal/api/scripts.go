package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/screenlens/screenlens/internal/script"
)

type scriptsHandler struct {
	store   ScriptStore
	archive Archiver
	logger  *slog.Logger
}

// pagination is the envelope attached to listing responses.
type pagination struct {
	Total    int64 `json:"total"`
	Skip     int   `json:"skip"`
	Limit    int   `json:"limit"`
	Returned int   `json:"returned"`
	HasMore  bool  `json:"has_more"`
}

// list handles GET /analyzed-scripts with pagination, ordering, status
// filtering and filename search. Search and status filtering are
// mutually exclusive; search wins when both are given.
func (h *scriptsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	skip, err := queryInt(q.Get("skip"), 0)
	if err != nil || skip < 0 {
		WriteError(w, http.StatusUnprocessableEntity, "invalid_request",
			"skip must be a non-negative integer", h.logger)
		return
	}
	limit, err := queryInt(q.Get("limit"), script.DefaultListLimit)
	if err != nil || limit < 1 || limit > script.MaxListLimit {
		WriteError(w, http.StatusUnprocessableEntity, "invalid_request",
			fmt.Sprintf("limit must be between 1 and %d", script.MaxListLimit), h.logger)
		return
	}

	var (
		ctx          = r.Context()
		search       = q.Get("search")
		statusFilter = q.Get("status_filter")
		summaries    []*script.Summary
		total        int64
	)

	switch {
	case search != "":
		summaries, err = h.store.Search(ctx, search, skip, limit)
		total = int64(len(summaries))
	case statusFilter != "":
		summaries, err = h.store.ByStatus(ctx, statusFilter, skip, limit)
		if err == nil {
			total, err = h.store.Count(ctx, statusFilter)
		}
	default:
		summaries, err = h.store.List(ctx, script.ListParams{
			Skip:     skip,
			Limit:    limit,
			OrderBy:  q.Get("order_by"),
			OrderDir: q.Get("order_direction"),
		})
		if err == nil {
			total, err = h.store.Count(ctx, "")
		}
	}

	if errors.Is(err, script.ErrInvalidOrderBy) {
		WriteError(w, http.StatusUnprocessableEntity, "invalid_request",
			"order_by must be one of the sortable columns", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("failed to list scripts", "error", err)
		WriteError(w, http.StatusInternalServerError, "database_error",
			"Failed to retrieve scripts", h.logger)
		return
	}

	resp := map[string]any{
		"success": true,
		"data":    summaries,
		"pagination": pagination{
			Total:    total,
			Skip:     skip,
			Limit:    limit,
			Returned: len(summaries),
			HasMore:  int64(skip+len(summaries)) < total,
		},
	}
	if search != "" {
		resp["search_term"] = search
	}
	WriteJSON(w, http.StatusOK, resp, h.logger)
}

// get handles GET /analyzed-scripts/{id}, returning the full record
// including the analysis payload.
func (h *scriptsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scriptID(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, script.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Analyzed script not found", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("failed to get script", "error", err, "id", id)
		WriteError(w, http.StatusInternalServerError, "database_error",
			"Failed to retrieve script", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    rec,
		"message": "Script retrieved successfully",
	}, h.logger)
}

// delete handles DELETE /analyzed-scripts/{id}. The archived document,
// if any, is removed best-effort.
func (h *scriptsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scriptID(w, r)
	if !ok {
		return
	}

	err := h.store.Delete(r.Context(), id)
	if errors.Is(err, script.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Analyzed script not found", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("failed to delete script", "error", err, "id", id)
		WriteError(w, http.StatusInternalServerError, "database_error",
			"Failed to delete script", h.logger)
		return
	}

	if h.archive != nil {
		if err := h.archive.Delete(r.Context(), id.String()); err != nil {
			h.logger.Warn("failed to delete archived analysis", "error", err, "id", id)
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Analyzed script %s deleted successfully", id),
	}, h.logger)
}

// scriptID parses the {id} path value. Writes a 400 and returns false
// when it is not a UUID.
func (h *scriptsHandler) scriptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id",
			"script ID must be a valid UUID", h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter.
func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// Package script provides persistence for analyzed screenplay records.
//
// The full analysis payload is stored as JSONB; summary fields used by
// listing, filtering and the dashboard are denormalized into columns.
package script

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Record status values.
const (
	// StatusCompleted marks a successfully analyzed script.
	StatusCompleted = "completed"

	// StatusFailed marks a script whose analysis did not finish.
	StatusFailed = "failed"
)

var (
	// ErrNotFound is returned when no record exists for the given ID.
	ErrNotFound = errors.New("analyzed script not found")

	// ErrInvalidOrderBy is returned when the requested sort column is not
	// in the whitelist.
	ErrInvalidOrderBy = errors.New("invalid order_by column")
)

// AnalyzedScript is a fully hydrated analyzed screenplay record.
type AnalyzedScript struct {
	ID               uuid.UUID       `json:"id"`
	Filename         string          `json:"filename"`
	OriginalFilename string          `json:"original_filename"`
	FileSizeBytes    int64           `json:"file_size_bytes"`
	Status           string          `json:"status"`
	Analysis         json.RawMessage `json:"analysis"`

	TotalScenes     int     `json:"total_scenes"`
	TotalCharacters int     `json:"total_characters"`
	TotalLocations  int     `json:"total_locations"`
	EstimatedBudget float64 `json:"estimated_budget"`
	BudgetCategory  string  `json:"budget_category"`

	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	APICallsUsed          int     `json:"api_calls_used"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the listing projection of the record.
func (s *AnalyzedScript) Summary() *Summary {
	return &Summary{
		ID:                    s.ID,
		Filename:              s.Filename,
		OriginalFilename:      s.OriginalFilename,
		FileSizeBytes:         s.FileSizeBytes,
		Status:                s.Status,
		TotalScenes:           s.TotalScenes,
		TotalCharacters:       s.TotalCharacters,
		TotalLocations:        s.TotalLocations,
		EstimatedBudget:       s.EstimatedBudget,
		BudgetCategory:        s.BudgetCategory,
		ProcessingTimeSeconds: s.ProcessingTimeSeconds,
		APICallsUsed:          s.APICallsUsed,
		CreatedAt:             s.CreatedAt,
	}
}

// Summary is the lightweight projection used in listings. It omits the
// analysis payload, which can run to hundreds of kilobytes per record.
type Summary struct {
	ID                    uuid.UUID `json:"id"`
	Filename              string    `json:"filename"`
	OriginalFilename      string    `json:"original_filename"`
	FileSizeBytes         int64     `json:"file_size_bytes"`
	Status                string    `json:"status"`
	TotalScenes           int       `json:"total_scenes"`
	TotalCharacters       int       `json:"total_characters"`
	TotalLocations        int       `json:"total_locations"`
	EstimatedBudget       float64   `json:"estimated_budget"`
	BudgetCategory        string    `json:"budget_category"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	APICallsUsed          int       `json:"api_calls_used"`
	CreatedAt             time.Time `json:"created_at"`
}

// SaveParams carries everything needed to persist a new analyzed script.
type SaveParams struct {
	Filename         string
	OriginalFilename string
	FileSizeBytes    int64
	Status           string // empty = StatusCompleted
	Analysis         json.RawMessage

	TotalScenes     int
	TotalCharacters int
	TotalLocations  int
	EstimatedBudget float64
	BudgetCategory  string

	ProcessingTimeSeconds float64
	APICallsUsed          int
}

// Sort directions accepted by ListParams.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListParams controls pagination and ordering for List.
type ListParams struct {
	Skip     int
	Limit    int
	OrderBy  string // whitelist-validated column, default created_at
	OrderDir string // "asc" or "desc", default "desc"
}

// Listing limits. Limit is clamped into [1, MaxListLimit].
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// normalize applies defaults and clamps pagination values.
func (p *ListParams) normalize() {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.OrderBy == "" {
		p.OrderBy = "created_at"
	}
	if p.OrderDir != OrderAsc {
		p.OrderDir = OrderDesc
	}
}

// orderColumns is the whitelist of sortable columns. Anything else is
// rejected before reaching SQL.
var orderColumns = map[string]bool{
	"created_at":              true,
	"filename":                true,
	"file_size_bytes":         true,
	"total_scenes":            true,
	"estimated_budget":        true,
	"processing_time_seconds": true,
}

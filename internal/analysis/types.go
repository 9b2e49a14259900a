// Package analysis runs AI-powered screenplay analysis.
//
// A single analysis is two calls: local PDF text extraction, then one
// structured-output Gemini generation that returns the complete
// ComprehensiveAnalysis. Both are counted in APICallsUsed for parity with
// the service's documented two-call budget.
package analysis

import (
	"errors"
	"fmt"
	"slices"
)

// Error categories. The HTTP layer maps these to status codes with
// errors.Is, so analysis failures never rely on message sniffing.
var (
	// ErrExtraction indicates the PDF text extraction failed.
	ErrExtraction = errors.New("script extraction failed")

	// ErrValidation indicates the extracted text does not look like a
	// screenplay (empty, too short, or binary junk).
	ErrValidation = errors.New("script validation failed")

	// ErrAnalysis indicates the model call failed or returned an unusable
	// result.
	ErrAnalysis = errors.New("script analysis failed")
)

// Budget categories returned by the model.
const (
	BudgetLow    = "low"
	BudgetMedium = "medium"
	BudgetHigh   = "high"
)

// ExpectedCalls is the call budget for one analysis: extraction plus one
// generation.
const ExpectedCalls = 2

// Scene is a single screenplay scene breakdown.
type Scene struct {
	Number           int      `json:"number"`
	Heading          string   `json:"heading"` // e.g. "INT. WAREHOUSE - NIGHT"
	Location         string   `json:"location"`
	TimeOfDay        string   `json:"time_of_day"`
	InteriorExterior string   `json:"interior_exterior"` // "INT", "EXT" or "INT/EXT"
	Characters       []string `json:"characters"`
	Props            []string `json:"props"`
	Summary          string   `json:"summary"`
}

// Character is a character profile across the whole script.
type Character struct {
	Name        string `json:"name"`
	Role        string `json:"role"` // "lead", "supporting", "minor"
	SceneCount  int    `json:"scene_count"`
	Description string `json:"description"`
}

// Location aggregates scenes shot at one place.
type Location struct {
	Name             string `json:"name"`
	InteriorExterior string `json:"interior_exterior"`
	SceneCount       int    `json:"scene_count"`
}

// BudgetLine is one line of the production cost breakdown.
type BudgetLine struct {
	Category      string  `json:"category"` // e.g. "cast", "locations", "vfx"
	EstimatedCost float64 `json:"estimated_cost"`
	Notes         string  `json:"notes"`
}

// ComprehensiveAnalysis is the complete structured result of one
// screenplay analysis.
type ComprehensiveAnalysis struct {
	Title   string   `json:"title"`
	Genre   string   `json:"genre"`
	Logline string   `json:"logline"`
	Themes  []string `json:"themes"`

	Scenes     []Scene     `json:"scenes"`
	Characters []Character `json:"characters"`
	Locations  []Location  `json:"locations"`

	EstimatedBudget float64      `json:"estimated_budget"`
	BudgetCategory  string       `json:"budget_category"` // "low", "medium" or "high"
	BudgetBreakdown []BudgetLine `json:"budget_breakdown"`

	ProductionNotes []string `json:"production_notes"`
	Summary         string   `json:"summary"`
}

// SceneCount returns the number of scenes in the breakdown.
func (a *ComprehensiveAnalysis) SceneCount() int { return len(a.Scenes) }

// CharacterCount returns the number of profiled characters.
func (a *ComprehensiveAnalysis) CharacterCount() int { return len(a.Characters) }

// LocationCount returns the number of distinct locations.
func (a *ComprehensiveAnalysis) LocationCount() int { return len(a.Locations) }

// Validate checks structural sanity of a model result. Callers treat
// failures as warnings, not hard errors: a partially filled analysis is
// still worth returning to the user.
func (a *ComprehensiveAnalysis) Validate() error {
	if len(a.Scenes) == 0 {
		return fmt.Errorf("%w: no scenes in breakdown", ErrValidation)
	}
	if a.EstimatedBudget < 0 {
		return fmt.Errorf("%w: negative budget estimate %.2f", ErrValidation, a.EstimatedBudget)
	}
	if a.BudgetCategory != "" &&
		!slices.Contains([]string{BudgetLow, BudgetMedium, BudgetHigh}, a.BudgetCategory) {
		return fmt.Errorf("%w: unknown budget category %q", ErrValidation, a.BudgetCategory)
	}
	return nil
}

// Result is the outcome of one analysis run.
type Result struct {
	Analysis     *ComprehensiveAnalysis `json:"analysis"`
	APICallsUsed int                    `json:"api_calls_used"`
	ScriptChars  int                    `json:"script_chars"`
	Pages        int                    `json:"pages"`
}

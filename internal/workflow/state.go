package workflow

import "github.com/screenlens/screenlens/internal/analysis"

// Pipeline status values stored on State after a run.
const (
	StatusCompleted = "analysis_completed"
	StatusFailed    = "analysis_failed"
)

// State carries a single screenplay through the pipeline. Nodes mutate it
// in place; after Run it holds either a populated Analysis or the failure
// details.
type State struct {
	// Input.
	PDFPath  string
	Filename string

	// Populated by the analyst node.
	Analysis     *analysis.ComprehensiveAnalysis
	APICallsUsed int
	ScriptChars  int
	Pages        int

	// Human-review routing. Review is disabled, so FeedbackRequired stays
	// false and the feedback node only finalizes the status.
	FeedbackRequired bool
	FeedbackNotes    string

	Status string
	Errors []string
}

// Failed reports whether the run ended without a usable analysis.
func (s *State) Failed() bool {
	return s.Analysis == nil || s.Status == StatusFailed
}

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/screenlens/screenlens/internal/analysis"
)

// Node names in the analysis graph.
const (
	nodeAnalyst  = "analyst"
	nodeFeedback = "feedback"
)

// Pipeline wires the analyst into the workflow graph and runs one
// screenplay end to end.
type Pipeline struct {
	analyst *analysis.Analyst
	graph   *Graph
	logger  *slog.Logger
}

// NewPipeline builds the two-node analysis graph:
//
//	analyst → feedback → (analyst if feedback requested, else End)
//
// The loop back to the analyst exists for a future review step; with
// review disabled the feedback node always ends the run.
func NewPipeline(analyst *analysis.Analyst, logger *slog.Logger) (*Pipeline, error) {
	if analyst == nil {
		return nil, fmt.Errorf("workflow: analyst is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		analyst: analyst,
		logger:  logger,
	}

	g := NewGraph(logger)
	g.AddNode(nodeAnalyst, p.runAnalyst)
	g.AddNode(nodeFeedback, p.runFeedback)
	g.AddEdge(nodeAnalyst, nodeFeedback)
	g.AddConditionalEdge(nodeFeedback, func(s *State) string {
		if s.FeedbackRequired {
			return nodeAnalyst
		}
		return End
	})
	g.SetEntry(nodeAnalyst)
	p.graph = g

	return p, nil
}

// Run analyzes the screenplay at pdfPath. The returned state is never nil
// and carries partial progress (API calls spent, errors) even when err is
// non-nil.
func (p *Pipeline) Run(ctx context.Context, pdfPath string) (*State, error) {
	state := &State{
		PDFPath:  pdfPath,
		Filename: filepath.Base(pdfPath),
	}

	if err := p.graph.Run(ctx, state); err != nil {
		state.Status = StatusFailed
		return state, err
	}
	return state, nil
}

// runAnalyst extracts the screenplay text and calls the model. On failure
// it records what was spent before propagating the error.
func (p *Pipeline) runAnalyst(ctx context.Context, state *State) error {
	res, err := p.analyst.Analyze(ctx, state.PDFPath)
	if res != nil {
		state.APICallsUsed = res.APICallsUsed
		state.ScriptChars = res.ScriptChars
		state.Pages = res.Pages
	}
	if err != nil {
		state.Status = StatusFailed
		state.Errors = append(state.Errors, err.Error())
		return err
	}

	state.Analysis = res.Analysis
	p.logger.Info("analyst node completed",
		"filename", state.Filename,
		"scenes", res.Analysis.SceneCount(),
		"characters", res.Analysis.CharacterCount(),
		"api_calls", state.APICallsUsed)
	return nil
}

// runFeedback is the human-review gate. Review is disabled, so it clears
// any routing flag and marks the run complete.
func (p *Pipeline) runFeedback(_ context.Context, state *State) error {
	state.FeedbackRequired = false
	state.Status = StatusCompleted
	return nil
}

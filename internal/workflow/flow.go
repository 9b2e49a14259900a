package workflow

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"

	"github.com/screenlens/screenlens/internal/analysis"
)

// FlowName is the registered name of the analysis flow in Genkit.
const FlowName = "screenlens/analyzeScript"

// FlowInput is the request payload for the analysis flow.
type FlowInput struct {
	PDFPath string `json:"pdfPath"`
}

// FlowOutput is the response payload from the analysis flow.
type FlowOutput struct {
	Analysis     *analysis.ComprehensiveAnalysis `json:"analysis"`
	Status       string                          `json:"status"`
	APICallsUsed int                             `json:"apiCallsUsed"`
	Pages        int                             `json:"pages"`
}

// Flow is the Genkit flow type for script analysis. Exported so callers
// can expose it with genkit.Handler() if they want a raw flow endpoint.
type Flow = core.Flow[FlowInput, FlowOutput, struct{}]

// Package-level singleton: genkit.DefineFlow panics on re-registration,
// so the flow is defined once per process.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the analysis flow singleton, defining it on first call.
// Subsequent calls return the existing flow and ignore the parameters.
func NewFlow(g *genkit.Genkit, pipeline *Pipeline) *Flow {
	flowOnce.Do(func() {
		flow = defineFlow(g, pipeline)
	})
	return flow
}

// ResetFlowForTesting resets the flow singleton so tests can define it
// against a fresh Genkit instance. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

// defineFlow registers the flow with Genkit. The flow is a thin wrapper
// over Pipeline.Run so DevUI tracing sees one span per screenplay.
func defineFlow(g *genkit.Genkit, pipeline *Pipeline) *Flow {
	return genkit.DefineFlow(g, FlowName,
		func(ctx context.Context, input FlowInput) (FlowOutput, error) {
			state, err := pipeline.Run(ctx, input.PDFPath)
			out := FlowOutput{
				Status:       state.Status,
				APICallsUsed: state.APICallsUsed,
				Pages:        state.Pages,
			}
			if err != nil {
				return out, err
			}
			out.Analysis = state.Analysis
			return out, nil
		},
	)
}

package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// analystSystemPrompt frames the model as a production analyst. Structured
// output constraints come from the ComprehensiveAnalysis schema, not the
// prompt text.
const analystSystemPrompt = `You are an experienced film production analyst.
Given the full text of a screenplay, produce a complete production breakdown:
every scene with its heading, location, time of day and characters; character
profiles; distinct locations; a realistic production budget estimate in USD
with a category (low under 5M, medium 5M-50M, high over 50M) and a per-category
cost breakdown; production notes for scheduling risks; genre, themes, logline
and a short summary. Base every figure on what is actually in the script.`

// DefaultRequestsPerMinute bounds generation calls against provider quota.
const DefaultRequestsPerMinute = 10

// AnalystConfig configures an Analyst.
type AnalystConfig struct {
	Genkit    *genkit.Genkit
	ModelName string       // provider-qualified, e.g. "googleai/gemini-2.0-flash"
	Retry     *RetryConfig // nil = DefaultRetryConfig
	RPM       int          // requests per minute, 0 = DefaultRequestsPerMinute
	Logger    *slog.Logger // nil = slog.Default
}

// Analyst runs screenplay analysis against the configured model.
//
// Analyst is safe for concurrent use by multiple goroutines.
type Analyst struct {
	g         *genkit.Genkit
	modelName string
	retry     RetryConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewAnalyst creates an Analyst.
func NewAnalyst(cfg AnalystConfig) (*Analyst, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("%w: genkit instance is required", ErrAnalysis)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrAnalysis)
	}

	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = DefaultRequestsPerMinute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Analyst{
		g:         cfg.Genkit,
		modelName: cfg.ModelName,
		retry:     retry,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		logger:    logger,
	}, nil
}

// Analyze extracts the screenplay text from a PDF and runs the full
// analysis. Extraction failures wrap ErrExtraction or ErrValidation;
// model failures wrap ErrAnalysis.
func (a *Analyst) Analyze(ctx context.Context, pdfPath string) (*Result, error) {
	start := time.Now()

	text, pages, err := ExtractText(pdfPath)
	if err != nil {
		return nil, err
	}

	a.logger.Info("script text extracted",
		"path", pdfPath, "pages", pages, "chars", len(text))

	ca, err := a.AnalyzeText(ctx, text)
	if err != nil {
		// Extraction succeeded, so one of the two budgeted calls was spent.
		return &Result{APICallsUsed: 1, ScriptChars: len(text), Pages: pages}, err
	}

	a.logger.Info("script analysis completed",
		"path", pdfPath,
		"scenes", ca.SceneCount(),
		"characters", ca.CharacterCount(),
		"elapsed", time.Since(start),
	)

	return &Result{
		Analysis:     ca,
		APICallsUsed: ExpectedCalls,
		ScriptChars:  len(text),
		Pages:        pages,
	}, nil
}

// AnalyzeText runs the structured-output generation on already-extracted
// screenplay text.
func (a *Analyst) AnalyzeText(ctx context.Context, text string) (*ComprehensiveAnalysis, error) {
	resp, err := a.generateWithRetry(ctx, func(ctx context.Context) (*ai.ModelResponse, error) {
		return genkit.Generate(ctx, a.g,
			ai.WithModelName(a.modelName),
			ai.WithSystem(analystSystemPrompt),
			ai.WithPrompt("Analyze this screenplay:\n\n"+text),
			ai.WithOutputType(ComprehensiveAnalysis{}),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}

	var out ComprehensiveAnalysis
	if err := resp.Output(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding structured output: %w", ErrAnalysis, err)
	}

	// A structurally odd result is logged, not rejected: partial breakdowns
	// are still useful to the caller.
	if err := out.Validate(); err != nil {
		a.logger.Warn("analysis validation warning", "error", err)
	}

	return &out, nil
}

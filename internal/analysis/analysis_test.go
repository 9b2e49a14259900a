package analysis

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateScriptText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{
			name:    "empty",
			text:    "",
			wantErr: true,
		},
		{
			name:    "whitespace only",
			text:    "   \n\t  ",
			wantErr: true,
		},
		{
			name:    "too short",
			text:    "FADE IN:",
			wantErr: true,
		},
		{
			name:    "invalid utf8",
			text:    strings.Repeat("a", minScriptChars) + string([]byte{0xff, 0xfe}),
			wantErr: true,
		},
		{
			name: "plausible script",
			text: strings.Repeat("INT. WAREHOUSE - NIGHT\nNEIL counts the money.\n", 20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateScriptText(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTruncateUTF8(t *testing.T) {
	// Short input untouched.
	assert.Equal(t, "abc", truncateUTF8("abc", 10))

	// Never splits a multi-byte rune.
	s := strings.Repeat("世", 100) // 3 bytes each
	got := truncateUTF8(s, 10)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 10)
	assert.Equal(t, 9, len(got)) // 3 complete runes

	// Exact boundary.
	got = truncateUTF8("hello", 5)
	assert.Equal(t, "hello", got)
}

func TestExtractTextMissingFile(t *testing.T) {
	_, _, err := ExtractText("/nonexistent/script.pdf")
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestRetryableError(t *testing.T) {
	retryable := []error{
		errors.New("googleapi: Error 429: rate limit exceeded"),
		errors.New("quota exceeded for model"),
		errors.New("rpc error: code = Unavailable desc = 503 service unavailable"),
		errors.New("read tcp: connection reset by peer"),
		errors.New("context deadline exceeded: timeout"),
	}
	for _, err := range retryable {
		assert.True(t, retryableError(err), "expected retryable: %v", err)
	}

	permanent := []error{
		nil,
		errors.New("invalid argument: unknown model"),
		errors.New("API key not valid"),
	}
	for _, err := range permanent {
		assert.False(t, retryableError(err), "expected permanent: %v", err)
	}
}

func TestComprehensiveAnalysisValidate(t *testing.T) {
	valid := ComprehensiveAnalysis{
		Title:           "Heat",
		Scenes:          []Scene{{Number: 1, Heading: "INT. BANK - DAY"}},
		EstimatedBudget: 60_000_000,
		BudgetCategory:  BudgetHigh,
	}
	require.NoError(t, valid.Validate())

	noScenes := valid
	noScenes.Scenes = nil
	assert.ErrorIs(t, noScenes.Validate(), ErrValidation)

	negativeBudget := valid
	negativeBudget.EstimatedBudget = -1
	assert.ErrorIs(t, negativeBudget.Validate(), ErrValidation)

	badCategory := valid
	badCategory.BudgetCategory = "astronomical"
	assert.ErrorIs(t, badCategory.Validate(), ErrValidation)

	// Empty category is tolerated.
	noCategory := valid
	noCategory.BudgetCategory = ""
	assert.NoError(t, noCategory.Validate())
}

func TestNewAnalystValidation(t *testing.T) {
	_, err := NewAnalyst(AnalystConfig{})
	assert.ErrorIs(t, err, ErrAnalysis)
}

func TestCounts(t *testing.T) {
	ca := ComprehensiveAnalysis{
		Scenes:     make([]Scene, 3),
		Characters: make([]Character, 2),
		Locations:  make([]Location, 1),
	}
	assert.Equal(t, 3, ca.SceneCount())
	assert.Equal(t, 2, ca.CharacterCount())
	assert.Equal(t, 1, ca.LocationCount())
}

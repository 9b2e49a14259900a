package analysis

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Extraction limits.
const (
	// minScriptChars rejects extractions too short to be a screenplay
	// (a title page alone runs longer).
	minScriptChars = 200

	// maxScriptChars caps the text sent to the model. Roughly 100k tokens,
	// comfortably inside the Gemini context window; a feature screenplay
	// is ~250k chars.
	maxScriptChars = 400_000
)

// ExtractText extracts plain text from a screenplay PDF.
// Returns the text and the page count. Failures wrap ErrExtraction;
// content that does not look like a script wraps ErrValidation.
func ExtractText(path string) (string, int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: opening %s: %v", ErrExtraction, path, err)
	}
	defer func() { _ = f.Close() }()

	pages := reader.NumPage()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("%w: reading text: %v", ErrExtraction, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", 0, fmt.Errorf("%w: buffering text: %v", ErrExtraction, err)
	}

	text := buf.String()
	if err := validateScriptText(text); err != nil {
		return "", pages, err
	}

	if len(text) > maxScriptChars {
		text = truncateUTF8(text, maxScriptChars)
	}

	return text, pages, nil
}

// validateScriptText rejects extractions that cannot be a screenplay.
func validateScriptText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("%w: no text extracted (scanned/image-only PDF?)", ErrValidation)
	}
	if len(trimmed) < minScriptChars {
		return fmt.Errorf("%w: extracted only %d characters", ErrValidation, len(trimmed))
	}
	if !utf8.ValidString(trimmed) {
		return fmt.Errorf("%w: extracted text is not valid UTF-8", ErrValidation)
	}
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

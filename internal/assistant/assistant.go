// Package assistant provides the LLM-backed language collaborator used for
// open-ended answers, natural-language date/time parsing, price-range
// estimates and image diagnosis.
//
// An empty result with a nil error is the expected "could not help" signal
// and must push callers to their next fallback tier; errors indicate
// transport or credential failures.
package assistant

import (
	"context"

	"github.com/gadgetcare/repairbot/internal/models"
)

// Assistant is the language collaborator interface consumed by the command
// router and flow engine. Implementations must treat inability to answer as
// an empty result, not an error.
type Assistant interface {
	// AnswerFreeform answers an open-ended customer message given recent chat history.
	AnswerFreeform(ctx context.Context, message string, history []models.Message) (string, error)

	// ParseNaturalDate extracts a YYYY-MM-DD date from free text, "" when none.
	ParseNaturalDate(ctx context.Context, text string) (string, error)

	// ParseNaturalTime extracts a HH:MM 24-hour time from free text, "" when none.
	ParseNaturalTime(ctx context.Context, text string) (string, error)

	// EstimateRange produces a rough price-range string for a device/issue
	// combination outside the catalog, e.g. "₹2,000–₹4,500".
	EstimateRange(ctx context.Context, brand, model, issue string) (string, error)

	// Diagnose produces a structured troubleshooting suggestion for a
	// described software problem.
	Diagnose(ctx context.Context, issue, deviceType, errorDetails string) (string, error)

	// AnalyzeImage diagnoses a problem from a photo (error screens, damage).
	AnalyzeImage(ctx context.Context, image []byte, mimeType, caption string) (string, error)
}

// Package messaging defines the pluggable message-delivery abstraction and
// the dispatcher that feeds inbound messages through the command router.
package messaging

import (
	"context"

	"github.com/gadgetcare/repairbot/internal/models"
)

// Gateway is the message transport abstraction. Implementations must
// preserve per-user ordering when multiple sends occur in one turn.
type Gateway interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier (e.g. strips a leading "+" from a phone number).
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, to, body string) error

	// SendList sends body together with selectable options, falling back to
	// a numbered plain-text list when the transport's rich form fails.
	SendList(ctx context.Context, to, body string, options []string) error

	// SendDocument delivers a file (e.g. a PDF job sheet) with a caption.
	SendDocument(ctx context.Context, to, filePath, caption string) error

	// Start begins background processing (event polling, webhook pumps).
	Start(ctx context.Context) error

	// Stop stops background processing and releases resources.
	Stop() error

	// Messages returns the channel of normalized inbound messages.
	Messages() <-chan models.Incoming
}

package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gadgetcare/repairbot/internal/models"
)

// MockGateway implements Gateway for tests: it collects every outbound send
// and lets tests inject inbound messages and failures.
type MockGateway struct {
	mu       sync.Mutex
	sent     []string
	inbound  chan models.Incoming
	// FailText, FailList and FailDocument make the corresponding send
	// operations return an error.
	FailText     bool
	FailList     bool
	FailDocument bool
}

// NewMockGateway creates an empty mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{inbound: make(chan models.Incoming, 16)}
}

// ValidateAndCanonicalizeRecipient strips a leading "+" and rejects empty recipients.
func (m *MockGateway) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimPrefix(strings.TrimSpace(recipient), "+")
	if r == "" {
		return "", models.ErrEmptyRecipient
	}
	return r, nil
}

// SendText records the outbound body.
func (m *MockGateway) SendText(ctx context.Context, to, body string) error {
	if m.FailText {
		return fmt.Errorf("mock text send failure")
	}
	m.mu.Lock()
	m.sent = append(m.sent, body)
	m.mu.Unlock()
	return nil
}

// SendList falls back to a numbered text rendering, like real gateways do.
func (m *MockGateway) SendList(ctx context.Context, to, body string, options []string) error {
	if m.FailList {
		return fmt.Errorf("mock list send failure")
	}
	return m.SendText(ctx, to, RenderNumberedList(body, options))
}

// SendDocument records the delivery.
func (m *MockGateway) SendDocument(ctx context.Context, to, filePath, caption string) error {
	if m.FailDocument {
		return fmt.Errorf("mock document send failure")
	}
	m.mu.Lock()
	m.sent = append(m.sent, "[document] "+filePath)
	m.mu.Unlock()
	return nil
}

// Start is a no-op for the mock.
func (m *MockGateway) Start(ctx context.Context) error { return nil }

// Stop closes the inbound channel.
func (m *MockGateway) Stop() error {
	close(m.inbound)
	return nil
}

// Messages returns the injectable inbound channel.
func (m *MockGateway) Messages() <-chan models.Incoming { return m.inbound }

// Inject queues an inbound message for the dispatcher.
func (m *MockGateway) Inject(in models.Incoming) { m.inbound <- in }

// Sent returns a copy of all outbound bodies so far.
func (m *MockGateway) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// LastSent returns the most recent outbound body, or "" when nothing was sent.
func (m *MockGateway) LastSent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1]
}

// Reset clears the collected outbound messages.
func (m *MockGateway) Reset() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}

// RenderNumberedList renders the shared plain-text fallback for list prompts.
func RenderNumberedList(body string, options []string) string {
	var b strings.Builder
	b.WriteString(body)
	for i, opt := range options {
		b.WriteString(fmt.Sprintf("\n%d) %s", i+1, opt))
	}
	return b.String()
}

package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/store"
)

// RecordingGateway decorates a Gateway with best-effort outbound chat
// logging. Send failures propagate; logging failures never do.
type RecordingGateway struct {
	Gateway
	store store.Store
}

// NewRecordingGateway wraps gw so every successful text send is appended to
// the message log.
func NewRecordingGateway(gw Gateway, st store.Store) *RecordingGateway {
	return &RecordingGateway{Gateway: gw, store: st}
}

// SendText sends and then records the outbound message.
func (g *RecordingGateway) SendText(ctx context.Context, to, body string) error {
	if err := g.Gateway.SendText(ctx, to, body); err != nil {
		return err
	}
	g.record(to, body)
	return nil
}

// SendList sends and then records the outbound prompt body.
func (g *RecordingGateway) SendList(ctx context.Context, to, body string, options []string) error {
	if err := g.Gateway.SendList(ctx, to, body, options); err != nil {
		return err
	}
	g.record(to, body)
	return nil
}

// SendDocument sends and then records the delivery as a caption entry.
func (g *RecordingGateway) SendDocument(ctx context.Context, to, filePath, caption string) error {
	if err := g.Gateway.SendDocument(ctx, to, filePath, caption); err != nil {
		return err
	}
	g.record(to, "[document] "+caption)
	return nil
}

func (g *RecordingGateway) record(to, body string) {
	if g.store == nil {
		return
	}
	err := g.store.RecordMessage(models.Message{
		UserID:    to,
		Direction: models.DirectionOutbound,
		Body:      body,
		Time:      time.Now().Unix(),
	})
	if err != nil {
		slog.Warn("Failed to record outbound message", "error", err, "to", to)
	}
}

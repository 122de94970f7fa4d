package messaging

import (
	"context"
	"log/slog"

	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/store"
)

// Handler processes one normalized inbound message to completion.
type Handler interface {
	HandleMessage(ctx context.Context, in models.Incoming) error
}

// Dispatcher pumps inbound messages from a Gateway into a Handler, recording
// the inbound side of the chat log on the way. Each message is handled to
// completion before the next one is read, matching the one-turn-in-flight
// model the session store assumes.
type Dispatcher struct {
	gateway Gateway
	handler Handler
	store   store.Store
}

// NewDispatcher creates a dispatcher wiring gateway, handler and message log.
func NewDispatcher(gateway Gateway, handler Handler, st store.Store) *Dispatcher {
	return &Dispatcher{gateway: gateway, handler: handler, store: st}
}

// Start begins consuming inbound messages until ctx is cancelled or the
// gateway's channel closes.
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("Dispatcher starting message processing")
	go func() {
		defer slog.Info("Dispatcher stopped message processing")
		for {
			select {
			case in, ok := <-d.gateway.Messages():
				if !ok {
					slog.Debug("Dispatcher messages channel closed")
					return
				}
				d.process(ctx, in)
			case <-ctx.Done():
				slog.Debug("Dispatcher stopping due to context cancellation")
				return
			}
		}
	}()
}

func (d *Dispatcher) process(ctx context.Context, in models.Incoming) {
	body := in.Text
	if in.IsImage() {
		body = "[image] " + in.Caption
	}
	if d.store != nil {
		if err := d.store.RecordMessage(models.Message{
			UserID:    in.From,
			Direction: models.DirectionInbound,
			Body:      body,
			Time:      in.Time,
		}); err != nil {
			// Logging is best-effort; the turn proceeds regardless.
			slog.Warn("Dispatcher failed to record inbound message", "error", err, "from", in.From)
		}
	}
	if err := d.handler.HandleMessage(ctx, in); err != nil {
		slog.Error("Dispatcher message handling failed", "error", err, "from", in.From)
	}
}

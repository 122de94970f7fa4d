// Package twiliowhatsapp implements the messaging gateway over the Twilio
// WhatsApp API. Inbound webhooks are form-encoded Twilio callbacks; the
// media API serves document delivery through public URLs.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/gadgetcare/repairbot/internal/messaging"
	"github.com/gadgetcare/repairbot/internal/models"
)

// inboundBuffer sizes the inbound message channel.
const inboundBuffer = 64

// Opts holds configuration options for the Twilio WhatsApp gateway.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string // WhatsApp number in "whatsapp:+1234567890" format
	MediaBase  string // public base URL serving rendered documents, "" disables SendDocument
}

// Option defines a configuration option for the Twilio WhatsApp gateway.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number ("whatsapp:+123...").
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithMediaBase sets the public URL under which rendered documents are
// served. Twilio only accepts media by URL.
func WithMediaBase(base string) Option {
	return func(o *Opts) { o.MediaBase = base }
}

// Gateway is the Twilio-backed messaging.Gateway implementation.
type Gateway struct {
	client    *twilio.RestClient
	fromWhats string
	mediaBase string
	inbound   chan models.Incoming
}

var _ messaging.Gateway = (*Gateway)(nil)

// NewGateway creates a Twilio WhatsApp gateway, falling back to the
// standard TWILIO_* environment variables for missing credentials.
func NewGateway(opts ...Option) (*Gateway, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Gateway{
		client:    client,
		fromWhats: cfg.FromWhats,
		mediaBase: strings.TrimSuffix(cfg.MediaBase, "/"),
		inbound:   make(chan models.Incoming, inboundBuffer),
	}, nil
}

// ValidateAndCanonicalizeRecipient keeps the leading "+" Twilio expects.
func (g *Gateway) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	r = strings.TrimPrefix(r, "whatsapp:")
	if r == "" {
		return "", models.ErrEmptyRecipient
	}
	if !strings.HasPrefix(r, "+") {
		r = "+" + r
	}
	for _, c := range r[1:] {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("recipient %q contains non-digit characters", recipient)
		}
	}
	return r, nil
}

// SendText sends a plain WhatsApp message through the Twilio API.
func (g *Gateway) SendText(ctx context.Context, to, body string) error {
	if body == "" {
		return models.ErrEmptyMessageBody
	}
	r, err := g.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + r)
	params.SetFrom(g.fromWhats)
	params.SetBody(body)
	if _, err := g.client.Api.CreateMessage(params); err != nil {
		slog.Error("Twilio SendText failed", "to", r, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", r, err)
	}
	slog.Debug("Twilio message sent", "to", r)
	return nil
}

// SendList always uses the numbered-text rendering: the Twilio Go SDK has
// no WhatsApp interactive list support.
func (g *Gateway) SendList(ctx context.Context, to, body string, options []string) error {
	return g.SendText(ctx, to, messaging.RenderNumberedList(body, options))
}

// SendDocument attaches the document by public URL. The renderer's output
// directory must be exposed under the configured media base.
func (g *Gateway) SendDocument(ctx context.Context, to, filePath, caption string) error {
	if g.mediaBase == "" {
		return fmt.Errorf("document delivery disabled: no media base URL configured")
	}
	r, err := g.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	name := filePath
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + r)
	params.SetFrom(g.fromWhats)
	params.SetBody(caption)
	params.SetMediaUrl([]string{g.mediaBase + "/" + name})
	if _, err := g.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send document to %s: %w", r, err)
	}
	slog.Info("Twilio document sent", "to", r, "file", name)
	return nil
}

// Start is a no-op: inbound traffic arrives via the webhook handler.
func (g *Gateway) Start(ctx context.Context) error { return nil }

// Stop closes the inbound channel.
func (g *Gateway) Stop() error {
	close(g.inbound)
	return nil
}

// Messages returns the inbound message channel fed by the webhook.
func (g *Gateway) Messages() <-chan models.Incoming {
	return g.inbound
}

// WebhookHandler returns the HTTP handler for Twilio's inbound message
// callback (application/x-www-form-urlencoded POSTs).
func (g *Gateway) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		from := strings.TrimPrefix(r.PostFormValue("From"), "whatsapp:")
		body := r.PostFormValue("Body")
		if from == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		in := models.Incoming{
			From: strings.TrimPrefix(from, "+"),
			Text: body,
			Time: time.Now().Unix(),
		}
		select {
		case g.inbound <- in:
			slog.Debug("Twilio inbound message queued", "from", in.From)
		default:
			slog.Warn("Inbound channel full, dropping Twilio message", "from", in.From)
		}
		// Empty TwiML response; replies go out through the REST API.
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
	})
}

package cloudapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gadgetcare/repairbot/internal/models"
)

// signaturePrefix is the scheme prefix Meta puts on webhook signatures.
const signaturePrefix = "sha256="

// webhookPayload mirrors the slice of the Cloud API webhook envelope the
// bot consumes.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
				Statuses []json.RawMessage `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type      string `json:"type"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
	Image *struct {
		ID      string `json:"id"`
		Caption string `json:"caption"`
	} `json:"image"`
}

// WebhookHandler returns the HTTP handler for the Cloud API webhook: GET
// answers Meta's subscription challenge, POST verifies the payload
// signature and feeds extracted messages into the inbound channel.
func (g *Gateway) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			g.handleVerify(w, r)
		case http.MethodPost:
			g.handleDelivery(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// handleVerify answers the hub.challenge handshake.
func (g *Gateway) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == g.verifyTok && g.verifyTok != "" {
		slog.Info("Cloud API webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	slog.Warn("Cloud API webhook verification rejected", "mode", q.Get("hub.mode"))
	w.WriteHeader(http.StatusForbidden)
}

// handleDelivery checks the signature and extracts inbound messages. The
// response is always 200 once the payload is structurally acceptable so
// Meta does not retry messages the bot chose to ignore.
func (g *Gateway) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !g.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		slog.Warn("Cloud API webhook signature mismatch", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("Cloud API webhook payload unparseable", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				g.dispatchWebhookMessage(r.Context(), msg)
			}
			// statuses (sent/delivered/read) are acknowledged but unused
		}
	}
	w.WriteHeader(http.StatusOK)
}

// verifySignature checks the X-Hub-Signature-256 HMAC. Verification is
// skipped when no app secret is configured.
func (g *Gateway) verifySignature(body []byte, header string) bool {
	if g.appSecret == "" {
		return true
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(g.appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// dispatchWebhookMessage converts one webhook message into the inbound
// channel representation, downloading image media on demand.
func (g *Gateway) dispatchWebhookMessage(ctx context.Context, msg webhookMessage) {
	in := g.toIncoming(ctx, msg)
	if in == nil {
		return
	}
	select {
	case g.inbound <- *in:
		slog.Debug("Cloud API inbound message queued", "from", in.From, "is_image", in.IsImage())
	default:
		slog.Warn("Inbound channel full, dropping Cloud API message", "from", in.From)
	}
}

func (g *Gateway) toIncoming(ctx context.Context, msg webhookMessage) *models.Incoming {
	in := &models.Incoming{From: msg.From}
	if ts, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
		in.Time = ts
	}
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return nil
		}
		in.Text = msg.Text.Body
	case "interactive":
		if msg.Interactive == nil {
			return nil
		}
		switch {
		case msg.Interactive.ListReply != nil:
			in.Text = msg.Interactive.ListReply.ID
		case msg.Interactive.ButtonReply != nil:
			in.Text = msg.Interactive.ButtonReply.ID
		default:
			return nil
		}
	case "image":
		if msg.Image == nil {
			return nil
		}
		data, mime, err := g.fetchMedia(ctx, msg.Image.ID)
		if err != nil {
			slog.Warn("Failed to fetch inbound Cloud API image", "from", msg.From, "error", err)
			return nil
		}
		in.Image = data
		in.ImageMIME = mime
		in.Caption = msg.Image.Caption
	default:
		slog.Debug("Ignoring unsupported Cloud API message type", "type", msg.Type, "from", msg.From)
		return nil
	}
	return in
}

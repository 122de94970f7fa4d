// Package cloudapi implements the messaging gateway over the Meta WhatsApp
// Cloud API (Graph API): outbound sends, media upload, and the inbound
// webhook with signature verification.
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gadgetcare/repairbot/internal/messaging"
	"github.com/gadgetcare/repairbot/internal/models"
)

const (
	// graphBaseURL is the Graph API root used for all Cloud API calls.
	graphBaseURL = "https://graph.facebook.com/v21.0"
	// listRowLimit is the Cloud API cap on interactive list rows.
	listRowLimit = 10
	// inboundBuffer sizes the inbound message channel.
	inboundBuffer = 64
	// oauthErrorCode is Graph's OAuth error code for expired/invalid tokens.
	oauthErrorCode = 190
)

// Opts holds configuration options for the Cloud API gateway.
type Opts struct {
	AccessToken   string // Graph API access token
	PhoneNumberID string // WhatsApp business phone number ID
	VerifyToken   string // webhook GET verification token
	AppSecret     string // app secret for webhook signature checks; empty skips them
	BaseURL       string // override for tests
	HTTPClient    *http.Client
}

// Option defines a configuration option for the Cloud API gateway.
type Option func(*Opts)

// WithAccessToken sets the Graph API access token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithPhoneNumberID sets the sending phone number ID.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithAppSecret enables webhook payload signature verification.
func WithAppSecret(secret string) Option {
	return func(o *Opts) { o.AppSecret = secret }
}

// WithBaseURL overrides the Graph API base URL (tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Gateway is the Cloud API messaging.Gateway implementation. Inbound
// messages arrive through WebhookHandler rather than a persistent
// connection.
type Gateway struct {
	token     string
	phoneID   string
	verifyTok string
	appSecret string
	baseURL   string
	http      *http.Client
	inbound   chan models.Incoming
}

var _ messaging.Gateway = (*Gateway)(nil)

// NewGateway validates credentials and creates a Cloud API gateway.
func NewGateway(opts ...Option) (*Gateway, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("cloud api access token is required")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("cloud api phone number id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = graphBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.AppSecret == "" {
		slog.Warn("Cloud API app secret not set; webhook signatures will not be verified")
	}
	return &Gateway{
		token:     cfg.AccessToken,
		phoneID:   cfg.PhoneNumberID,
		verifyTok: cfg.VerifyToken,
		appSecret: cfg.AppSecret,
		baseURL:   cfg.BaseURL,
		http:      cfg.HTTPClient,
		inbound:   make(chan models.Incoming, inboundBuffer),
	}, nil
}

// ValidateAndCanonicalizeRecipient reduces a phone number to bare digits.
func (g *Gateway) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimPrefix(strings.TrimSpace(recipient), "+")
	if r == "" {
		return "", models.ErrEmptyRecipient
	}
	for _, c := range r {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("recipient %q contains non-digit characters", recipient)
		}
	}
	return r, nil
}

// graphError is the error envelope Graph returns on failed sends.
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a plain text message.
func (g *Gateway) SendText(ctx context.Context, to, body string) error {
	if body == "" {
		return models.ErrEmptyMessageBody
	}
	user, err := g.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                user,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	return g.postMessage(ctx, user, payload)
}

// SendList sends an interactive list when the option count allows it and
// falls back to the numbered-text rendering otherwise.
func (g *Gateway) SendList(ctx context.Context, to, body string, options []string) error {
	if len(options) == 0 || len(options) > listRowLimit {
		return g.SendText(ctx, to, messaging.RenderNumberedList(body, options))
	}
	user, err := g.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	rows := make([]map[string]any, len(options))
	for i, opt := range options {
		title := opt
		if len(title) > 24 { // Cloud API row title limit
			title = title[:24]
		}
		rows[i] = map[string]any{"id": fmt.Sprintf("%d", i+1), "title": title}
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                user,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "list",
			"body":   map[string]any{"text": body},
			"action": map[string]any{"button": "Choose", "sections": []map[string]any{{"rows": rows}}},
		},
	}
	if err := g.postMessage(ctx, user, payload); err != nil {
		slog.Debug("Cloud API list message rejected, falling back to text", "to", user, "error", err)
		return g.SendText(ctx, to, messaging.RenderNumberedList(body, options))
	}
	return nil
}

// SendDocument uploads the file to the media endpoint and sends it as a
// document message.
func (g *Gateway) SendDocument(ctx context.Context, to, filePath, caption string) error {
	user, err := g.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	mediaID, err := g.uploadMedia(ctx, filePath)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                user,
		"type":              "document",
		"document": map[string]any{
			"id":       mediaID,
			"caption":  caption,
			"filename": filepath.Base(filePath),
		},
	}
	return g.postMessage(ctx, user, payload)
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

// postMessage POSTs one message payload to the Graph messages endpoint,
// decoding the Graph error envelope on failure.
func (g *Gateway) postMessage(ctx context.Context, to string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message payload: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", g.baseURL, g.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		slog.Debug("Cloud API message sent", "to", to, "status", resp.StatusCode)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ge graphError
	if json.Unmarshal(raw, &ge) == nil && ge.Error.Code == oauthErrorCode {
		slog.Error("Cloud API access token rejected; refresh WHATSAPP_TOKEN", "code", ge.Error.Code, "message", ge.Error.Message)
		return fmt.Errorf("cloud api token expired or invalid (code %d): %s", ge.Error.Code, ge.Error.Message)
	}
	return fmt.Errorf("cloud api send to %s failed with status %d: %s", to, resp.StatusCode, strings.TrimSpace(string(raw)))
}

// uploadMedia pushes a local file to the media endpoint and returns its ID.
func (g *Gateway) uploadMedia(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open media file %s: %w", filePath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", fmt.Errorf("failed to build media upload: %w", err)
	}
	if err := mw.WriteField("type", "application/pdf"); err != nil {
		return "", fmt.Errorf("failed to build media upload: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("failed to build media upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to read media file %s: %w", filePath, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize media upload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/media", g.baseURL, g.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("media upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode media upload response: %w", err)
	}
	return out.ID, nil
}

// fetchMedia resolves a media ID to its bytes and MIME type. Used for
// inbound images.
func (g *Gateway) fetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", g.baseURL, mediaID), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build media lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()
	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("failed to decode media metadata for %s: %w", mediaID, err)
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("media %s has no download URL", mediaID)
	}

	dl, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build media download: %w", err)
	}
	dl.Header.Set("Authorization", "Bearer "+g.token)
	dresp, err := g.http.Do(dl)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media %s: %w", mediaID, err)
	}
	defer dresp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(dresp.Body, 16<<20))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media %s: %w", mediaID, err)
	}
	return data, meta.MimeType, nil
}

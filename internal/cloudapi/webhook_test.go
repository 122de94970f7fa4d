package cloudapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	base := []Option{
		WithAccessToken("test-token"),
		WithPhoneNumberID("123456"),
		WithVerifyToken("verify-me"),
	}
	g, err := NewGateway(append(base, opts...)...)
	require.NoError(t, err)
	return g
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const textPayload = `{
  "entry": [{"changes": [{"value": {"messages": [
    {"from": "919876543210", "timestamp": "1730000000", "type": "text", "text": {"body": "hi"}}
  ]}}]}]
}`

func TestWebhookVerifyChallenge(t *testing.T) {
	g := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	g.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())
}

func TestWebhookVerifyRejectsBadToken(t *testing.T) {
	g := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	g.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookDeliversTextMessage(t *testing.T) {
	g := newTestGateway(t, WithAppSecret("s3cret"))
	body := []byte(textPayload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	req.Header.Set("X-Hub-Signature-256", sign("s3cret", body))
	rec := httptest.NewRecorder()
	g.WebhookHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case in := <-g.Messages():
		assert.Equal(t, "919876543210", in.From)
		assert.Equal(t, "hi", in.Text)
		assert.Equal(t, int64(1730000000), in.Time)
	default:
		t.Fatal("expected an inbound message")
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	g := newTestGateway(t, WithAppSecret("s3cret"))
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	g.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	select {
	case <-g.Messages():
		t.Fatal("message must not be delivered on signature mismatch")
	default:
	}
}

func TestWebhookSkipsSignatureWithoutSecret(t *testing.T) {
	g := newTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	rec := httptest.NewRecorder()
	g.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	select {
	case in := <-g.Messages():
		assert.Equal(t, "hi", in.Text)
	default:
		t.Fatal("expected an inbound message")
	}
}

func TestWebhookInteractiveListReply(t *testing.T) {
	g := newTestGateway(t)
	payload := `{"entry": [{"changes": [{"value": {"messages": [
	  {"from": "919876543210", "timestamp": "1730000001", "type": "interactive",
	   "interactive": {"type": "list_reply", "list_reply": {"id": "2", "title": "Samsung"}}}
	]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	g.WebhookHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	in := <-g.Messages()
	assert.Equal(t, "2", in.Text, "list replies resolve to the numeric row id")
}

func TestWebhookIgnoresStatuses(t *testing.T) {
	g := newTestGateway(t)
	payload := `{"entry": [{"changes": [{"value": {"statuses": [{"id": "wamid.X", "status": "delivered"}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	g.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	select {
	case <-g.Messages():
		t.Fatal("statuses must not produce inbound messages")
	default:
	}
}

func TestWebhookRejectsGarbage(t *testing.T) {
	g := newTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	g.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendTextPostsToGraph(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages": [{"id": "wamid.X"}]}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, WithBaseURL(srv.URL))
	require.NoError(t, g.SendText(t.Context(), "+919876543210", "hello"))
	assert.Equal(t, "/123456/messages", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Contains(t, gotBody, `"to":"919876543210"`)
	assert.Contains(t, gotBody, `"hello"`)
}

func TestSendTextSurfacesTokenExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Error validating access token", "type": "OAuthException", "code": 190}}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, WithBaseURL(srv.URL))
	err := g.SendText(t.Context(), "919876543210", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}

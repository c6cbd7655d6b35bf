package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mojobot/internal/domain"
)

type stubHandler struct {
	ack   domain.Ack
	err   error
	panic any
	calls atomic.Int32
	last  atomic.Pointer[domain.InboundEvent]
}

func (s *stubHandler) HandleEvent(_ context.Context, ev *domain.InboundEvent) (domain.Ack, error) {
	s.calls.Add(1)
	s.last.Store(ev)
	if s.panic != nil {
		panic(s.panic)
	}
	return s.ack, s.err
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestWebhook(h EventHandler, secret string) *Webhook {
	return NewWebhook(WebhookConfig{Handler: h, Secret: secret, Logger: testLogger()})
}

func post(t *testing.T, w *Webhook, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", bytes.NewBufferString(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	w.Routes().ServeHTTP(rr, req)
	return rr
}

func TestVerifyHMAC_Valid(t *testing.T) {
	body := []byte(`{"type":"message.new"}`)
	if !verifyHMAC(body, "test-secret", sign("test-secret", body)) {
		t.Error("valid HMAC should verify")
	}
}

func TestVerifyHMAC_Invalid(t *testing.T) {
	if verifyHMAC([]byte("body"), "secret", "not-hex") {
		t.Error("malformed signature should not verify")
	}
	if verifyHMAC([]byte("body"), "secret", sign("other", []byte("body"))) {
		t.Error("signature from another secret should not verify")
	}
}

func TestVerifyHMAC_Empty(t *testing.T) {
	if verifyHMAC([]byte("body"), "secret", "") {
		t.Error("empty signature should not verify")
	}
}

func TestWebhookHandler_MethodNotAllowed(t *testing.T) {
	w := newTestWebhook(&stubHandler{}, "")
	rr := httptest.NewRecorder()
	w.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhooks/chat", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestWebhookHandler_AcksEvent(t *testing.T) {
	triggered := true
	searched := true
	h := &stubHandler{ack: domain.Ack{Received: true, Triggered: &triggered, WebSearched: &searched}}
	w := newTestWebhook(h, "")

	body := `{"type":"message.new","channel_type":"messaging","channel_id":"room-1",
		"message":{"id":"m1","text":"@mojo hi","user":{"id":"u1"}},"user":{"id":"u1","name":"Ana"}}`
	rr := post(t, w, body, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"received":true,"triggered":true,"webSearched":true}`, rr.Body.String())

	ev := h.last.Load()
	require.NotNil(t, ev)
	assert.Equal(t, "room-1", ev.ChannelID)
	assert.Equal(t, "@mojo hi", ev.MessageText())
	assert.Equal(t, "Ana", ev.AuthorName())
}

func TestWebhookHandler_AckOmitsUnsetFields(t *testing.T) {
	w := newTestWebhook(&stubHandler{ack: domain.Ack{Received: true}}, "")
	rr := post(t, w, `{"type":"channel.updated"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"received":true}`, rr.Body.String())
}

func TestWebhookHandler_MalformedPayloadIs500(t *testing.T) {
	for _, body := range []string{"not json", "", "null", `["a"]`, `{"type":`} {
		h := &stubHandler{}
		w := newTestWebhook(h, "")
		rr := post(t, w, body, nil)

		assert.Equal(t, http.StatusInternalServerError, rr.Code, body)
		assert.JSONEq(t, `{"error":"Internal server error"}`, rr.Body.String())
		assert.Zero(t, h.calls.Load(), body)
	}
}

func TestWebhookHandler_OtherEventTypesAckedWithoutFullDecode(t *testing.T) {
	bodies := []string{
		`{"type":"channel.updated","channel_id":12345}`,
		`{"type":"user.updated","message":"x"}`,
		`{"type":42,"user":[]}`,
		`{"channel_id":"room-1"}`,
	}
	for _, body := range bodies {
		h := &stubHandler{ack: domain.Ack{Received: true}}
		w := newTestWebhook(h, "")
		rr := post(t, w, body, nil)

		assert.Equal(t, http.StatusOK, rr.Code, body)
		assert.JSONEq(t, `{"received":true}`, rr.Body.String(), body)
		require.EqualValues(t, 1, h.calls.Load(), body)
		assert.NotEqual(t, domain.EventMessageNew, h.last.Load().Type, body)
	}
}

func TestWebhookHandler_MalformedMessageNewIs500(t *testing.T) {
	h := &stubHandler{}
	w := newTestWebhook(h, "")
	rr := post(t, w, `{"type":"message.new","channel_id":12345}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Zero(t, h.calls.Load())
}

func TestWebhookHandler_HandlerErrorIs500(t *testing.T) {
	w := newTestWebhook(&stubHandler{err: errors.New("completion failed: secret detail")}, "")
	rr := post(t, w, `{"type":"message.new"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret detail")
}

func TestWebhookHandler_PanicIs500(t *testing.T) {
	w := newTestWebhook(&stubHandler{panic: "nil map"}, "")
	rr := post(t, w, `{"type":"message.new"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rr.Body.String())
}

func TestWebhookHandler_BodyTooLarge(t *testing.T) {
	h := &stubHandler{}
	w := NewWebhook(WebhookConfig{Handler: h, MaxBodyBytes: 16, Logger: testLogger()})
	rr := post(t, w, `{"type":"message.new","pad":"xxxxxxxx"}`, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Zero(t, h.calls.Load())
}

func TestWebhookHandler_MissingSignature(t *testing.T) {
	w := newTestWebhook(&stubHandler{}, "my-secret")
	rr := post(t, w, `{"type":"message.new"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestWebhookHandler_InvalidSignature(t *testing.T) {
	w := newTestWebhook(&stubHandler{}, "my-secret")
	rr := post(t, w, `{"type":"message.new"}`, map[string]string{"X-Signature": "deadbeef"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

func TestWebhookHandler_ValidSignature(t *testing.T) {
	h := &stubHandler{ack: domain.Ack{Received: true}}
	w := newTestWebhook(h, "my-secret")
	body := `{"type":"message.new"}`
	rr := post(t, w, body, map[string]string{"X-Signature": sign("my-secret", []byte(body))})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, h.calls.Load())
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(rw, "mojobot_up 1\n")
	})
	w := NewWebhook(WebhookConfig{Handler: &stubHandler{}, Metrics: metricsHandler, Logger: testLogger()})

	rr := httptest.NewRecorder()
	w.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	w.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "mojobot_up 1\n", rr.Body.String())
}

func TestRoutes_MetricsDisabled(t *testing.T) {
	w := newTestWebhook(&stubHandler{}, "")
	rr := httptest.NewRecorder()
	w.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var drained atomic.Bool
	w := NewWebhook(WebhookConfig{
		Handler:    &stubHandler{ack: domain.Ack{Received: true}},
		OnShutdown: func(context.Context) { drained.Store(true) },
		Logger:     testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/webhooks/chat"
	resp, err := http.Post(url, "application/json", strings.NewReader(`{"type":"x"}`))
	require.NoError(t, err)
	var ack map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	resp.Body.Close()
	assert.Equal(t, true, ack["received"])

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.True(t, drained.Load())
}

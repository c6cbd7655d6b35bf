package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"mojobot/internal/domain"
)

// EventHandler processes one decoded webhook event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *domain.InboundEvent) (domain.Ack, error)
}

// WebhookConfig configures the webhook server.
type WebhookConfig struct {
	Addr         string
	Path         string // webhook URL path (default: /webhooks/chat)
	Secret       string // when set, X-Signature must carry hex HMAC-SHA256 of the body
	MaxBodyBytes int64
	Handler      EventHandler
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
	// OnShutdown runs after the HTTP server has stopped accepting requests.
	OnShutdown      func(ctx context.Context)
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Webhook receives chat platform events over HTTP and answers each delivery
// exactly once.
type Webhook struct {
	cfg    WebhookConfig
	logger *slog.Logger
	server *http.Server
}

var errInternal = map[string]string{"error": "Internal server error"}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Path == "" {
		cfg.Path = "/webhooks/chat"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Webhook{cfg: cfg, logger: cfg.Logger}
}

// Routes returns the server's handler: the webhook, /healthz and optionally metrics.
func (w *Webhook) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(w.cfg.Path, w.handleWebhook)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	if w.cfg.Metrics != nil {
		mux.Handle(w.cfg.MetricsPath, w.cfg.Metrics)
	}
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (w *Webhook) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.cfg.Addr)
	if err != nil {
		return fmt.Errorf("webhook server: %w", err)
	}
	return w.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (w *Webhook) Serve(ctx context.Context, ln net.Listener) error {
	w.server = &http.Server{
		Handler:           w.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Answering a mention waits on search, completion and delivery.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	w.logger.Info("webhook server starting", "addr", ln.Addr().String(), "path", w.cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
		defer cancel()
		err := w.server.Shutdown(shutdownCtx)
		if w.cfg.OnShutdown != nil {
			w.cfg.OnShutdown(shutdownCtx)
		}
		return err
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (w *Webhook) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	log := w.logger.With("request_id", r.Header.Get("X-Request-ID"))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("webhook handler panicked", "panic", rec, "stack", string(debug.Stack()))
			writeJSON(rw, http.StatusInternalServerError, errInternal)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, w.cfg.MaxBodyBytes+1))
	defer r.Body.Close()
	if err != nil {
		log.Error("webhook body read failed", "err", err)
		writeJSON(rw, http.StatusInternalServerError, errInternal)
		return
	}
	if int64(len(body)) > w.cfg.MaxBodyBytes {
		http.Error(rw, "Payload Too Large", http.StatusRequestEntityTooLarge)
		return
	}

	if w.cfg.Secret != "" {
		sig := r.Header.Get("X-Signature")
		if sig == "" {
			http.Error(rw, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !verifyHMAC(body, w.cfg.Secret, sig) {
			http.Error(rw, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	ev, err := decodeEvent(body)
	if err != nil {
		log.Error("webhook payload rejected", "err", err)
		writeJSON(rw, http.StatusInternalServerError, errInternal)
		return
	}

	log.Debug("webhook received",
		"type", ev.Type,
		"channel_type", ev.ChannelType,
		"channel_id", ev.ChannelID,
		"user_id", ev.AuthorID(),
	)

	ack, err := w.cfg.Handler.HandleEvent(r.Context(), ev)
	if err != nil {
		log.Error("webhook event failed",
			"type", ev.Type,
			"channel_id", ev.ChannelID,
			"message_id", ev.MessageID(),
			"err", err,
		)
		writeJSON(rw, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(rw, http.StatusOK, ack)
}

// decodeEvent parses a webhook body, which must be a JSON object. Only
// message.new payloads are decoded in full; for any other type the rest of
// the body is never inspected.
func decodeEvent(body []byte) (*domain.InboundEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("payload is not a JSON object")
	}
	var head struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	var eventType string
	if err := json.Unmarshal(head.Type, &eventType); err != nil || eventType != domain.EventMessageNew {
		return &domain.InboundEvent{Type: eventType}, nil
	}

	var ev domain.InboundEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &ev, nil
}

// verifyHMAC checks a hex HMAC-SHA256 signature of body.
func verifyHMAC(body []byte, secret, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

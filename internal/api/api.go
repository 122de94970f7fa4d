package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gadgetcare/repairbot/internal/messaging"
	"github.com/gadgetcare/repairbot/internal/store"
)

// Default timeouts for the admin HTTP server.
const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the admin server.
type Opts struct {
	Addr       string       // listen address, e.g. ":8080"
	AdminToken string       // bearer token guarding /api/*; empty disables auth
	Webhook    http.Handler // optional inbound webhook mounted at /webhook
}

// Option defines a configuration option for the admin server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAdminToken guards the /api/* endpoints with a bearer token.
func WithAdminToken(token string) Option {
	return func(o *Opts) { o.AdminToken = token }
}

// WithWebhook mounts a transport webhook handler at /webhook.
func WithWebhook(h http.Handler) Option {
	return func(o *Opts) { o.Webhook = h }
}

// Server is the admin HTTP server.
type Server struct {
	store   store.Store
	gateway messaging.Gateway
	opts    Opts
	httpSrv *http.Server
}

// NewServer creates the admin server over the store and gateway.
func NewServer(st store.Store, gateway messaging.Gateway, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.AdminToken == "" {
		slog.Warn("Admin token not set; /api endpoints are unauthenticated")
	}
	s := &Server{store: st, gateway: gateway, opts: cfg}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// routes builds the router: public health/metrics/webhook plus the guarded
// /api subtree.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if s.opts.Webhook != nil {
		r.Handle("/webhook", s.opts.Webhook)
	}

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(s.authMiddleware)
	apiRouter.HandleFunc("/appointments", s.appointmentsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/chats", s.chatsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/chats/{id}/messages", s.chatMessagesHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/send", s.sendHandler).Methods(http.MethodPost)
	return r
}

// Handler exposes the full router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Admin API listening", "addr", s.opts.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("admin api server failed: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin api shutdown failed: %w", err)
	}
	slog.Info("Admin API stopped")
	return nil
}

// authMiddleware enforces the bearer token when one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken != "" {
			auth := r.Header.Get("Authorization")
			token := strings.TrimPrefix(auth, "Bearer ")
			if auth == token || token != s.opts.AdminToken {
				slog.Warn("Admin API request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

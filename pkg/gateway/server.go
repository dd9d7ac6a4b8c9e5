// Package gateway serves the inbound webhook and the status endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tinyland-inc/dlrelay/pkg/bus"
	"github.com/tinyland-inc/dlrelay/pkg/channels"
	"github.com/tinyland-inc/dlrelay/pkg/gateway/static"
	"github.com/tinyland-inc/dlrelay/pkg/logger"
	"github.com/tinyland-inc/dlrelay/pkg/relay"
)

const rootText = "dlrelay is running"

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	WebhookPath string
	CORSOrigins []string // origins allowed to read the status endpoints
}

// Relay runs one inbound message through to its reply.
type Relay interface {
	Handle(ctx context.Context, msg bus.InboundMessage) relay.Outcome
	Sessions() int
}

// InboundChannel turns webhook requests into inbound messages.
type InboundChannel interface {
	ParseInbound(r *http.Request) (bus.InboundMessage, error)
	IsAllowed(senderID string) bool
}

type Server struct {
	cfg     Config
	relay   Relay
	channel InboundChannel
	router  chi.Router
	started time.Time

	mu         sync.Mutex
	httpServer *http.Server
}

func New(cfg Config, r Relay, channel InboundChannel) *Server {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook"
	}
	s := &Server{
		cfg:     cfg,
		relay:   r,
		channel: channel,
		started: time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Post(s.cfg.WebhookPath, s.handleWebhook)

	r.Group(func(r chi.Router) {
		if len(s.cfg.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: s.cfg.CORSOrigins,
				AllowedMethods: []string{"GET", "OPTIONS"},
				MaxAge:         300,
			}))
		}
		r.Get("/", s.handleRoot)
		r.Get("/favicon.ico", handleFavicon)
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
	})

	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	logger.InfoCF("gateway", "Listening", map[string]any{
		"addr":    srv.Addr,
		"webhook": s.cfg.WebhookPath,
	})
	return srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	msg, err := s.channel.ParseInbound(r)
	if err != nil {
		logger.WarnCF("gateway", "Rejected webhook", map[string]any{
			"error": err.Error(),
		})
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.channel.IsAllowed(msg.SenderID) {
		logger.WarnCF("gateway", "Sender not allowed", map[string]any{
			"sender": msg.SenderID,
		})
		writeError(w, http.StatusForbidden, "sender not allowed")
		return
	}

	// run the chain to completion even if the caller hangs up
	out := s.relay.Handle(context.WithoutCancel(r.Context()), msg)
	if out.Failed() {
		writeError(w, http.StatusInternalServerError, failureMessage(out.Err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rootText))
}

func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/x-icon")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(static.Favicon)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"sessions": s.relay.Sessions(),
	})
}

// failureMessage names the failed step without exposing backend details,
// which stay in the relay log.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, relay.ErrSendFailed):
		return "send failed"
	case errors.Is(err, relay.ErrBackendUnavailable):
		return "backend unavailable"
	default:
		return "relay failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.ErrorCF("gateway", "Failed to write response", map[string]any{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "error", "message": message})
}

// requestLogger logs each request and picks up any incoming trace context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.DebugCF("gateway", "Request served", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

var _ InboundChannel = (*channels.TwilioChannel)(nil)

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auto-support-pilot/server/internal/agent/model"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// Handler answers one inbound message. The returned message is always sent,
// including when err is non-nil.
type Handler interface {
	Handle(ctx context.Context, in model.InboundMessage) (model.OutboundMessage, error)
}

// Server exposes the session driver over WebSocket.
type Server struct {
	cfg      model.ServerConfig
	handler  Handler
	allowed  map[string]bool
	upgrader websocket.Upgrader
	gatherer prometheus.Gatherer
	metrics  *Metrics
	router   *http.ServeMux
}

// New creates a server. gatherer backs /metrics and may be nil.
func New(cfg model.ServerConfig, handler Handler, gatherer prometheus.Gatherer, metrics *Metrics) *Server {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	s := &Server{
		cfg:      cfg,
		handler:  handler,
		allowed:  allowed,
		gatherer: gatherer,
		metrics:  metrics,
		router:   http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// origins are checked after the upgrade so the client gets a close code
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.router.HandleFunc("GET /{$}", s.handleHealth)
	s.router.HandleFunc("GET /ws", s.handleSocket)
	if src, ok := s.handler.(TranscriptSource); ok && s.cfg.ExposeTranscripts {
		s.router.HandleFunc("GET /users/{userId}/transcript", s.handleTranscript(src))
	}
	if s.gatherer != nil {
		s.router.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Routes returns the root handler.
func (s *Server) Routes() http.Handler {
	return withRequestID(s.router)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Open sockets are closed when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.cfg.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	logx.Info().Msg("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"success","content":"Connection ok."}`))
}

func (s *Server) originAllowed(origin string) bool {
	return origin != "" && s.allowed[origin]
}

package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rjboer/GoSpectrum/internal/logging"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8092"

// WebServer exposes the hub's live streams, metrics and any API routes
// registered through Handle.
type WebServer struct {
	srv    *http.Server
	mux    *http.ServeMux
	hub    *Hub
	logger logging.Logger
}

// NewWebServer builds an HTTP server with the live endpoints mounted. A nil
// metrics leaves /metrics unmounted.
func NewWebServer(addr string, hub *Hub, metrics *Metrics, logger logging.Logger) *WebServer {
	if addr == "" {
		addr = DefaultAddr
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/history", hub.handleHistory)
	mux.HandleFunc("GET /api/live", hub.handleLive)
	mux.HandleFunc("GET /ws", hub.handleWS)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "subscribers": hub.Subscribers()})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(hub.CloseSubscribers)

	return &WebServer{
		hub:    hub,
		mux:    mux,
		logger: logging.OrDefault(logger).With(logging.F("subsystem", "web")),
		srv:    srv,
	}
}

// Handle registers an additional route. Patterns use net/http method and
// wildcard syntax, e.g. "GET /api/scan/{id}".
func (w *WebServer) Handle(pattern string, h http.Handler) {
	w.mux.Handle(pattern, h)
}

// HandleFunc is Handle for plain functions.
func (w *WebServer) HandleFunc(pattern string, h func(http.ResponseWriter, *http.Request)) {
	w.mux.HandleFunc(pattern, h)
}

// Handler returns the root handler, for tests and embedding.
func (w *WebServer) Handler() http.Handler { return w.srv.Handler }

// Addr is the configured listen address.
func (w *WebServer) Addr() string { return w.srv.Addr }

// Start begins listening and shuts down when the context is canceled. It
// returns once the server has stopped.
func (w *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.srv.Addr)
	if err != nil {
		return err
	}
	return w.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (w *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("web server shutdown", logging.Err(err))
		}
	}()
	defer close(done)

	w.logger.Info("web server listening", logging.F("addr", ln.Addr().String()))
	if err := w.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		w.logger.Error("web server error", logging.Err(err))
		return err
	}
	return nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package httpapi serves run monitoring: Prometheus metrics, health, run
// status and a websocket stream of batch progress.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/orthofit/internal/metrics"
)

const writeWait = 5 * time.Second

// Server is the monitor HTTP server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	monitor  *Monitor
	metrics  *metrics.Registry
	upgrader websocket.Upgrader
}

// NewServer builds a server listening on addr. metrics may be nil.
func NewServer(addr string, reg *metrics.Registry, monitor *Monitor) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		monitor: monitor,
		metrics: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/ws/progress", s.handleProgress).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.requestLoggingMiddleware)
	api.Use(s.jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting monitor server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down monitor server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"state":     s.monitor.Status().State,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.monitor.Status())
}

// handleProgress upgrades to a websocket, sends the current status and then
// one message per update until the client goes away.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16)}
	first := s.monitor.register(c)

	go func() {
		defer conn.Close()
		if err := writeMessage(conn, first); err != nil {
			return
		}
		for msg := range c.send {
			if err := writeMessage(conn, msg); err != nil {
				return
			}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	// Drain reads so close frames are processed.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			s.monitor.unregister(c)
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.New().String()[:8])
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("request_id", w.Header().Get("X-Request-ID")).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Package api serves the local HTTP surface of the monitor.
package api

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/veftodii/air-quality-monitor/internal/events"
	"github.com/veftodii/air-quality-monitor/internal/monitor"
	"github.com/veftodii/air-quality-monitor/internal/mqtt"
	"github.com/veftodii/air-quality-monitor/internal/wifi"
)

// Station is the read side of the association state machine.
type Station interface {
	State() wifi.State
	Retries() int
	Addr() netip.Addr
}

// Session is the read side of the broker session.
type Session interface {
	IsConnected() bool
	Broker() mqtt.Broker
}

// Cycles returns the last sampling cycle.
type Cycles interface {
	Last() (monitor.Cycle, bool)
}

// Deps are the components the API reads from. Any of them may be nil.
type Deps struct {
	Station   Station
	Session   Session
	Loop      Cycles
	Events    *events.Store
	Metrics   http.Handler
	BootCount int
	Started   time.Time
}

// Server represents the API server
type Server struct {
	router   *chi.Mux
	deps     Deps
	readings *ReadingsHandler
	log      logrus.FieldLogger
}

// NewServer creates the API server and its routes
func NewServer(deps Deps, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	log = log.WithField("component", "api")

	s := &Server{
		router:   chi.NewRouter(),
		deps:     deps,
		readings: NewReadingsHandler(log),
		log:      log,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.log, NoColor: true}))
	r.Use(middleware.Recoverer)

	statusHandler := NewStatusHandler(s.deps)

	r.Get("/api/status", statusHandler.Get)
	if s.deps.Events != nil {
		r.Get("/api/events", NewEventsHandler(s.deps.Events).List)
	}
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}
	r.Get("/api/readings/ws", s.readings.Connect)
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Readings returns the live readings broadcaster.
func (s *Server) Readings() *ReadingsHandler {
	return s.readings
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "api: listen")
	case <-ctx.Done():
	}

	s.readings.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

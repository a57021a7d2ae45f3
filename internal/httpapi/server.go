package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/live-caption-translator/internal/service"
	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

const defaultKeepAlive = 15 * time.Second

type Server struct {
	coordinator *service.Coordinator
	maintenance *service.Maintenance
	keepAlive   time.Duration
	logger      *log.Logger

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithMaintenance(m *service.Maintenance) Option {
	return func(s *Server) {
		s.maintenance = m
	}
}

// WithKeepAlive sets how often an idle event stream gets a comment line.
func WithKeepAlive(interval time.Duration) Option {
	return func(s *Server) {
		if interval > 0 {
			s.keepAlive = interval
		}
	}
}

func NewServer(coordinator *service.Coordinator, opts ...Option) *Server {
	s := &Server{
		coordinator: coordinator,
		keepAlive:   defaultKeepAlive,
		logger:      log.Named("httpapi"),
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("Listening on %s", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/translate", s.handleTranslate)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/apikey", s.handleAPIKey)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/cache", s.handleCache)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/maintenance", s.handleMaintenance)
}

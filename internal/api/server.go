package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"profit_go/internal/infra"
	"profit_go/internal/infra/storage"
	"profit_go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server exposes the snapshot store and the run pipeline over HTTP, plus a
// WebSocket feed of run progress.
type Server struct {
	cfg      *infra.Config
	store    *storage.Storage
	pipeline *service.Pipeline
	diffs    *service.DiffService
	hub      *WebSocketHub
	logger   *slog.Logger
	server   *http.Server
}

// NewServer wires the API server. The pipeline's progress events are
// forwarded to all connected WebSocket clients.
func NewServer(cfg *infra.Config, store *storage.Storage, pipeline *service.Pipeline, diffs *service.DiffService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
		diffs:    diffs,
		hub:      NewWebSocketHub(logger),
		logger:   logger,
	}
	pipeline.SetProgressFunc(func(ev service.ProgressEvent) {
		s.hub.Broadcast(Message{Type: "progress", Data: ev})
	})
	return s
}

// Start runs the HTTP server until it fails or Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()

	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("http server listening", "addr", s.cfg.Server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshots/latest", s.handleLatestSnapshots)

		r.Get("/machines/{id}/snapshots", s.handleMachineSnapshots)
		r.Get("/machines/{id}/diff", s.handleMachineDiff)

		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/last", s.handleLastRun)

		r.Get("/metrics", s.handleMetrics)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

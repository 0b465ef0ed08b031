// Package web serves the metadata actions over HTTP and streams action
// events to websocket clients.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/On-Jun9/MetaPipe/internal/config"
	"github.com/On-Jun9/MetaPipe/internal/metadata"
	"github.com/On-Jun9/MetaPipe/internal/metrics"
	"github.com/On-Jun9/MetaPipe/internal/pipeline"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// Service is the part of the pipeline the HTTP API drives.
type Service interface {
	AvailableActions() []pipeline.ActionOption
	Extractors() []metadata.Status
	FindMetadata(ctx context.Context, mediaID string) (*types.MetadataRecord, error)
	DeleteMetadata(ctx context.Context, mediaID string) error
	PerformAction(ctx context.Context, mediaID string, action types.Action) (types.ActionResult, error)
	PerformItemAction(ctx context.Context, itemID string, action types.Action) ([]types.ActionResult, error)
	PerformBatch(ctx context.Context, kind types.ResourceKind, ids []string, action types.Action) ([]types.ActionResult, error)
	SetProgressCallback(cb pipeline.ProgressCallback)
}

type Server struct {
	router  *mux.Router
	hub     *Hub
	version string
	svc     Service
	presets *config.PresetManager
	logger  *zap.Logger
}

// NewServer wires the routes for svc and starts the event hub. presets may
// be nil, in which case the crosswalk routes answer 503.
func NewServer(svc Service, presets *config.PresetManager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  mux.NewRouter(),
		hub:     NewHub(),
		version: "unknown",
		svc:     svc,
		presets: presets,
		logger:  logger,
	}

	go s.hub.Run()

	if svc != nil {
		svc.SetProgressCallback(s.broadcastProgress)
	}
	s.setupRoutes()
	return s
}

func (s *Server) SetVersion(v string) {
	s.version = v
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods("GET")
	api.HandleFunc("/actions", s.handleListActions).Methods("GET")
	api.HandleFunc("/extractors", s.handleListExtractors).Methods("GET")
	api.HandleFunc("/ws", s.handleWebSocket)

	api.HandleFunc("/media/{id}/metadata", s.handleGetMetadata).Methods("GET")
	api.HandleFunc("/media/{id}/metadata", s.handleDeleteMetadata).Methods("DELETE")
	api.HandleFunc("/media/{id}/actions", s.handleMediaAction).Methods("POST")
	api.HandleFunc("/items/{id}/actions", s.handleItemAction).Methods("POST")
	api.HandleFunc("/batch/actions", s.handleBatchAction).Methods("POST")

	// Crosswalk preset routes
	api.HandleFunc("/crosswalks", s.handleListPresets).Methods("GET")
	api.HandleFunc("/crosswalks", s.handleSavePreset).Methods("POST")
	api.HandleFunc("/crosswalks/{name}", s.handleLoadPreset).Methods("GET")
	api.HandleFunc("/crosswalks/{name}", s.handleDeletePreset).Methods("DELETE")

	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
}

// Close stops the event hub and disconnects websocket clients.
func (s *Server) Close() {
	s.hub.Stop()
}

func (s *Server) Start(addr string) error {
	return s.Serve(context.Background(), addr)
}

// Serve runs the server until ctx is done, then shuts it down gracefully.
// The event hub is stopped when Serve returns.
func (s *Server) Serve(ctx context.Context, addr string) error {
	defer s.Close()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting MetaPipe API at " + addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

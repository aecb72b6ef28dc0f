// Package api exposes the gateway over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kamilpajak/testpilot/internal/gateway"
	"github.com/kamilpajak/testpilot/internal/observability"
	"github.com/kamilpajak/testpilot/internal/storage"
	"github.com/kamilpajak/testpilot/pkg/models"
)

// Server is the API server.
type Server struct {
	gw         *gateway.Gateway
	metrics    *observability.Metrics
	logger     *zap.Logger
	mux        *http.ServeMux
	outputRoot string
}

// Config holds API server configuration.
type Config struct {
	Gateway *gateway.Gateway
	Metrics *observability.Metrics
	Logger  *zap.Logger
	// OutputRoot confines save requests; output_dir is resolved under it.
	OutputRoot string
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		gw:      cfg.Gateway,
		metrics: cfg.Metrics,
		logger:  logger.Named("api"),
		mux:     http.NewServeMux(),

		outputRoot: cfg.OutputRoot,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux.HandleFunc("POST /generate-test", handle(s, "generate", s.gw.GenerateTest))
	s.mux.HandleFunc("POST /analyze-test", handle(s, "analyze", s.gw.AnalyzeTest))
	s.mux.HandleFunc("POST /modify-test", handle(s, "modify", s.gw.ModifyTest))
	s.mux.HandleFunc("POST /search-tests", handle(s, "search", s.gw.SearchTests))
	s.mux.HandleFunc("POST /save-test", handle(s, "save", s.saveTest))

	s.mux.HandleFunc("POST /mode/mock", s.handleEnableMock)
	s.mux.HandleFunc("POST /mode/real", s.handleEnableReal)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+observability.RequestIDHeader)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	if id := r.Header.Get(observability.RequestIDHeader); id != "" {
		ctx = observability.WithRequestID(ctx, id)
	}
	ctx, id := observability.EnsureRequestID(ctx)
	w.Header().Set(observability.RequestIDHeader, id)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	s.mux.ServeHTTP(rec, r.WithContext(ctx))

	s.logger.Debug("Request handled",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", id),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.gw.CheckHealth(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"mode":   s.gw.Mode().String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"mode":   s.gw.Mode().String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.gw.Status(r.Context())
	if err != nil {
		s.writeOperationError(w, r, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEnableMock(w http.ResponseWriter, r *http.Request) {
	s.gw.EnableMock()
	s.handleStatus(w, r)
}

func (s *Server) handleEnableReal(w http.ResponseWriter, r *http.Request) {
	s.gw.EnableReal()
	s.handleStatus(w, r)
}

// saveTest keeps remote callers inside the output root.
func (s *Server) saveTest(ctx context.Context, req models.SaveRequest) (*models.SaveOutcome, error) {
	dir, err := storage.Confine(s.outputRoot, req.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gateway.ErrInvalidRequest, err)
	}
	req.OutputDir = dir
	return s.gw.SaveTest(ctx, req)
}

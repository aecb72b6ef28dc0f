// Package gateway presents one contract over the real AI service and the
// simulator, switching to the simulator when the real backend fails.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamilpajak/testpilot/internal/health"
	"github.com/kamilpajak/testpilot/internal/observability"
	"github.com/kamilpajak/testpilot/pkg/models"
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Fallback reasons reported in logs and metrics.
const (
	ReasonTransport       = "transport"
	ReasonDeclaredFailure = "declared_failure"
	ReasonUnhealthy       = "unhealthy"
	ReasonEmptySearch     = "empty_search"
)

// maxSnapshotChars bounds page text folded into a generation request.
const maxSnapshotChars = 8000

// Backend is implemented by the real service client and the simulator.
type Backend interface {
	Name() string
	CheckHealth(ctx context.Context) bool
	GenerateTest(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error)
	AnalyzeTest(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
	ModifyTest(ctx context.Context, req models.ModifyRequest) (*models.GenerationResult, error)
	SearchTests(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error)
	SaveTest(ctx context.Context, req models.SaveRequest) (*models.SaveOutcome, error)
}

// Snapshotter captures the visible text of a live page.
type Snapshotter interface {
	Snapshot(ctx context.Context, url string) (string, error)
}

// Gateway routes operations to the backend selected by its mode.
// It is safe for concurrent use.
type Gateway struct {
	real Backend
	sim  Backend

	mode                  atomic.Int32
	autoFallback          bool
	fallbackOnEmptySearch bool

	healthTimeout time.Duration
	realMonitor   *health.Monitor
	simMonitor    *health.Monitor

	snapshotter Snapshotter
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithInitialMode selects the starting backend.
func WithInitialMode(mode models.BackendMode) Option {
	return func(g *Gateway) { g.mode.Store(int32(mode)) }
}

// WithAutoFallback enables switching to the simulator on real-backend faults.
func WithAutoFallback(enabled bool) Option {
	return func(g *Gateway) { g.autoFallback = enabled }
}

// WithFallbackOnEmptySearch treats an empty real search result as a fault.
func WithFallbackOnEmptySearch(enabled bool) Option {
	return func(g *Gateway) { g.fallbackOnEmptySearch = enabled }
}

// WithHealthTimeout bounds each health probe.
func WithHealthTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.healthTimeout = d }
}

// WithSnapshotter enables page snapshots for requests with a page URL.
func WithSnapshotter(s Snapshotter) Option {
	return func(g *Gateway) { g.snapshotter = s }
}

// WithMetrics records operations, fallbacks and mode changes.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a gateway over the real backend and the simulator. Auto
// fallback is on unless disabled.
func New(real, sim Backend, opts ...Option) *Gateway {
	g := &Gateway{
		real:          real,
		sim:           sim,
		autoFallback:  true,
		healthTimeout: health.DefaultTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Named("gateway")

	monitorOpts := []health.Option{
		health.WithTimeout(g.healthTimeout),
		health.WithLogger(g.logger),
		health.WithMetrics(g.metrics),
	}
	g.realMonitor = health.NewMonitor(real.Name(), prober(real), monitorOpts...)
	g.simMonitor = health.NewMonitor(sim.Name(), prober(sim), monitorOpts...)

	g.metrics.SetMode(g.Mode())
	return g
}

// prober prefers a backend's own error-reporting probe when it has one.
func prober(b Backend) health.Prober {
	if p, ok := b.(health.Prober); ok {
		return p
	}
	return health.FromCheck(b.CheckHealth)
}

// Mode returns the backend currently serving requests.
func (g *Gateway) Mode() models.BackendMode {
	return models.BackendMode(g.mode.Load())
}

// AutoFallback reports whether real-backend faults switch to the simulator.
func (g *Gateway) AutoFallback() bool { return g.autoFallback }

// EnableMock switches to the simulator.
func (g *Gateway) EnableMock() {
	if prev := g.mode.Swap(int32(models.ModeSimulated)); prev != int32(models.ModeSimulated) {
		g.logger.Info("Switched to simulated backend", zap.String("reason", "requested"))
	}
	g.metrics.SetMode(models.ModeSimulated)
}

// EnableReal switches back to the real backend. This is the only way out of
// simulated mode.
func (g *Gateway) EnableReal() {
	if prev := g.mode.Swap(int32(models.ModeReal)); prev != int32(models.ModeReal) {
		g.logger.Info("Switched to real backend", zap.String("reason", "requested"))
	}
	g.metrics.SetMode(models.ModeReal)
}

// fallback moves Real to Simulated. Concurrent callers may all observe the
// fault; only the first one changes the mode.
func (g *Gateway) fallback(operation, reason string) {
	if g.mode.CompareAndSwap(int32(models.ModeReal), int32(models.ModeSimulated)) {
		g.metrics.SetMode(models.ModeSimulated)
		g.logger.Warn("Real backend failed, switching to simulated backend",
			zap.String("operation", operation),
			zap.String("reason", reason),
		)
	}
	g.metrics.RecordFallback(operation, reason)
}

// CheckHealth probes the active backend. An unhealthy real backend with
// auto fallback enabled switches the gateway to the simulator for good and
// reports the simulator's health instead.
func (g *Gateway) CheckHealth(ctx context.Context) bool {
	if g.Mode() == models.ModeSimulated {
		return g.simMonitor.Check(ctx)
	}
	if g.realMonitor.Check(ctx) {
		return true
	}
	if ctx.Err() != nil || !g.autoFallback {
		return false
	}
	g.fallback("health", ReasonUnhealthy)
	return g.simMonitor.Check(ctx)
}

// Status probes both backends concurrently without changing the mode.
func (g *Gateway) Status(ctx context.Context) (models.ServiceStatus, error) {
	status := models.ServiceStatus{
		CurrentMode:         g.Mode(),
		AutoFallbackEnabled: g.autoFallback,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		status.RealBackendHealthy = g.realMonitor.Check(egCtx)
		return nil
	})
	eg.Go(func() error {
		status.SimulatorHealthy = g.simMonitor.Check(egCtx)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return status, err
	}
	if err := ctx.Err(); err != nil {
		return status, err
	}
	return status, nil
}

// GenerateTest writes a new test. A page URL is snapshotted once, before
// dispatch, so a fallback sees the same enriched request.
func (g *Gateway) GenerateTest(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	req, err := g.enrich(ctx, req)
	if err != nil {
		return nil, err
	}
	return dispatch(ctx, g, "generate",
		func(ctx context.Context, b Backend) (*models.GenerationResult, error) { return b.GenerateTest(ctx, req) },
		generationFault,
		generationFailure,
	)
}

// AnalyzeTest reviews test source.
func (g *Gateway) AnalyzeTest(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return dispatch(ctx, g, "analyze",
		func(ctx context.Context, b Backend) (*models.AnalysisResult, error) { return b.AnalyzeTest(ctx, req) },
		analysisFault,
		analysisFailure,
	)
}

// ModifyTest rewrites an existing test file.
func (g *Gateway) ModifyTest(ctx context.Context, req models.ModifyRequest) (*models.GenerationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return dispatch(ctx, g, "modify",
		func(ctx context.Context, b Backend) (*models.GenerationResult, error) { return b.ModifyTest(ctx, req) },
		generationFault,
		generationFailure,
	)
}

// SearchTests finds existing tests related to a query. An empty result is a
// success unless the gateway was told to treat it as a fault.
func (g *Gateway) SearchTests(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	fault := func(r *models.SearchResult) string {
		if !r.OK() {
			return ReasonDeclaredFailure
		}
		if g.fallbackOnEmptySearch && len(r.Results) == 0 {
			return ReasonEmptySearch
		}
		return ""
	}
	return dispatch(ctx, g, "search",
		func(ctx context.Context, b Backend) (*models.SearchResult, error) { return b.SearchTests(ctx, req) },
		fault,
		searchFailure,
	)
}

// SaveTest persists a test.
func (g *Gateway) SaveTest(ctx context.Context, req models.SaveRequest) (*models.SaveOutcome, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return dispatch(ctx, g, "save",
		func(ctx context.Context, b Backend) (*models.SaveOutcome, error) { return b.SaveTest(ctx, req) },
		saveFault,
		saveFailure,
	)
}

// enrich folds the page snapshot and existing tests into the request
// context. A failed snapshot is logged and skipped.
func (g *Gateway) enrich(ctx context.Context, req models.GenerationRequest) (models.GenerationRequest, error) {
	if req.PageURL != "" && g.snapshotter != nil {
		text, err := g.snapshotter.Snapshot(ctx, req.PageURL)
		switch {
		case ctx.Err() != nil:
			return req, ctx.Err()
		case err != nil:
			g.logger.Warn("Page snapshot failed, continuing without it", zap.String("url", req.PageURL), zap.Error(err))
		case strings.TrimSpace(text) != "":
			req.Context = appendSection(req.Context, fmt.Sprintf("Page content (%s):", req.PageURL), truncate(text, maxSnapshotChars))
		}
	}
	if strings.TrimSpace(req.ExistingTests) != "" {
		req.Context = appendSection(req.Context, "Existing tests:", req.ExistingTests)
		req.ExistingTests = ""
	}
	return req, nil
}

func appendSection(existing, heading, body string) string {
	section := heading + "\n" + strings.TrimSpace(body)
	if strings.TrimSpace(existing) == "" {
		return section
	}
	return strings.TrimRight(existing, "\n") + "\n\n" + section
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "\n[truncated]"
}

// Package simulator is the deterministic stand-in for the AI test service.
// It classifies requirements into fixed templates, reviews tests with simple
// heuristics and fakes search results, with configurable latency and
// injected failures to exercise callers' error paths.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kamilpajak/testpilot/internal/storage"
	"github.com/kamilpajak/testpilot/internal/testcode"
	"github.com/kamilpajak/testpilot/pkg/models"
)

// Default latency bounds for every simulated operation.
const (
	DefaultMinDelay = 300 * time.Millisecond
	DefaultMaxDelay = 500 * time.Millisecond
)

// maxSearchResults caps simulated search responses.
const maxSearchResults = 5

// Store persists and loads test files on behalf of the simulator.
type Store interface {
	Save(ctx context.Context, req models.SaveRequest) *models.SaveOutcome
	Read(path string) (string, error)
}

// Options configures an Engine.
type Options struct {
	MinDelay time.Duration
	MaxDelay time.Duration

	// ErrorInjection makes every operation fail with probability ErrorRate.
	ErrorInjection bool
	ErrorRate      float64

	// Seed makes delays and failure draws reproducible. Zero seeds from the clock.
	Seed uint64

	Clock  func() time.Time
	Store  Store
	Logger *zap.Logger
}

// Engine implements the gateway backend contract without network calls.
type Engine struct {
	minDelay       time.Duration
	maxDelay       time.Duration
	errorInjection bool
	errorRate      float64
	clock          func() time.Time
	store          Store
	logger         *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Engine.
func New(opts Options) *Engine {
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	e := &Engine{
		minDelay:       opts.MinDelay,
		maxDelay:       opts.MaxDelay,
		errorInjection: opts.ErrorInjection,
		errorRate:      opts.ErrorRate,
		clock:          opts.Clock,
		store:          opts.Store,
		logger:         opts.Logger,
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.store == nil {
		e.store = storage.NewFS()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.Named("simulator")
	return e
}

// Name identifies the backend on results and in logs.
func (e *Engine) Name() string { return models.BackendSimulator }

// CheckHealth reports healthy unless an injected failure is drawn.
func (e *Engine) CheckHealth(ctx context.Context) bool {
	if err := e.wait(ctx); err != nil {
		return false
	}
	return !e.injectFailure()
}

// GenerateTest classifies the requirements and renders the matching template.
func (e *Engine) GenerateTest(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	if e.injectFailure() {
		return e.failedGeneration("Simulated failure: test generation service temporarily unavailable"), nil
	}

	category := Classify(req.Requirements)
	code := Synthesize(category, req.Requirements, req.Context)
	validation := testcode.Validate(code)

	e.logger.Debug("Generated test", zap.String("category", string(category)), zap.Int("bytes", len(code)))

	return &models.GenerationResult{
		Success:     true,
		Code:        code,
		Validation:  &validation,
		ContextUsed: templateContext(category),
		Backend:     models.BackendSimulator,
	}, nil
}

// ModifyTest prefixes the existing file with a note describing the change.
func (e *Engine) ModifyTest(ctx context.Context, req models.ModifyRequest) (*models.GenerationResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	if e.injectFailure() {
		return e.failedGeneration("Simulated failure: test modification service temporarily unavailable"), nil
	}

	original, err := e.store.Read(req.FilePath)
	if err != nil {
		cause := errors.Unwrap(err)
		if cause == nil {
			cause = err
		}
		return e.failedGeneration(fmt.Sprintf("Failed to read file %s: %v", req.FilePath, cause)), nil
	}

	note := strings.Join(strings.Fields(req.ModificationRequest), " ")
	code := "// Modified: " + note + "\n" + original
	validation := testcode.Validate(code)

	return &models.GenerationResult{
		Success:    true,
		Code:       code,
		Validation: &validation,
		ContextUsed: []models.ContextSnippet{{
			SourcePath: req.FilePath,
			Snippet:    preview(original, 200),
		}},
		Backend: models.BackendSimulator,
	}, nil
}

// AnalyzeTest scores the test with the heuristics in Review.
func (e *Engine) AnalyzeTest(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	if e.injectFailure() {
		return &models.AnalysisResult{
			Success: false,
			Error:   "Simulated failure: test analysis service temporarily unavailable",
			Backend: models.BackendSimulator,
		}, nil
	}

	analysis := Review(req.TestCode)
	return &models.AnalysisResult{Success: true, Analysis: &analysis, Backend: models.BackendSimulator}, nil
}

// SearchTests returns up to five synthetic matches with scores 0.9, 0.8, ...
func (e *Engine) SearchTests(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	if e.injectFailure() {
		return &models.SearchResult{
			Success: false,
			Results: []models.SearchEntry{},
			Error:   "Simulated failure: test search index temporarily unavailable",
			Backend: models.BackendSimulator,
		}, nil
	}

	n := min(req.Limit(), maxSearchResults)
	now := e.clock()
	results := make([]models.SearchEntry, 0, n)
	for i := range n {
		results = append(results, models.SearchEntry{
			SourcePath:     fmt.Sprintf("tests/simulated/match-%d.spec.ts", i+1),
			SnippetPreview: fmt.Sprintf("test('%s (match %d)', async ({ page }) => { /* simulated */ });", req.Query, i+1),
			RelevanceScore: float64(9-i) / 10,
			CapturedAt:     now,
		})
	}
	return &models.SearchResult{Success: true, Results: results, Backend: models.BackendSimulator}, nil
}

// SaveTest writes the test through the store.
func (e *Engine) SaveTest(ctx context.Context, req models.SaveRequest) (*models.SaveOutcome, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	if e.injectFailure() {
		return &models.SaveOutcome{
			Success: false,
			Error:   "Simulated failure: could not write test file",
			Backend: models.BackendSimulator,
		}, nil
	}

	out := e.store.Save(ctx, req)
	out.Backend = models.BackendSimulator
	return out, nil
}

func (e *Engine) failedGeneration(msg string) *models.GenerationResult {
	return &models.GenerationResult{Success: false, Error: msg, Backend: models.BackendSimulator}
}

// wait sleeps for the simulated latency or until ctx is done.
func (e *Engine) wait(ctx context.Context) error {
	d := e.delay()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) delay() time.Duration {
	if e.maxDelay <= e.minDelay {
		return e.minDelay
	}
	e.mu.Lock()
	jitter := e.rng.Int64N(int64(e.maxDelay - e.minDelay + 1))
	e.mu.Unlock()
	return e.minDelay + time.Duration(jitter)
}

// injectFailure draws one Bernoulli trial with p = errorRate.
func (e *Engine) injectFailure() bool {
	if !e.errorInjection || e.errorRate <= 0 {
		return false
	}
	e.mu.Lock()
	draw := e.rng.Float64()
	e.mu.Unlock()
	failed := draw < e.errorRate
	if failed {
		e.logger.Debug("Injected simulated failure", zap.Float64("rate", e.errorRate))
	}
	return failed
}

func preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}

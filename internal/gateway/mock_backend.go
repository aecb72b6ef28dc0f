package gateway

import (
	"context"
	"sync/atomic"

	"github.com/kamilpajak/testpilot/pkg/models"
)

// MockBackend is a mock implementation of Backend for testing. Unset
// functions succeed with minimal valid results.
type MockBackend struct {
	NameValue string

	CheckHealthFn  func(ctx context.Context) bool
	GenerateTestFn func(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error)
	AnalyzeTestFn  func(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
	ModifyTestFn   func(ctx context.Context, req models.ModifyRequest) (*models.GenerationResult, error)
	SearchTestsFn  func(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error)
	SaveTestFn     func(ctx context.Context, req models.SaveRequest) (*models.SaveOutcome, error)

	calls atomic.Int32
}

// Calls returns how many operations (health checks excluded) were invoked.
func (m *MockBackend) Calls() int { return int(m.calls.Load()) }

// Name returns NameValue.
func (m *MockBackend) Name() string { return m.NameValue }

// CheckHealth calls the mock function.
func (m *MockBackend) CheckHealth(ctx context.Context) bool {
	if m.CheckHealthFn != nil {
		return m.CheckHealthFn(ctx)
	}
	return true
}

// GenerateTest calls the mock function.
func (m *MockBackend) GenerateTest(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	m.calls.Add(1)
	if m.GenerateTestFn != nil {
		return m.GenerateTestFn(ctx, req)
	}
	return &models.GenerationResult{Success: true, Code: "test('" + req.Requirements + "', () => {});", Backend: m.NameValue}, nil
}

// AnalyzeTest calls the mock function.
func (m *MockBackend) AnalyzeTest(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	m.calls.Add(1)
	if m.AnalyzeTestFn != nil {
		return m.AnalyzeTestFn(ctx, req)
	}
	return &models.AnalysisResult{
		Success:  true,
		Analysis: &models.Analysis{Quality: models.QualityGood, Coverage: models.CoverageMedium, Suggestions: []string{}, Improvements: []string{}},
		Backend:  m.NameValue,
	}, nil
}

// ModifyTest calls the mock function.
func (m *MockBackend) ModifyTest(ctx context.Context, req models.ModifyRequest) (*models.GenerationResult, error) {
	m.calls.Add(1)
	if m.ModifyTestFn != nil {
		return m.ModifyTestFn(ctx, req)
	}
	return &models.GenerationResult{Success: true, Code: "// " + req.ModificationRequest, Backend: m.NameValue}, nil
}

// SearchTests calls the mock function.
func (m *MockBackend) SearchTests(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error) {
	m.calls.Add(1)
	if m.SearchTestsFn != nil {
		return m.SearchTestsFn(ctx, req)
	}
	return &models.SearchResult{Success: true, Results: []models.SearchEntry{}, Backend: m.NameValue}, nil
}

// SaveTest calls the mock function.
func (m *MockBackend) SaveTest(ctx context.Context, req models.SaveRequest) (*models.SaveOutcome, error) {
	m.calls.Add(1)
	if m.SaveTestFn != nil {
		return m.SaveTestFn(ctx, req)
	}
	return &models.SaveOutcome{Success: true, FilePath: req.Dir() + "/" + req.TestName + ".spec.ts", Backend: m.NameValue}, nil
}

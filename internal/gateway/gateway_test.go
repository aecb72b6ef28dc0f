package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syscall"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kamilpajak/testpilot/internal/aiclient"
	"github.com/kamilpajak/testpilot/internal/observability"
	"github.com/kamilpajak/testpilot/internal/simulator"
	"github.com/kamilpajak/testpilot/pkg/models"
)

var errRefused = &mockNetError{err: syscall.ECONNREFUSED}

type mockNetError struct{ err error }

func (e *mockNetError) Error() string { return "dial tcp 127.0.0.1:8000: " + e.err.Error() }
func (e *mockNetError) Unwrap() error { return e.err }

func newMocks() (*MockBackend, *MockBackend) {
	return &MockBackend{NameValue: models.BackendReal}, &MockBackend{NameValue: models.BackendSimulator}
}

func failingReal() *MockBackend {
	return &MockBackend{
		NameValue:     models.BackendReal,
		CheckHealthFn: func(context.Context) bool { return false },
		GenerateTestFn: func(context.Context, models.GenerationRequest) (*models.GenerationResult, error) {
			return nil, errRefused
		},
		AnalyzeTestFn: func(context.Context, models.AnalysisRequest) (*models.AnalysisResult, error) {
			return nil, errRefused
		},
		ModifyTestFn: func(context.Context, models.ModifyRequest) (*models.GenerationResult, error) {
			return nil, errRefused
		},
		SearchTestsFn: func(context.Context, models.SearchRequest) (*models.SearchResult, error) {
			return nil, errRefused
		},
		SaveTestFn: func(context.Context, models.SaveRequest) (*models.SaveOutcome, error) {
			return nil, errRefused
		},
	}
}

func closedServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestGenerate_RealDownFallsBackToSimulator(t *testing.T) {
	real := aiclient.New(closedServerURL(t))
	sim := simulator.New(simulator.Options{Seed: 1})
	g := New(real, sim)

	res, err := g.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "test login functionality"})
	require.NoError(t, err)

	assert.Equal(t, models.ModeSimulated, g.Mode())
	require.True(t, res.OK())
	assert.Equal(t, models.BackendSimulator, res.Backend)
	assert.Contains(t, res.Code, "test.describe('Authentication'")
	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.Valid)
}

func TestCheckHealth_UnhealthyRealFlipsMode(t *testing.T) {
	real := aiclient.New(closedServerURL(t))
	sim := simulator.New(simulator.Options{Seed: 1})
	g := New(real, sim)

	assert.True(t, g.CheckHealth(context.Background()), "reports the simulator's health after switching")
	assert.Equal(t, models.ModeSimulated, g.Mode())
}

func TestCheckHealth_NoFallback(t *testing.T) {
	real := failingReal()
	_, sim := newMocks()
	g := New(real, sim, WithAutoFallback(false))

	assert.False(t, g.CheckHealth(context.Background()))
	assert.Equal(t, models.ModeReal, g.Mode())
}

func TestCheckHealth_HealthyReal(t *testing.T) {
	real, sim := newMocks()
	g := New(real, sim)

	assert.True(t, g.CheckHealth(context.Background()))
	assert.Equal(t, models.ModeReal, g.Mode())
}

func TestDeclaredFailureWithoutFallbackIsReturnedUnchanged(t *testing.T) {
	real, sim := newMocks()
	declared := &models.GenerationResult{Success: false, Error: "Codebase not indexed. Run setup() first.", Backend: models.BackendReal}
	real.GenerateTestFn = func(context.Context, models.GenerationRequest) (*models.GenerationResult, error) {
		return declared, nil
	}
	g := New(real, sim, WithAutoFallback(false))

	res, err := g.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "checkout"})
	require.NoError(t, err)

	assert.Same(t, declared, res)
	assert.Equal(t, models.ModeReal, g.Mode())
	assert.Zero(t, sim.Calls())
}

func TestTransportErrorWithoutFallbackIsNormalized(t *testing.T) {
	_, sim := newMocks()
	g := New(failingReal(), sim, WithAutoFallback(false))

	res, err := g.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connection refused")
	assert.Equal(t, models.BackendReal, res.Backend)
	assert.Equal(t, models.ModeReal, g.Mode())
	assert.Zero(t, sim.Calls())
}

func TestFailoverNeverLeaksTransportErrors(t *testing.T) {
	for _, fallback := range []bool{true, false} {
		_, sim := newMocks()
		g := New(failingReal(), sim, WithAutoFallback(fallback))
		ctx := context.Background()

		gen, err := g.GenerateTest(ctx, models.GenerationRequest{Requirements: "x"})
		require.NoError(t, err)
		require.NotNil(t, gen)

		an, err := g.AnalyzeTest(ctx, models.AnalysisRequest{TestCode: "x"})
		require.NoError(t, err)
		require.NotNil(t, an)

		mod, err := g.ModifyTest(ctx, models.ModifyRequest{FilePath: "a.spec.ts", ModificationRequest: "x"})
		require.NoError(t, err)
		require.NotNil(t, mod)

		sr, err := g.SearchTests(ctx, models.SearchRequest{Query: "x"})
		require.NoError(t, err)
		require.NotNil(t, sr)
		assert.NotNil(t, sr.Results)

		sv, err := g.SaveTest(ctx, models.SaveRequest{Code: "x", TestName: "y"})
		require.NoError(t, err)
		require.NotNil(t, sv)

		assert.Equal(t, fallback, gen.Success, "fallback=%v", fallback)
		if !fallback {
			assert.NotEmpty(t, gen.Error)
			assert.NotEmpty(t, an.Error)
			assert.NotEmpty(t, mod.Error)
			assert.NotEmpty(t, sr.Error)
			assert.NotEmpty(t, sv.Error)
		}
	}
}

func TestNoSilentRecovery(t *testing.T) {
	var healthy bool
	var mu sync.Mutex
	real, sim := newMocks()
	real.CheckHealthFn = func(context.Context) bool {
		mu.Lock()
		defer mu.Unlock()
		return healthy
	}
	g := New(real, sim)

	g.CheckHealth(context.Background())
	require.Equal(t, models.ModeSimulated, g.Mode())

	mu.Lock()
	healthy = true
	mu.Unlock()

	assert.True(t, g.CheckHealth(context.Background()))
	res, err := g.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.BackendSimulator, res.Backend)
	assert.Equal(t, models.ModeSimulated, g.Mode())
	assert.Zero(t, real.Calls())

	g.EnableReal()
	assert.Equal(t, models.ModeReal, g.Mode())
	res, err = g.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.BackendReal, res.Backend)
}

func TestSimulatedModeFailuresAreTerminal(t *testing.T) {
	real, sim := newMocks()
	sim.AnalyzeTestFn = func(context.Context, models.AnalysisRequest) (*models.AnalysisResult, error) {
		return &models.AnalysisResult{Success: false, Error: "Simulated failure", Backend: models.BackendSimulator}, nil
	}
	g := New(real, sim, WithInitialMode(models.ModeSimulated))

	res, err := g.AnalyzeTest(context.Background(), models.AnalysisRequest{TestCode: "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Simulated failure", res.Error)
	assert.Equal(t, 1, sim.Calls())
	assert.Zero(t, real.Calls())
}

func TestDeclaredFailureFallsBack(t *testing.T) {
	real, sim := newMocks()
	real.SaveTestFn = func(context.Context, models.SaveRequest) (*models.SaveOutcome, error) {
		return &models.SaveOutcome{Success: false, Error: "disk full"}, nil
	}
	g := New(real, sim)

	out, err := g.SaveTest(context.Background(), models.SaveRequest{Code: "x", TestName: "y", OutputDir: "out"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.BackendSimulator, out.Backend)
	assert.Equal(t, "out/y.spec.ts", out.FilePath)
	assert.Equal(t, models.ModeSimulated, g.Mode())
}

func TestSuccessWithoutCodeFallsBack(t *testing.T) {
	real, sim := newMocks()
	real.GenerateTestFn = func(context.Context, models.GenerationRequest) (*models.GenerationResult, error) {
		return &models.GenerationResult{Success: true}, nil
	}
	g := New(real, sim)

	res, err := g.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.BackendSimulator, res.Backend)
}

func TestNilResultFallsBack(t *testing.T) {
	real, sim := newMocks()
	real.ModifyTestFn = func(context.Context, models.ModifyRequest) (*models.GenerationResult, error) {
		return nil, nil
	}
	g := New(real, sim)

	res, err := g.ModifyTest(context.Background(), models.ModifyRequest{FilePath: "a", ModificationRequest: "b"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.BackendSimulator, res.Backend)
}

func TestSearchEmptyResults(t *testing.T) {
	t.Run("success by default", func(t *testing.T) {
		real, sim := newMocks()
		g := New(real, sim)

		res, err := g.SearchTests(context.Background(), models.SearchRequest{Query: "x"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, models.BackendReal, res.Backend)
		assert.Equal(t, models.ModeReal, g.Mode())
	})

	t.Run("fallback when configured", func(t *testing.T) {
		real, _ := newMocks()
		sim := simulator.New(simulator.Options{Seed: 1})
		g := New(real, sim, WithFallbackOnEmptySearch(true))

		res, err := g.SearchTests(context.Background(), models.SearchRequest{Query: "checkout", NResults: 3})
		require.NoError(t, err)
		require.Len(t, res.Results, 3)
		assert.Equal(t, models.BackendSimulator, res.Backend)
		assert.Equal(t, models.ModeSimulated, g.Mode())
	})
}

func TestCancellationDoesNotFlip(t *testing.T) {
	real, sim := newMocks()
	ctx, cancel := context.WithCancel(context.Background())
	real.GenerateTestFn = func(ctx context.Context, _ models.GenerationRequest) (*models.GenerationResult, error) {
		cancel()
		return nil, ctx.Err()
	}
	g := New(real, sim)

	res, err := g.GenerateTest(ctx, models.GenerationRequest{Requirements: "x"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.ModeReal, g.Mode())
	assert.Zero(t, sim.Calls())
}

func TestInvalidRequests(t *testing.T) {
	real, sim := newMocks()
	g := New(real, sim)
	ctx := context.Background()

	_, err := g.GenerateTest(ctx, models.GenerationRequest{Requirements: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "requirements is required")

	_, err = g.GenerateTest(ctx, models.GenerationRequest{Requirements: "x", PageURL: "not a url"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "page_url")

	_, err = g.AnalyzeTest(ctx, models.AnalysisRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = g.ModifyTest(ctx, models.ModifyRequest{FilePath: "a"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = g.SearchTests(ctx, models.SearchRequest{Query: "x", NResults: 500})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "n_results must be at most 100")

	_, err = g.SaveTest(ctx, models.SaveRequest{Code: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Zero(t, real.Calls())
	assert.Zero(t, sim.Calls())
}

func TestEnableMockAndRealAreIdempotent(t *testing.T) {
	real, sim := newMocks()
	metrics := observability.NewMetrics()
	g := New(real, sim, WithMetrics(metrics))

	g.EnableReal()
	assert.Equal(t, models.ModeReal, g.Mode())
	g.EnableMock()
	g.EnableMock()
	assert.Equal(t, models.ModeSimulated, g.Mode())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Mode))
	g.EnableReal()
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Mode))
}

func TestStatusDoesNotChangeMode(t *testing.T) {
	_, sim := newMocks()
	g := New(failingReal(), sim)

	status, err := g.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ModeReal, status.CurrentMode)
	assert.False(t, status.RealBackendHealthy)
	assert.True(t, status.SimulatorHealthy)
	assert.True(t, status.AutoFallbackEnabled)
	assert.Equal(t, models.ModeReal, g.Mode())
}

type fakeSnapshotter struct {
	text string
	err  error
	urls []string
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.text, f.err
}

func TestGenerate_PageSnapshotIsSharedWithFallback(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	record := func(req models.GenerationRequest) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, req.Context)
	}

	real, sim := newMocks()
	real.GenerateTestFn = func(_ context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
		record(req)
		return nil, errRefused
	}
	sim.GenerateTestFn = func(_ context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
		record(req)
		return &models.GenerationResult{Success: true, Code: "x", Backend: models.BackendSimulator}, nil
	}
	snap := &fakeSnapshotter{text: "Sign in\nEmail\nPassword"}
	g := New(real, sim, WithSnapshotter(snap))

	_, err := g.GenerateTest(context.Background(), models.GenerationRequest{
		Requirements:  "login",
		Context:       "staging",
		PageURL:       "https://example.com/login",
		ExistingTests: "test('old', () => {});",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/login"}, snap.urls)
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
	assert.True(t, strings.HasPrefix(seen[0], "staging\n\nPage content (https://example.com/login):\nSign in"))
	assert.Contains(t, seen[0], "Existing tests:\ntest('old', () => {});")
}

func TestGenerate_SnapshotFailureIsSkipped(t *testing.T) {
	var got string
	real, sim := newMocks()
	real.GenerateTestFn = func(_ context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
		got = req.Context
		return &models.GenerationResult{Success: true, Code: "x"}, nil
	}
	g := New(real, sim, WithSnapshotter(&fakeSnapshotter{err: errors.New("browser missing")}))

	res, err := g.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "x", Context: "ctx", PageURL: "https://example.com"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ctx", got)
}

func TestConcurrentFailuresFlipOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	metrics := observability.NewMetrics()
	_, sim := newMocks()
	g := New(failingReal(), sim, WithLogger(zap.New(core)), WithMetrics(metrics))

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.SearchTests(context.Background(), models.SearchRequest{Query: "q"})
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	assert.Equal(t, models.ModeSimulated, g.Mode())
	assert.Equal(t, 1, logs.FilterMessageSnippet("switching to simulated backend").Len())
	assert.LessOrEqual(t, testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues("search", ReasonTransport)), float64(workers))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Mode))
}

func TestRequestIDReachesBackend(t *testing.T) {
	var got string
	real, sim := newMocks()
	real.AnalyzeTestFn = func(ctx context.Context, _ models.AnalysisRequest) (*models.AnalysisResult, error) {
		got = observability.RequestID(ctx)
		return &models.AnalysisResult{Success: true, Analysis: &models.Analysis{}}, nil
	}
	g := New(real, sim)

	ctx := observability.WithRequestID(context.Background(), "abc")
	_, err := g.AnalyzeTest(ctx, models.AnalysisRequest{TestCode: "x"})
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short  ", 10))
	assert.Equal(t, "abc\n[truncated]", truncate("abcdef", 3))

	got := truncate(strings.Repeat("ж", 10), 5)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "жж\n[truncated]", got)
}

package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/testpilot/internal/normalize"
	"github.com/kamilpajak/testpilot/internal/observability"
	"github.com/kamilpajak/testpilot/pkg/models"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Defaults(t *testing.T) {
	c := New("")
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, models.BackendReal, c.Name())

	c = New("http://ai:8000/")
	assert.Equal(t, "http://ai:8000", c.BaseURL())
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		want   bool
	}{
		{"healthy", http.StatusOK, map[string]string{"status": "healthy"}, true},
		{"healthy mixed case", http.StatusOK, map[string]string{"status": "Healthy"}, true},
		{"no status field", http.StatusOK, map[string]string{}, false},
		{"empty status", http.StatusOK, map[string]string{"status": ""}, false},
		{"ok is not healthy", http.StatusOK, map[string]string{"status": "ok"}, false},
		{"degraded", http.StatusOK, map[string]string{"status": "not_initialized"}, false},
		{"server error", http.StatusInternalServerError, map[string]string{"detail": "boom"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				writeJSON(w, tt.status, tt.body)
			})
			assert.Equal(t, tt.want, c.CheckHealth(context.Background()))
		})
	}
}

func TestCheckHealth_Refused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	assert.False(t, c.CheckHealth(context.Background()))

	err := c.Ping(context.Background())
	assert.Equal(t, normalize.KindConnectionRefused, normalize.Classify(err))
}

func TestGenerateTest_Success(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate-test", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test login", body["requirements"])
		assert.Equal(t, "login page", body["context_query"])

		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"code":       "test('login', async () => {});",
			"validation": map[string]any{"valid": true, "issues": []string{}, "warnings": []string{"No assertions found"}},
			"context_used": []map[string]any{
				{"content": "await page.goto('/login')", "metadata": map[string]string{"file_path": "tests/auth.spec.ts"}, "distance": 0.2},
			},
		})
	})

	res, err := c.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "test login", Context: "login page"})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, models.BackendReal, res.Backend)
	require.NotNil(t, res.Validation)
	assert.Equal(t, []string{"No assertions found"}, res.Validation.Warnings)
	require.Len(t, res.ContextUsed, 1)
	assert.Equal(t, "tests/auth.spec.ts", res.ContextUsed[0].SourcePath)
}

func TestGenerateTest_ContentField(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": "test('x', () => {});"})
	})

	res, err := c.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "x"})
	require.NoError(t, err)
	assert.Equal(t, "test('x', () => {});", res.Code)
}

func TestGenerateTest_DeclaredFailure(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Codebase not indexed. Run setup() first."})
	})

	res, err := c.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Codebase not indexed. Run setup() first.", res.Error)
}

func TestGenerateTest_SuccessWithoutCodeIsMalformed(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "code": "  "})
	})

	_, err := c.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, normalize.ErrMalformedResponse))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    normalize.Kind
	}{
		{
			name: "503",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "warming up"})
			},
			kind: normalize.KindUnavailable,
		},
		{
			name: "not initialized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Service not initialized. Call /setup first."})
			},
			kind: normalize.KindUnavailable,
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("<html>oops"))
			},
			kind: normalize.KindMalformed,
		},
		{
			name: "other status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
			},
			kind: normalize.KindUnexpected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)
			_, err := c.GenerateTest(context.Background(), models.GenerationRequest{Requirements: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, normalize.Classify(err))
		})
	}
}

func TestStatusError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
	})

	_, err := c.SaveTest(context.Background(), models.SaveRequest{Code: "x", TestName: "y"})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "boom", se.Detail)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Contains(t, normalize.Message(err), "HTTP 500: boom")
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.AnalyzeTest(context.Background(), models.AnalysisRequest{TestCode: "x"})
	require.Error(t, err)
	assert.Equal(t, normalize.KindTimeout, normalize.Classify(err))
}

func TestWithTimeout_CopiesSharedClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c := New("http://ai:8000", WithHTTPClient(shared), WithTimeout(time.Second))

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.NotSame(t, shared, c.httpClient)
}

func TestAnalyzeTest(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "test('a')", body["code"])
			writeJSON(w, http.StatusOK, map[string]any{
				"success":  true,
				"analysis": map[string]any{"quality": "good", "coverage": "medium", "suggestions": []string{"add waits"}},
			})
		})
		res, err := c.AnalyzeTest(context.Background(), models.AnalysisRequest{TestCode: "test('a')"})
		require.NoError(t, err)
		require.True(t, res.Success)
		assert.Equal(t, models.QualityGood, res.Analysis.Quality)
		assert.Equal(t, []string{"add waits"}, res.Analysis.Suggestions)
		assert.NotNil(t, res.Analysis.Improvements)
	})

	t.Run("free text", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": "Consider adding assertions."})
		})
		res, err := c.AnalyzeTest(context.Background(), models.AnalysisRequest{TestCode: "x"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Consider adding assertions."}, res.Analysis.Suggestions)
	})

	t.Run("string analysis", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "analysis": "Looks fine."})
		})
		res, err := c.AnalyzeTest(context.Background(), models.AnalysisRequest{TestCode: "x"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Looks fine."}, res.Analysis.Suggestions)
	})

	t.Run("empty success is malformed", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})
		_, err := c.AnalyzeTest(context.Background(), models.AnalysisRequest{TestCode: "x"})
		assert.ErrorIs(t, err, normalize.ErrMalformedResponse)
	})

	t.Run("declared failure", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": false})
		})
		res, err := c.AnalyzeTest(context.Background(), models.AnalysisRequest{TestCode: "x"})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	})
}

func TestSearchTests(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "checkout", body["query"])
		assert.Equal(t, float64(models.DefaultSearchResults), body["n_results"])

		writeJSON(w, http.StatusOK, map[string]any{"results": []map[string]any{
			{"content": "far", "metadata": map[string]string{"file_path": "a.spec.ts"}, "distance": 1.7},
			{"content": "near", "metadata": map[string]string{"file_path": "b.spec.ts"}, "distance": 0.1},
			{"content": "mid", "metadata": map[string]string{"file_path": "c.spec.ts"}, "distance": 0.5},
		}})
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithClock(func() time.Time { return fixed }))
	res, err := c.SearchTests(context.Background(), models.SearchRequest{Query: "checkout"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Results, 3)

	assert.Equal(t, "b.spec.ts", res.Results[0].SourcePath)
	assert.InDelta(t, 0.9, res.Results[0].RelevanceScore, 1e-9)
	assert.Equal(t, "c.spec.ts", res.Results[1].SourcePath)
	assert.Equal(t, "a.spec.ts", res.Results[2].SourcePath)
	assert.Equal(t, 0.0, res.Results[2].RelevanceScore)
	assert.Equal(t, fixed, res.Results[0].CapturedAt)
}

func TestSearchTests_Empty(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"results": []any{}})
	})

	res, err := c.SearchTests(context.Background(), models.SearchRequest{Query: "nothing", NResults: 3})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
}

func TestModifyTest(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/modify-test", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tests/a.spec.ts", body["file_path"])
		assert.Equal(t, "add logout", body["modification_request"])
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "code": "// new"})
	})

	res, err := c.ModifyTest(context.Background(), models.ModifyRequest{FilePath: "tests/a.spec.ts", ModificationRequest: "add logout"})
	require.NoError(t, err)
	assert.Equal(t, "// new", res.Code)
}

func TestSaveTest(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, models.DefaultOutputDir, body["output_dir"])
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "file_path": "tests/login.spec.ts"})
	})

	out, err := c.SaveTest(context.Background(), models.SaveRequest{Code: "x", TestName: "login"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "tests/login.spec.ts", out.FilePath)
}

func TestRequestIDForwarded(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-123", r.Header.Get(observability.RequestIDHeader))
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	ctx := observability.WithRequestID(context.Background(), "req-123")
	assert.True(t, c.CheckHealth(ctx))
}

func TestRateLimitHonorsContext(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	WithRateLimit(0.001, 1)(c)

	require.True(t, c.CheckHealth(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

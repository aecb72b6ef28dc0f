// Package aiclient is the HTTP client for the AI test service.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kamilpajak/testpilot/internal/normalize"
	"github.com/kamilpajak/testpilot/internal/observability"
	"github.com/kamilpajak/testpilot/pkg/models"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 60 * time.Second

	// maxErrorBody bounds how much of a failed response is kept for messages.
	maxErrorBody = 1024
)

// StatusError is returned for non-2xx responses that do not mean the
// service is unavailable.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("AI service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("AI service returned HTTP %d: %s", e.StatusCode, e.Detail)
}

// Client talks to the AI test service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. The HTTP client is copied so a
// shared client passed through WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithRateLimit throttles outgoing requests. A non-positive rps disables
// throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l.Named("aiclient") }
}

// WithClock overrides the time source stamped on search results.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the backend on results and in logs.
func (c *Client) Name() string { return models.BackendReal }

// BaseURL returns the service address.
func (c *Client) BaseURL() string { return c.baseURL }

// Ping calls the health endpoint and returns an error unless the service
// reports itself healthy.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status, "healthy") {
		return fmt.Errorf("%w: health status %q", normalize.ErrServiceUnavailable, resp.Status)
	}
	return nil
}

// CheckHealth reports whether Ping succeeds.
func (c *Client) CheckHealth(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

type generateRequest struct {
	Requirements string `json:"requirements"`
	ContextQuery string `json:"context_query,omitempty"`
}

type modifyRequest struct {
	FilePath            string `json:"file_path"`
	ModificationRequest string `json:"modification_request"`
}

type contextChunk struct {
	Content  string `json:"content"`
	Metadata struct {
		FilePath string `json:"file_path"`
	} `json:"metadata"`
	Distance *float64 `json:"distance,omitempty"`
}

type generationResponse struct {
	Success     bool               `json:"success"`
	Code        string             `json:"code"`
	Content     string             `json:"content"`
	Error       string             `json:"error"`
	Validation  *models.Validation `json:"validation"`
	ContextUsed []contextChunk     `json:"context_used"`
}

// GenerateTest asks the service to write a test. Context is forwarded as the
// context query used for codebase retrieval.
func (c *Client) GenerateTest(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	body := generateRequest{Requirements: req.Requirements, ContextQuery: req.Context}

	var resp generationResponse
	if err := c.do(ctx, http.MethodPost, "/generate-test", body, &resp); err != nil {
		return nil, err
	}
	return resp.toResult()
}

// ModifyTest asks the service to rewrite an existing test file.
func (c *Client) ModifyTest(ctx context.Context, req models.ModifyRequest) (*models.GenerationResult, error) {
	body := modifyRequest{FilePath: req.FilePath, ModificationRequest: req.ModificationRequest}

	var resp generationResponse
	if err := c.do(ctx, http.MethodPost, "/modify-test", body, &resp); err != nil {
		return nil, err
	}
	return resp.toResult()
}

func (r *generationResponse) toResult() (*models.GenerationResult, error) {
	if !r.Success {
		return &models.GenerationResult{
			Success: false,
			Error:   normalize.Declared(r.Error),
			Backend: models.BackendReal,
		}, nil
	}

	code := r.Code
	if code == "" {
		code = r.Content
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: success reported without code", normalize.ErrMalformedResponse)
	}

	snippets := make([]models.ContextSnippet, 0, len(r.ContextUsed))
	for _, ch := range r.ContextUsed {
		snippets = append(snippets, models.ContextSnippet{SourcePath: ch.Metadata.FilePath, Snippet: ch.Content})
	}

	return &models.GenerationResult{
		Success:     true,
		Code:        code,
		Validation:  r.Validation,
		ContextUsed: snippets,
		Backend:     models.BackendReal,
	}, nil
}

type analyzeRequest struct {
	Code     string `json:"code"`
	TestName string `json:"test_name,omitempty"`
}

type analysisResponse struct {
	Success  bool            `json:"success"`
	Analysis json.RawMessage `json:"analysis"`
	Content  string          `json:"content"`
	Error    string          `json:"error"`
}

// AnalyzeTest asks the service to review test source. The service may
// return a structured analysis or free text; free text becomes the single
// suggestion of an otherwise ungraded analysis.
func (c *Client) AnalyzeTest(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	body := analyzeRequest{Code: req.TestCode, TestName: req.TestName}

	var resp analysisResponse
	if err := c.do(ctx, http.MethodPost, "/analyze-test", body, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return &models.AnalysisResult{Success: false, Error: normalize.Declared(resp.Error), Backend: models.BackendReal}, nil
	}

	analysis, err := decodeAnalysis(resp.Analysis, resp.Content)
	if err != nil {
		return nil, err
	}
	return &models.AnalysisResult{Success: true, Analysis: analysis, Backend: models.BackendReal}, nil
}

func decodeAnalysis(raw json.RawMessage, content string) (*models.Analysis, error) {
	text := content
	trimmed := bytes.TrimSpace(raw)

	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '{':
		var a models.Analysis
		if err := json.Unmarshal(trimmed, &a); err != nil {
			return nil, fmt.Errorf("%w: analysis: %v", normalize.ErrMalformedResponse, err)
		}
		if a.Suggestions == nil {
			a.Suggestions = []string{}
		}
		if a.Improvements == nil {
			a.Improvements = []string{}
		}
		return &a, nil
	case trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, fmt.Errorf("%w: analysis: %v", normalize.ErrMalformedResponse, err)
		}
	default:
		return nil, fmt.Errorf("%w: analysis has unexpected shape", normalize.ErrMalformedResponse)
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: success reported without analysis", normalize.ErrMalformedResponse)
	}
	return &models.Analysis{
		Suggestions:  []string{strings.TrimSpace(text)},
		Improvements: []string{},
	}, nil
}

type searchRequest struct {
	Query    string `json:"query"`
	NResults int    `json:"n_results"`
}

type searchResponse struct {
	Results []contextChunk `json:"results"`
}

// SearchTests looks up indexed tests related to the query. Results are
// ordered by descending relevance.
func (c *Client) SearchTests(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error) {
	body := searchRequest{Query: req.Query, NResults: req.Limit()}

	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/search-tests", body, &resp); err != nil {
		return nil, err
	}

	now := c.now()
	entries := make([]models.SearchEntry, 0, len(resp.Results))
	for _, r := range resp.Results {
		entries = append(entries, models.SearchEntry{
			SourcePath:     r.Metadata.FilePath,
			SnippetPreview: r.Content,
			RelevanceScore: relevance(r.Distance),
			CapturedAt:     now,
		})
	}
	models.SortEntries(entries)

	return &models.SearchResult{Success: true, Results: entries, Backend: models.BackendReal}, nil
}

// relevance converts a vector distance into a score in [0, 1].
func relevance(distance *float64) float64 {
	if distance == nil {
		return 0
	}
	return min(max(1-*distance, 0), 1)
}

type saveRequest struct {
	Code      string `json:"code"`
	TestName  string `json:"test_name"`
	OutputDir string `json:"output_dir"`
}

type saveResponse struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path"`
	Error    string `json:"error"`
}

// SaveTest asks the service to persist a test.
func (c *Client) SaveTest(ctx context.Context, req models.SaveRequest) (*models.SaveOutcome, error) {
	body := saveRequest{Code: req.Code, TestName: req.TestName, OutputDir: req.Dir()}

	var resp saveResponse
	if err := c.do(ctx, http.MethodPost, "/save-test", body, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return &models.SaveOutcome{Success: false, Error: normalize.Declared(resp.Error), Backend: models.BackendReal}, nil
	}
	if resp.FilePath == "" {
		return nil, fmt.Errorf("%w: success reported without file path", normalize.ErrMalformedResponse)
	}
	return &models.SaveOutcome{Success: true, FilePath: resp.FilePath, Backend: models.BackendReal}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := observability.RequestID(ctx); id != "" {
		req.Header.Set(observability.RequestIDHeader, id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Request completed",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", normalize.ErrMalformedResponse, err)
	}
	return nil
}

// statusError maps a non-2xx response. 503 and FastAPI's "not initialized"
// detail both mean the service cannot take work yet.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(raw))

	var fastAPI struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(raw, &fastAPI) == nil && fastAPI.Detail != nil {
		if s, ok := fastAPI.Detail.(string); ok {
			detail = s
		}
	}

	if resp.StatusCode == http.StatusServiceUnavailable || strings.Contains(strings.ToLower(detail), "not initialized") {
		if detail == "" {
			detail = resp.Status
		}
		return fmt.Errorf("%w: %s", normalize.ErrServiceUnavailable, detail)
	}
	return &StatusError{StatusCode: resp.StatusCode, Detail: detail}
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

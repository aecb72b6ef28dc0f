// Package normalize turns backend faults into the uniform failure records
// returned to gateway callers.
package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/kamilpajak/testpilot/pkg/models"
)

var (
	// ErrServiceUnavailable marks a backend that declared itself not ready.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrMalformedResponse marks a backend payload that could not be decoded
	// or that broke the result invariants.
	ErrMalformedResponse = errors.New("malformed response")
)

// Kind classifies a backend fault.
type Kind int

const (
	KindNone Kind = iota
	KindConnectionRefused
	KindUnavailable
	KindTimeout
	KindMalformed
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnectionRefused:
		return "connection_refused"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed"
	default:
		return "unexpected"
	}
}

// Classify inspects an error chain and reports which kind of fault it is.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var netErr net.Error

	switch {
	case errors.Is(err, ErrServiceUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrMalformedResponse), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return KindMalformed
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	default:
		return KindUnexpected
	}
}

// Message renders a human-readable description of err. Each kind has its own
// template so callers can tell a stopped service from a broken one.
func Message(err error) string {
	switch Classify(err) {
	case KindNone:
		return ""
	case KindConnectionRefused:
		return "cannot connect to AI service (connection refused); start the service or switch to mock mode"
	case KindUnavailable:
		return "AI service unavailable: " + detail(err, ErrServiceUnavailable)
	case KindTimeout:
		return "AI service did not respond in time"
	case KindMalformed:
		return "AI service returned a malformed response: " + detail(err, ErrMalformedResponse)
	default:
		return fmt.Sprintf("unexpected AI service error: %v", err)
	}
}

// Declared fills in a message for a backend that reported failure without
// saying why.
func Declared(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return "AI service reported a failure without details"
	}
	return msg
}

// detail strips the sentinel text from an error message so the rendered
// template does not repeat it.
func detail(err, sentinel error) string {
	msg := err.Error()
	msg = strings.TrimSuffix(msg, ": "+sentinel.Error())
	msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	if msg == sentinel.Error() || msg == "" {
		return "no details"
	}
	return msg
}

// Generation builds the failed generation result for err.
func Generation(err error) *models.GenerationResult {
	return &models.GenerationResult{Success: false, Error: Message(err), Backend: models.BackendReal}
}

// Analysis builds the failed analysis result for err.
func Analysis(err error) *models.AnalysisResult {
	return &models.AnalysisResult{Success: false, Error: Message(err), Backend: models.BackendReal}
}

// Search builds the failed search result for err.
func Search(err error) *models.SearchResult {
	return &models.SearchResult{Success: false, Results: []models.SearchEntry{}, Error: Message(err), Backend: models.BackendReal}
}

// Save builds the failed save outcome for err.
func Save(err error) *models.SaveOutcome {
	return &models.SaveOutcome{Success: false, Error: Message(err), Backend: models.BackendReal}
}

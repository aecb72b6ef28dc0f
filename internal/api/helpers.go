package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kamilpajak/testpilot/internal/gateway"
	"github.com/kamilpajak/testpilot/internal/observability"
)

// maxBodyBytes bounds request bodies; test sources are small.
const maxBodyBytes = 1 << 20

// handle adapts a gateway operation to an HTTP handler. Failed results are
// still 200 responses; only invalid requests and cancellation are errors.
func handle[Req, Res any](s *Server, operation string, call func(context.Context, Req) (Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := call(r.Context(), req)
		if err != nil {
			s.writeOperationError(w, r, operation, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) writeOperationError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("Operation failed",
			zap.String("operation", operation),
			zap.String("request_id", observability.RequestID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

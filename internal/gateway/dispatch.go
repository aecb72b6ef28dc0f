package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kamilpajak/testpilot/internal/normalize"
	"github.com/kamilpajak/testpilot/internal/observability"
	"github.com/kamilpajak/testpilot/pkg/models"
)

// dispatch runs one operation against the active backend. In real mode a
// transport error or a fault reported by fault() switches to the simulator
// and re-issues the same call there once, when auto fallback is enabled.
// Without auto fallback, declared failures are returned as they are and
// transport errors as normalized failures. Go errors are returned only for
// caller cancellation.
func dispatch[T any](
	ctx context.Context,
	g *Gateway,
	operation string,
	call func(context.Context, Backend) (*T, error),
	fault func(*T) string,
	failure func(err error, backend string) *T,
) (*T, error) {
	ctx, requestID := observability.EnsureRequestID(ctx)
	logger := g.logger.With(zap.String("operation", operation), zap.String("request_id", requestID))

	if g.Mode() == models.ModeSimulated {
		return invokeSimulator(ctx, g, logger, operation, call, fault, failure)
	}

	res, err := call(ctx, g.real)
	if err == nil && res == nil {
		err = fmt.Errorf("%w: empty result", normalize.ErrMalformedResponse)
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var reason string
	switch {
	case err != nil:
		reason = ReasonTransport
		g.metrics.RecordOperation(operation, g.real.Name(), observability.OutcomeError)
		logger.Warn("Real backend call failed",
			zap.String("kind", normalize.Classify(err).String()),
			zap.Error(err),
		)
	default:
		reason = fault(res)
		if reason == "" {
			g.metrics.RecordOperation(operation, g.real.Name(), observability.OutcomeSuccess)
			return res, nil
		}
		g.metrics.RecordOperation(operation, g.real.Name(), observability.OutcomeFailure)
		logger.Warn("Real backend reported failure", zap.String("reason", reason))
	}

	if !g.autoFallback {
		if err != nil {
			return failure(err, g.real.Name()), nil
		}
		return res, nil
	}

	g.fallback(operation, reason)
	return invokeSimulator(ctx, g, logger, operation, call, fault, failure)
}

// invokeSimulator calls the simulator. Its result is final: simulator
// failures are never retried.
func invokeSimulator[T any](
	ctx context.Context,
	g *Gateway,
	logger *zap.Logger,
	operation string,
	call func(context.Context, Backend) (*T, error),
	fault func(*T) string,
	failure func(err error, backend string) *T,
) (*T, error) {
	res, err := call(ctx, g.sim)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil && res == nil {
		err = fmt.Errorf("%w: empty result", normalize.ErrMalformedResponse)
	}
	if err != nil {
		g.metrics.RecordOperation(operation, g.sim.Name(), observability.OutcomeError)
		logger.Error("Simulator call failed", zap.Error(err))
		return failure(err, g.sim.Name()), nil
	}

	outcome := observability.OutcomeSuccess
	if fault(res) == ReasonDeclaredFailure {
		outcome = observability.OutcomeFailure
	}
	g.metrics.RecordOperation(operation, g.sim.Name(), outcome)
	return res, nil
}

func generationFault(r *models.GenerationResult) string {
	if !r.OK() {
		return ReasonDeclaredFailure
	}
	return ""
}

func analysisFault(r *models.AnalysisResult) string {
	if !r.OK() || r.Analysis == nil {
		return ReasonDeclaredFailure
	}
	return ""
}

func saveFault(r *models.SaveOutcome) string {
	if !r.OK() {
		return ReasonDeclaredFailure
	}
	return ""
}

func generationFailure(err error, backend string) *models.GenerationResult {
	r := normalize.Generation(err)
	r.Backend = backend
	return r
}

func analysisFailure(err error, backend string) *models.AnalysisResult {
	r := normalize.Analysis(err)
	r.Backend = backend
	return r
}

func searchFailure(err error, backend string) *models.SearchResult {
	r := normalize.Search(err)
	r.Backend = backend
	return r
}

func saveFailure(err error, backend string) *models.SaveOutcome {
	r := normalize.Save(err)
	r.Backend = backend
	return r
}

package notes

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/git-ai-project/git-ai/internal/telemetry"
)

const telemetryScope = "github.com/git-ai-project/git-ai/notes"

// syncMetrics holds lazily-initialized OTel instruments for remote
// notes traffic.
var syncMetrics struct {
	ops  metric.Int64Counter
	errs metric.Int64Counter
}

var syncMetricsOnce sync.Once

func initSyncMetrics() {
	m := telemetry.Meter(telemetryScope)
	syncMetrics.ops, _ = m.Int64Counter("git_ai.notes.sync",
		metric.WithDescription("Notes pushes and fetches, by direction"),
	)
	syncMetrics.errs, _ = m.Int64Counter("git_ai.notes.sync.errors",
		metric.WithDescription("Failed notes pushes and fetches"),
	)
}

// syncSpan wraps one remote notes operation in a client span. The
// returned func ends the span and records the operation's error.
func syncSpan(ctx context.Context, dir, remote string) (context.Context, func(error)) {
	syncMetricsOnce.Do(initSyncMetrics)
	attrs := []attribute.KeyValue{
		attribute.String("git_ai.direction", dir),
		attribute.String("git_ai.remote", remote),
	}
	ctx, span := telemetry.Tracer(telemetryScope).Start(ctx, "notes."+dir,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	if syncMetrics.ops != nil {
		syncMetrics.ops.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if syncMetrics.errs != nil {
				syncMetrics.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
		}
		span.End()
	}
}

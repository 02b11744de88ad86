package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/telemetry"
)

const telemetryScope = "github.com/git-ai-project/git-ai/engine"

// engineMetrics holds lazily-initialized OTel instruments for the
// write-path operations. Hooks run inside git commands, so these are
// the latencies worth watching; read commands stay uninstrumented.
var engineMetrics struct {
	ops   metric.Int64Counter
	dur   metric.Float64Histogram
	errs  metric.Int64Counter
	lines metric.Int64Counter
}

var engineMetricsOnce sync.Once

func initEngineMetrics() {
	m := telemetry.Meter(telemetryScope)
	engineMetrics.ops, _ = m.Int64Counter("git_ai.engine.operations",
		metric.WithDescription("Total attribution operations executed"),
	)
	engineMetrics.dur, _ = m.Float64Histogram("git_ai.engine.operation.duration",
		metric.WithDescription("Attribution operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	engineMetrics.errs, _ = m.Int64Counter("git_ai.engine.errors",
		metric.WithDescription("Total attribution operation errors"),
	)
	engineMetrics.lines, _ = m.Int64Counter("git_ai.lines.attributed",
		metric.WithDescription("Lines claimed by checkpoints, by author kind"),
		metric.WithUnit("{line}"),
	)
}

// op starts a span and records a metric for the named engine operation.
func (e *Engine) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	engineMetricsOnce.Do(initEngineMetrics)
	all := append([]attribute.KeyValue{attribute.String("git_ai.operation", name)}, attrs...)
	ctx, span := telemetry.Tracer(telemetryScope).Start(ctx, "engine."+name,
		trace.WithAttributes(all...),
	)
	if engineMetrics.ops != nil {
		engineMetrics.ops.Add(ctx, 1, metric.WithAttributes(all...))
	}
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (e *Engine) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	if engineMetrics.dur != nil {
		engineMetrics.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if engineMetrics.errs != nil {
			engineMetrics.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}
	span.End()
}

// countLines records how many lines a checkpoint claimed.
func countLines(ctx context.Context, kind authorship.Kind, n int) {
	if n == 0 || engineMetrics.lines == nil {
		return
	}
	engineMetrics.lines.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("git_ai.kind", string(kind))))
}

package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/git-ai-project/git-ai/internal/eventlog"
	"github.com/git-ai-project/git-ai/internal/worklog"
)

// OnHistoryRewrite records one observed rewrite and reconciles
// everything pending.
func (e *Engine) OnHistoryRewrite(ctx context.Context, ev eventlog.Event) (err error) {
	ctx, span, t0 := e.op(ctx, "rewrite", attribute.String("git_ai.event", string(ev.Type)))
	defer func() { e.done(ctx, span, t0, err) }()

	active, err := e.Active(ctx)
	if err != nil || !active {
		return err
	}
	if _, err := e.events.Append(ev); err != nil {
		return err
	}
	_, err = e.Reconcile(ctx)
	return err
}

// Reconcile applies every pending rewrite event in order and returns
// how many were consumed. A failing event stays pending; the next hook
// or an explicit `git-ai reconcile` retries it.
func (e *Engine) Reconcile(ctx context.Context) (n int, err error) {
	ctx, span, t0 := e.op(ctx, "reconcile")
	defer func() {
		span.SetAttributes(attribute.Int("git_ai.events", n))
		e.done(ctx, span, t0, err)
	}()

	n, err = e.events.Drain(func(ev eventlog.Event) error {
		return e.rec.Apply(ctx, ev)
	})
	if n > 0 {
		e.log.Debug("reconciled rewrite events", "count", n)
	}
	return n, err
}

// GC prunes working logs whose base commit no longer exists and moves
// consumed rewrite events into the compressed archive.
func (e *Engine) GC(ctx context.Context) (prunedLogs int, err error) {
	ctx, span, t0 := e.op(ctx, "gc")
	defer func() {
		span.SetAttributes(attribute.Int("git_ai.pruned", prunedLogs))
		e.done(ctx, span, t0, err)
	}()

	head, err := e.repo.HeadSHA(ctx)
	if err != nil {
		return 0, err
	}
	bases, err := e.logs.Bases()
	if err != nil {
		return 0, err
	}
	for _, base := range bases {
		if base == head || base == worklog.InitialBase {
			continue
		}
		if _, err := e.repo.ResolveCommit(base); err == nil {
			continue // base still exists; a checkout may come back to it
		}
		if err := e.logs.Delete(base); err != nil {
			return prunedLogs, err
		}
		prunedLogs++
		e.log.Debug("pruned working log for missing commit", "base", base)
	}
	if err := e.events.Compact(e.cfg.KeepEvents); err != nil {
		return prunedLogs, err
	}
	return prunedLogs, nil
}

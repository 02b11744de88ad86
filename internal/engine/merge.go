package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// OnSquashMerge seeds the working log from the notes of the branch a
// squash merge staged. git merge --squash creates no commit, so the
// attribution would otherwise be claimed by whoever commits the staged
// tree.
func (e *Engine) OnSquashMerge(ctx context.Context, source string) (err error) {
	ctx, span, t0 := e.op(ctx, "squash_merge", attribute.String("git_ai.source", source))
	defer func() { e.done(ctx, span, t0, err) }()

	active, err := e.Active(ctx)
	if err != nil || !active {
		return err
	}
	head, err := e.repo.HeadSHA(ctx)
	if err != nil {
		return err
	}
	if head == "" {
		return nil
	}
	src, err := e.repo.ResolveCommit(source)
	if err != nil {
		e.log.Debug("squash merge source did not resolve", "source", source, "err", err)
		return nil
	}
	if src == head {
		return nil
	}
	if err := e.rec.SeedWorkingLog(ctx, src, head); err != nil {
		return err
	}
	e.log.Debug("seeded working log from squashed branch", "source", src, "base", head)
	return nil
}

// Package engine coordinates attribution for one repository: recording
// checkpoints into the working log, folding them into a note when a
// commit appears, and migrating notes when history is rewritten.
//
// The engine stays invisible until something attributable happens: a
// repository with no working logs and no notes ref gets no state
// written by any hook path.
package engine

import (
	"context"
	"log/slog"

	"github.com/git-ai-project/git-ai/internal/blame"
	"github.com/git-ai-project/git-ai/internal/config"
	"github.com/git-ai-project/git-ai/internal/eventlog"
	"github.com/git-ai-project/git-ai/internal/git"
	"github.com/git-ai-project/git-ai/internal/logging"
	"github.com/git-ai-project/git-ai/internal/notes"
	"github.com/git-ai-project/git-ai/internal/reconcile"
	"github.com/git-ai-project/git-ai/internal/worklog"
)

// Engine ties the attribution stores together for one repository
// worktree.
type Engine struct {
	repo   *git.Repo
	cfg    *config.Config
	notes  *notes.Client
	logs   *worklog.Store
	events *eventlog.Store
	rec    *reconcile.Reconciler
	blamer *blame.Blamer
	log    *slog.Logger
}

// Option tweaks New.
type Option func(*Engine)

// WithLogger attaches a diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an engine over the repository's state dir.
func New(repo *git.Repo, cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{repo: repo, cfg: cfg, log: logging.Discard()}
	for _, opt := range opts {
		opt(e)
	}

	stateDir, err := repo.StateDir()
	if err != nil {
		return nil, err
	}
	e.notes = notes.New(repo, cfg.NotesRef, notes.WithLogger(e.log))
	e.logs = worklog.NewStore(stateDir)
	e.events = eventlog.NewStore(stateDir)
	e.rec = reconcile.New(repo, e.notes, e.logs, reconcile.WithLogger(e.log))
	e.blamer = blame.New(repo, e.notes, e.logs)
	return e, nil
}

// Notes exposes the notes client for read commands and sync.
func (e *Engine) Notes() *notes.Client { return e.notes }

// Events exposes the rewrite-event journal for gc and inspection.
func (e *Engine) Events() *eventlog.Store { return e.events }

// Worklogs exposes the working-log store for gc and inspection.
func (e *Engine) Worklogs() *worklog.Store { return e.logs }

// Blame resolves per-line authorship for a repo-relative path.
func (e *Engine) Blame(ctx context.Context, path string, opts blame.Options) (*blame.Result, error) {
	return e.blamer.Blame(ctx, path, opts)
}

// Active reports whether this repository has any attribution state. An
// inactive repository must stay untouched: hooks observe and leave.
func (e *Engine) Active(ctx context.Context) (bool, error) {
	any, err := e.logs.Any()
	if err != nil || any {
		return any, err
	}
	return e.notes.RefExists(ctx)
}

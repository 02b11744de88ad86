package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/git-ai-project/git-ai/internal/engine"
	"github.com/git-ai-project/git-ai/internal/eventlog"
	"github.com/git-ai-project/git-ai/internal/ui"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Apply pending history-rewrite events to the attribution notes",
	Long: `Drain the rewrite event log: for every recorded amend, rebase,
cherry-pick, or reset, reattach attribution from the old commits to
their rewritten successors.

The hooks call this automatically, so there is normally nothing
pending. Run it by hand after working with hooks disabled, or with
--watch to follow rewrites as they land.

Examples:
  git-ai reconcile          # Drain pending events once
  git-ai reconcile --watch  # Keep reconciling as new events arrive`,
	Args: cobra.NoArgs,
	Run:  runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) {
	ctx := getRootContext()

	eng, repo, _, err := openEngine()
	if err != nil {
		fatal(err)
	}

	watch, _ := cmd.Flags().GetBool("watch")

	n, err := eng.Reconcile(ctx)
	if err != nil {
		fatal(err)
	}
	reportReconciled(n)

	if !watch {
		return
	}
	stateDir, err := repo.StateDir()
	if err != nil {
		fatal(err)
	}
	watchEvents(ctx, eng, stateDir)
}

func reportReconciled(n int) {
	if jsonOutput {
		outputJSON(map[string]int{"reconciled": n})
		return
	}
	if n == 0 {
		fmt.Println(ui.RenderMuted("nothing pending"))
		return
	}
	fmt.Printf("%s reconciled %d event(s)\n", ui.RenderPassIcon(), n)
}

// watchEvents re-runs reconciliation whenever the hooks append to the
// rewrite event log.
func watchEvents(ctx context.Context, eng *engine.Engine, stateDir string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fatal(fmt.Errorf("create watcher: %w", err))
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(stateDir); err != nil {
		fatal(fmt.Errorf("watch %s: %w", stateDir, err))
	}

	fmt.Fprintf(os.Stderr, "Watching for rewrite events... (Press Ctrl+C to exit)\n")

	// Debounce: a rebase appends one event per replayed commit in quick
	// succession; reconcile once after the burst settles.
	var debounceTimer *time.Timer
	debounceDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Base(event.Name) != eventlog.FileName {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				n, err := eng.Reconcile(ctx)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: reconcile failed: %v\n", err)
					return
				}
				if n > 0 {
					reportReconciled(n)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error", "error", err)
		}
	}
}

func init() {
	reconcileCmd.Flags().Bool("watch", false, "Stay running and reconcile as new events arrive")

	rootCmd.AddCommand(reconcileCmd)
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/git-ai-project/git-ai/internal/hooks"
)

var hookDryRun bool

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Git hook entry points (called by installed hooks)",
	Long: `Entry points the installed git hooks call. Each subcommand maps to one
hook and takes git's arguments verbatim:

  .git/hooks/pre-commit     exec git-ai hook pre-commit
  .git/hooks/post-commit    exec git-ai hook post-commit
  .git/hooks/post-rewrite   exec git-ai hook post-rewrite "$1"
  .git/hooks/post-checkout  exec git-ai hook post-checkout "$1" "$2" "$3"
  .git/hooks/post-merge     exec git-ai hook post-merge "$1"
  .git/hooks/pre-push       exec git-ai hook pre-push "$1" "$2"

git has no reset hook; a shell wrapper reports resets after the fact:

  pre=$(git rev-parse HEAD) && git reset "$@" && git-ai hook observe-reset --from "$pre"

Failures are reported on stderr but every subcommand exits 0, so an
attribution problem never blocks a commit, rebase, or push. Set
GIT_AI=0 to turn all hook processing off.`,
}

// runHookDispatch wraps each hook body: build the dispatcher, run it,
// and swallow errors after reporting them. A hook exiting non-zero
// would abort the enclosing git command, which attribution is never
// worth.
func runHookDispatch(name string, fn func(ctx context.Context, d *hooks.Dispatcher) error) {
	ctx := getRootContext()

	eng, repo, cfg, err := openEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "git-ai %s: %v\n", name, err)
		return
	}
	d := hooks.New(repo, cfg, eng, hooks.WithLogger(logger), hooks.WithDryRun(hookDryRun))
	if err := fn(ctx, d); err != nil {
		fmt.Fprintf(os.Stderr, "git-ai %s: %v\n", name, err)
	}
}

var hookPreCommitCmd = &cobra.Command{
	Use:   "pre-commit",
	Short: "Capture cherry-pick state before the commit finalizes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runHookDispatch("pre-commit", func(ctx context.Context, d *hooks.Dispatcher) error {
			return d.PreCommit(ctx)
		})
	},
}

var hookPostCommitCmd = &cobra.Command{
	Use:   "post-commit",
	Short: "Fold checkpoints into a note on the new commit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runHookDispatch("post-commit", func(ctx context.Context, d *hooks.Dispatcher) error {
			return d.PostCommit(ctx)
		})
	},
}

var hookPostRewriteCmd = &cobra.Command{
	Use:   "post-rewrite <amend|rebase>",
	Short: "Record the old→new mappings of an amend or rebase",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runHookDispatch("post-rewrite", func(ctx context.Context, d *hooks.Dispatcher) error {
			return d.PostRewrite(ctx, args[0], cmd.InOrStdin())
		})
	},
}

var hookPostCheckoutCmd = &cobra.Command{
	Use:   "post-checkout <old> <new> <branch-flag>",
	Short: "Carry or trim in-flight attribution across a checkout",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runHookDispatch("post-checkout", func(ctx context.Context, d *hooks.Dispatcher) error {
			return d.PostCheckout(ctx, args[0], args[1], args[2] == "1")
		})
	},
}

var hookPostMergeCmd = &cobra.Command{
	Use:   "post-merge [<squash-flag>]",
	Short: "Handle merge commits and squash-staged trees",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		squashed := len(args) > 0 && args[0] == "1"
		runHookDispatch("post-merge", func(ctx context.Context, d *hooks.Dispatcher) error {
			return d.PostMerge(ctx, squashed)
		})
	},
}

var hookPrePushCmd = &cobra.Command{
	Use:   "pre-push [<remote> [<url>]]",
	Short: "Push the attribution notes ref alongside the push",
	Args:  cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		// git feeds the ref lines on stdin; drain them so it never sees
		// a broken pipe.
		_, _ = io.Copy(io.Discard, cmd.InOrStdin())

		remote := ""
		if len(args) > 0 {
			remote = args[0]
		}
		runHookDispatch("pre-push", func(ctx context.Context, d *hooks.Dispatcher) error {
			return d.PrePush(ctx, remote)
		})
	},
}

var hookObserveResetCmd = &cobra.Command{
	Use:   "observe-reset",
	Short: "Record a reset the calling wrapper just performed",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetString("from")
		runHookDispatch("observe-reset", func(ctx context.Context, d *hooks.Dispatcher) error {
			return d.ObserveReset(ctx, from)
		})
	},
}

func init() {
	hookCmd.PersistentFlags().BoolVar(&hookDryRun, "dry-run", false, "Run the hook without recording anything")
	hookObserveResetCmd.Flags().String("from", "", "HEAD before the reset (default: previous head from the reflog)")

	hookCmd.AddCommand(hookPreCommitCmd)
	hookCmd.AddCommand(hookPostCommitCmd)
	hookCmd.AddCommand(hookPostRewriteCmd)
	hookCmd.AddCommand(hookPostCheckoutCmd)
	hookCmd.AddCommand(hookPostMergeCmd)
	hookCmd.AddCommand(hookPrePushCmd)
	hookCmd.AddCommand(hookObserveResetCmd)
	rootCmd.AddCommand(hookCmd)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-ai-project/git-ai/internal/config"
	"github.com/git-ai-project/git-ai/internal/engine"
	"github.com/git-ai-project/git-ai/internal/git"
	"github.com/git-ai-project/git-ai/internal/logging"
	"github.com/git-ai-project/git-ai/internal/telemetry"
)

var (
	actor       string
	jsonOutput  bool
	verboseFlag bool // Enable verbose/debug output
	quietFlag   bool // Suppress non-essential output (errors only)

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "git-ai",
	Short: "git-ai - Line-level AI authorship tracking for git",
	Long: `Records which lines of each commit were written by a human and which by
an AI agent, stores the attestations in git notes, and keeps them accurate
across amends, rebases, cherry-picks, resets, and squash merges.

Agents call 'git-ai checkpoint' as they edit; the installed git hooks do the
rest. Attribution is read back with 'git-ai blame', 'git-ai stats', and
'git-ai show'.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Handle --version flag on root command
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("git-ai version %s (%s)\n", Version, Build)
			return
		}
		// No subcommand - show help
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		logger = logging.New(logging.Options{
			Verbose: verboseFlag,
			Quiet:   quietFlag,
			JSON:    jsonOutput,
		})
		// No-op providers unless GIT_AI_TELEMETRY=1, so this is free by default.
		if err := telemetry.Init(rootCtx, "git-ai", Version); err != nil {
			logger.Warn("telemetry init failed", "error", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)

		// Cancel the signal context to clean up resources
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// getRootContext returns the signal-aware context, falling back to
// Background before PersistentPreRun has run (help, completion).
func getRootContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

// openRepo locates the repository enclosing the working directory.
func openRepo() (*git.Repo, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}
	return git.Open(cwd, git.WithLogger(logger))
}

// openEngine opens the enclosing repository, loads its configuration, and
// constructs the engine. Most commands start here.
func openEngine() (*engine.Engine, *git.Repo, *config.Config, error) {
	repo, err := openRepo()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load(repo)
	if err != nil {
		return nil, nil, nil, err
	}
	eng, err := engine.New(repo, cfg, engine.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, repo, cfg, nil
}

// getActor resolves the author name for checkpoints.
// Priority: --author flag > GIT_AI_ACTOR env > config actor > git config user.name > $USER > "unknown"
func getActor(ctx context.Context, repo *git.Repo, cfg *config.Config) string {
	return config.ResolveActor(ctx, repo, actor, cfg)
}

func init() {
	// Register persistent flags
	rootCmd.PersistentFlags().StringVar(&actor, "author", "", "Author name for attribution (default: $GIT_AI_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	// Add --version flag to root command (same behavior as version subcommand)
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	// git invokes hooks with stdout attached to its own plumbing, so nothing
	// here may print to stdout except command output proper.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

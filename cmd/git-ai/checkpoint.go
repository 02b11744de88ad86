package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/engine"
	"github.com/git-ai-project/git-ai/internal/ui"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint [paths...]",
	Short: "Record who wrote the current uncommitted changes",
	Long: `Snapshot the working tree and attribute every changed line.

Agents call this after each edit with --agent and --session so the lines
they wrote carry their identity. Anything not claimed by an agent
checkpoint falls to the human author when the commit lands.

Checkpoints accumulate in a working log keyed to the checked-out commit;
the post-commit hook folds them into a git note on the new commit.

Examples:
  git-ai checkpoint                                 # Human checkpoint of all changes
  git-ai checkpoint --agent claude --session $SID   # Agent checkpoint
  git-ai checkpoint --agent claude --model opus src/parser.go
  git-ai checkpoint --staged-only                   # Only what the index holds
  git-ai checkpoint --pass-through                  # Moved code, claim nothing`,
	Args: cobra.ArbitraryArgs,
	Run:  runCheckpoint,
}

func runCheckpoint(cmd *cobra.Command, args []string) {
	ctx := getRootContext()

	eng, repo, cfg, err := openEngine()
	if err != nil {
		fatal(err)
	}

	// Same kill switch the hooks honor: exit clean so agent wrappers
	// calling us unconditionally never break.
	if cfg.Disabled || os.Getenv("GIT_AI") == "0" {
		logger.Debug("checkpoint skipped, attribution disabled")
		return
	}

	agent, _ := cmd.Flags().GetString("agent")
	session, _ := cmd.Flags().GetString("session")
	model, _ := cmd.Flags().GetString("model")
	prompt, _ := cmd.Flags().GetString("prompt")
	transcriptPath, _ := cmd.Flags().GetString("transcript")
	stagedOnly, _ := cmd.Flags().GetBool("staged-only")
	passThrough, _ := cmd.Flags().GetBool("pass-through")

	if agent == "" && (session != "" || model != "" || prompt != "" || transcriptPath != "") {
		fatal(fmt.Errorf("--session, --model, --prompt, and --transcript require --agent"))
	}

	req := engine.CheckpointRequest{
		Kind:        authorship.KindHuman,
		Actor:       getActor(ctx, repo, cfg),
		Paths:       args,
		StagedOnly:  stagedOnly,
		PassThrough: passThrough,
	}

	if agent != "" {
		if session == "" {
			session = os.Getenv("GIT_AI_SESSION")
		}
		if session == "" {
			// No session means every checkpoint would start a new prompt
			// record; mint one so repeated calls still group.
			session = uuid.NewString()
			fmt.Fprintf(os.Stderr, "%s no --session given, generated %s (pass it to later checkpoints)\n",
				ui.RenderWarnIcon(), session)
		}
		req.Kind = authorship.KindAIAgent
		req.Agent = &authorship.AgentID{Tool: agent, ID: session, Model: model}

		transcript, err := loadTranscript(transcriptPath, prompt)
		if err != nil {
			fatal(err)
		}
		req.Transcript = transcript
	}

	res, err := eng.OnCheckpoint(ctx, req)
	if err != nil {
		fatal(err)
	}

	if jsonOutput {
		type checkpointResult struct {
			Deduped         bool     `json:"deduped"`
			Paths           []string `json:"paths"`
			Additions       int      `json:"additions"`
			Deletions       int      `json:"deletions"`
			SkippedUnstaged []string `json:"skipped_unstaged,omitempty"`
			Session         string   `json:"session,omitempty"`
		}
		outputJSON(checkpointResult{
			Deduped:         res.Deduped,
			Paths:           res.Paths,
			Additions:       res.Stats.Additions,
			Deletions:       res.Stats.Deletions,
			SkippedUnstaged: res.SkippedUnstaged,
			Session:         session,
		})
		return
	}

	for _, p := range res.SkippedUnstaged {
		fmt.Printf("%s %s has unstaged edits not covered by --staged-only\n", ui.RenderWarnIcon(), p)
	}

	if res.Deduped {
		fmt.Println(ui.RenderMuted("checkpoint: no changes since last snapshot"))
		return
	}
	if len(res.Paths) == 0 {
		fmt.Println(ui.RenderMuted("checkpoint: nothing to record"))
		return
	}

	fmt.Printf("%s checkpoint recorded %d file(s), +%d/-%d lines\n",
		ui.RenderPassIcon(), len(res.Paths), res.Stats.Additions, res.Stats.Deletions)
	if verboseFlag {
		for _, p := range res.Paths {
			fmt.Printf("%s%s%s\n", ui.TreeIndent, ui.TreeChild, p)
		}
	}
}

// loadTranscript reads the agent conversation for a checkpoint. A path of
// "-" reads stdin. --prompt is shorthand for a single user message.
func loadTranscript(path, prompt string) ([]authorship.Message, error) {
	if path == "" {
		if prompt == "" {
			return nil, nil
		}
		return []authorship.Message{authorship.UserMessage(prompt)}, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var msgs []authorship.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return msgs, nil
}

func init() {
	checkpointCmd.Flags().String("agent", "", "AI tool recording this checkpoint (e.g. claude, cursor)")
	checkpointCmd.Flags().String("session", "", "Agent session ID; groups checkpoints into one prompt record (default: $GIT_AI_SESSION)")
	checkpointCmd.Flags().String("model", "", "Model identifier for the agent session")
	checkpointCmd.Flags().String("prompt", "", "Prompt text to record as a single user message")
	checkpointCmd.Flags().String("transcript", "", "JSON transcript file of the agent conversation ('-' for stdin)")
	checkpointCmd.Flags().Bool("staged-only", false, "Attribute index content only, leave unstaged edits for later")
	checkpointCmd.Flags().Bool("pass-through", false, "Shift existing attributions through this edit without claiming new lines")
	checkpointCmd.MarkFlagsMutuallyExclusive("prompt", "transcript")

	rootCmd.AddCommand(checkpointCmd)
}

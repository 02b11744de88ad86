package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/git-ai-project/git-ai/internal/ui"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Inspect and sync the attribution notes ref",
	Long: `Attribution records live in a dedicated git notes ref (refs/notes/ai by
default) that travels separately from branches. These subcommands inspect
the raw notes and exchange them with a remote.`,
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List commits that carry an attribution note",
	Args:  cobra.NoArgs,
	Run:   runNotesList,
}

var notesShowCmd = &cobra.Command{
	Use:   "show <rev>",
	Short: "Print the raw attribution note of a commit",
	Args:  cobra.ExactArgs(1),
	Run:   runNotesShow,
}

var notesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and push attribution notes with a remote",
	Long: `Fetch the remote notes ref, merge it with the local one, and push the
result back. The merge is attestation-aware: both sides' records are
kept, so concurrent attribution from different clones never clobbers.

The pre-push hook runs the push half automatically; this command exists
for repairing after a long-offline clone or a rejected push.`,
	Args: cobra.NoArgs,
	Run:  runNotesSync,
}

func runNotesList(cmd *cobra.Command, args []string) {
	ctx := getRootContext()

	eng, repo, _, err := openEngine()
	if err != nil {
		fatal(err)
	}

	entries, err := eng.Notes().List(ctx)
	if err != nil {
		fatal(err)
	}

	shas := make([]string, 0, len(entries))
	for sha := range entries {
		shas = append(shas, sha)
	}
	sort.Strings(shas)

	if jsonOutput {
		type noteEntry struct {
			SHA  string `json:"sha"`
			Note string `json:"note"`
		}
		out := make([]noteEntry, 0, len(shas))
		for _, sha := range shas {
			out = append(out, noteEntry{SHA: sha, Note: entries[sha]})
		}
		outputJSON(out)
		return
	}

	if len(shas) == 0 {
		fmt.Println(ui.RenderMuted("no attribution notes yet"))
		return
	}
	for _, sha := range shas {
		subject, err := repo.CommitSubject(ctx, sha)
		if err != nil {
			// The notes ref can reference commits gc has pruned.
			subject = ui.RenderMuted("(commit missing)")
		}
		fmt.Printf("%s  %s\n", ui.RenderAccent(shortCommit(sha)), subject)
	}
	fmt.Println(ui.RenderMuted(fmt.Sprintf("%d note(s) on %s", len(shas), eng.Notes().FullRef())))
}

func runNotesShow(cmd *cobra.Command, args []string) {
	ctx := getRootContext()

	eng, repo, _, err := openEngine()
	if err != nil {
		fatal(err)
	}

	sha, err := repo.ResolveCommit(args[0])
	if err != nil {
		fatal(err)
	}
	raw, ok, err := eng.Notes().GetRaw(ctx, sha)
	if err != nil {
		fatal(err)
	}
	if !ok {
		fatal(fmt.Errorf("%s has no attribution note", shortCommit(sha)))
	}

	// Raw note content is the exchange format; print it untouched.
	fmt.Print(string(raw))
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		fmt.Println()
	}
}

func runNotesSync(cmd *cobra.Command, args []string) {
	ctx := getRootContext()

	eng, _, cfg, err := openEngine()
	if err != nil {
		fatal(err)
	}

	remote, _ := cmd.Flags().GetString("remote")
	if remote == "" {
		remote = cfg.Remote
	}

	nc := eng.Notes()
	if err := nc.Fetch(ctx, remote); err != nil {
		fatal(fmt.Errorf("fetch notes from %s: %w", remote, err))
	}
	if err := nc.Push(ctx, remote); err != nil {
		fatal(fmt.Errorf("push notes to %s: %w", remote, err))
	}

	if jsonOutput {
		outputJSON(map[string]string{"remote": remote, "ref": nc.FullRef()})
		return
	}
	fmt.Printf("%s synced %s with %s\n", ui.RenderPassIcon(), nc.FullRef(), remote)
}

func init() {
	notesSyncCmd.Flags().String("remote", "", "Remote to sync with (default: from config, usually origin)")

	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesShowCmd)
	notesCmd.AddCommand(notesSyncCmd)
	rootCmd.AddCommand(notesCmd)
}

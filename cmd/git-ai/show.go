package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/identity"
	"github.com/git-ai-project/git-ai/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show [<rev>]",
	Short: "Show the attribution record and agent prompts for a commit",
	Long: `Print the attribution note of a commit: which files and line ranges
each author claimed, and the agent conversations recorded alongside.

Transcripts render as markdown. Long ones are trimmed to the first and
last few lines; pass --full for the complete text.

Examples:
  git-ai show                # HEAD
  git-ai show abc1234        # Specific commit
  git-ai show HEAD~2 --full  # Untruncated transcripts
  git-ai show --json         # Machine-readable record`,
	Args: cobra.MaximumNArgs(1),
	Run:  runShow,
}

func runShow(cmd *cobra.Command, args []string) {
	ctx := getRootContext()

	eng, repo, cfg, err := openEngine()
	if err != nil {
		fatal(err)
	}

	rev := "HEAD"
	if len(args) == 1 {
		rev = args[0]
	}
	full, _ := cmd.Flags().GetBool("full")
	noPager, _ := cmd.Flags().GetBool("no-pager")

	sha, log, err := eng.Show(ctx, rev)
	if err != nil {
		fatal(err)
	}
	if log == nil {
		if jsonOutput {
			outputJSON(map[string]string{"sha": sha})
			return
		}
		fmt.Printf("%s %s has no attribution note\n", ui.RenderSkipIcon(), shortCommit(sha))
		return
	}

	subject, err := repo.CommitSubject(ctx, sha)
	if err != nil {
		fatal(err)
	}

	if jsonOutput {
		type showResult struct {
			SHA           string                             `json:"sha"`
			Subject       string                             `json:"subject"`
			AcceptedLines map[string]int                     `json:"accepted_lines"`
			Paths         []string                           `json:"paths"`
			Prompts       map[string]authorship.PromptRecord `json:"prompts,omitempty"`
		}
		outputJSON(showResult{
			SHA:           sha,
			Subject:       subject,
			AcceptedLines: log.AcceptedLineCounts(),
			Paths:         log.TouchedPaths(),
			Prompts:       log.Metadata.Prompts,
		})
		return
	}

	stateDir, err := repo.StateDir()
	if err != nil {
		fatal(err)
	}
	resolver, err := identity.Load(stateDir)
	if err != nil {
		fatal(err)
	}
	idmap := resolver.ForLog(log, getActor(ctx, repo, cfg))

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s\n", ui.RenderAccent("commit "+shortCommit(sha)), subject)

	sb.WriteString("\nFiles:\n")
	for _, f := range log.Attestations {
		fmt.Fprintf(&sb, "  %s%s\n", ui.TreeChild, f.Path)
		for _, e := range f.Entries {
			id := idmap[e.AuthorID]
			fmt.Fprintf(&sb, "  %s%s%s  %s\n",
				ui.TreeIndent, ui.TreeLast,
				ui.RenderAuthor(id.Name, id.Color),
				ui.RenderMuted("lines "+formatRanges(e.Ranges)))
		}
	}

	for _, pid := range sortedPromptIDs(log.Metadata.Prompts) {
		rec := log.Metadata.Prompts[pid]
		id := idmap[pid]

		sb.WriteString("\n" + ui.MutedStyle.Render(ui.SeparatorHeavy) + "\n")
		name := id.Name
		if rec.AgentID.Model != "" {
			name += " (" + rec.AgentID.Model + ")"
		}
		fmt.Fprintf(&sb, "%s  %s\n", ui.RenderAuthor(name, id.Color),
			ui.RenderMuted(fmt.Sprintf("%d lines accepted, +%d/-%d over the session",
				rec.AcceptedLines, rec.TotalAdditions, rec.TotalDeletions)))

		if len(rec.Messages) == 0 {
			sb.WriteString(ui.RenderMuted("(no transcript recorded)") + "\n")
			continue
		}
		rendered := ui.RenderMarkdown(transcriptMarkdown(rec.Messages))
		if !full {
			rendered = ui.TruncateLines(rendered, ui.DefaultMaxLines, ui.DefaultContextLines)
		}
		sb.WriteString(rendered)
		if !strings.HasSuffix(rendered, "\n") {
			sb.WriteString("\n")
		}
	}

	if err := ui.ToPager(sb.String(), ui.PagerOptions{NoPager: noPager}); err != nil {
		fatal(err)
	}
}

// transcriptMarkdown formats an agent conversation for terminal rendering.
func transcriptMarkdown(msgs []authorship.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Type {
		case authorship.MessageUser:
			b.WriteString("\n**User**\n\n")
			b.WriteString(messageText(m))
			b.WriteString("\n")
		case authorship.MessageAssistant:
			b.WriteString("\n**Assistant**\n\n")
			b.WriteString(messageText(m))
			b.WriteString("\n")
		case authorship.MessageToolUse:
			b.WriteString("\n**Tool** `" + m.Name + "`\n")
			if len(m.Input) > 0 {
				b.WriteString("\n```json\n")
				b.Write(m.Input)
				b.WriteString("\n```\n")
			}
		}
	}
	return b.String()
}

func messageText(m authorship.Message) string {
	if m.Text == "" {
		// Redacted transcripts keep turn structure but drop content.
		return "_redacted_"
	}
	return m.Text
}

func formatRanges(ranges []authorship.LineRange) string {
	parts := make([]string, 0, len(ranges))
	for _, r := range ranges {
		if r.Start == r.End {
			parts = append(parts, strconv.Itoa(r.Start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", r.Start, r.End))
		}
	}
	return strings.Join(parts, ", ")
}

// sortedPromptIDs orders prompt sessions most-accepted first so the
// transcript that mattered renders at the top.
func sortedPromptIDs(prompts map[string]authorship.PromptRecord) []string {
	ids := make([]string, 0, len(prompts))
	for id := range prompts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := prompts[ids[i]], prompts[ids[j]]
		if a.AcceptedLines != b.AcceptedLines {
			return a.AcceptedLines > b.AcceptedLines
		}
		return ids[i] < ids[j]
	})
	return ids
}

func init() {
	showCmd.Flags().Bool("full", false, "Show complete transcripts without trimming")
	showCmd.Flags().Bool("no-pager", false, "Do not pipe output into a pager")

	rootCmd.AddCommand(showCmd)
}

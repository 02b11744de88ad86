package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/blame"
	"github.com/git-ai-project/git-ai/internal/identity"
	"github.com/git-ai-project/git-ai/internal/ui"
)

var blameCmd = &cobra.Command{
	Use:   "blame <path>",
	Short: "Show line-by-line authorship for a file",
	Long: `Annotate each line of a file with who wrote it: the human author or
the AI agent whose checkpoint claimed it.

Without --rev the worktree view is shown, so uncommitted agent edits are
visible immediately. Lines older than attribution tracking render with an
empty author column.

Examples:
  git-ai blame src/parser.go               # Worktree view
  git-ai blame --rev HEAD~3 src/parser.go  # As of an older commit
  git-ai blame -L 120,180 src/parser.go    # Only lines 120-180`,
	Args: cobra.ExactArgs(1),
	Run:  runBlame,
}

func runBlame(cmd *cobra.Command, args []string) {
	ctx := getRootContext()

	eng, repo, cfg, err := openEngine()
	if err != nil {
		fatal(err)
	}

	rev, _ := cmd.Flags().GetString("rev")
	lineRange, _ := cmd.Flags().GetString("lines")
	noPager, _ := cmd.Flags().GetBool("no-pager")

	opts := blame.Options{Revision: rev}
	if lineRange != "" {
		start, end, err := parseLineRange(lineRange)
		if err != nil {
			fatal(err)
		}
		opts.StartLine, opts.EndLine = start, end
	}

	cwd, err := os.Getwd()
	if err != nil {
		fatal(err)
	}
	rel, err := repo.RelToTopLevel(cwd, args[0])
	if err != nil {
		fatal(err)
	}

	res, err := eng.Blame(ctx, rel, opts)
	if err != nil {
		fatal(err)
	}

	if jsonOutput {
		outputJSON(res)
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
	humanName := getActor(ctx, repo, cfg)

	ids := make(map[string]identity.Identity)
	authorWidth := 0
	for _, l := range res.Lines {
		if l.AuthorID == "" {
			continue
		}
		if _, ok := ids[l.AuthorID]; ok {
			continue
		}
		var agent *authorship.AgentID
		if a, ok := res.Agents[l.AuthorID]; ok {
			agent = &a
		}
		id := resolver.Resolve(l.AuthorID, agent, humanName)
		ids[l.AuthorID] = id
		authorWidth = max(authorWidth, len([]rune(id.Name)))
	}
	authorWidth = min(authorWidth, 24)

	numWidth := 1
	if n := len(res.Lines); n > 0 {
		numWidth = len(strconv.Itoa(res.Lines[n-1].Number))
	}

	var sb strings.Builder
	if res.Revision != "" {
		sb.WriteString(ui.RenderMuted(fmt.Sprintf("%s @ %s", res.Path, shortCommit(res.Revision))))
		sb.WriteString("\n")
	}
	for _, l := range res.Lines {
		author := strings.Repeat(" ", authorWidth)
		if l.AuthorID != "" {
			id := ids[l.AuthorID]
			author = ui.AuthorStyle(id.Color).Render(ui.PadRight(id.Name, authorWidth))
		}
		num := fmt.Sprintf("%*d", numWidth, l.Number)
		fmt.Fprintf(&sb, "%s %s %s %s\n", author, ui.RenderMuted(num), ui.RenderMuted("│"), l.Content)
	}

	if err := ui.ToPager(sb.String(), ui.PagerOptions{NoPager: noPager}); err != nil {
		fatal(err)
	}
}

// parseLineRange parses -L start,end (git blame syntax). A bare start
// blames a single line.
func parseLineRange(s string) (int, int, error) {
	parts := strings.SplitN(s, ",", 2)
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || start < 1 {
		return 0, 0, fmt.Errorf("invalid line range %q (want start,end)", s)
	}
	if len(parts) == 1 {
		return start, start, nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("invalid line range %q (want start,end)", s)
	}
	return start, end, nil
}

func init() {
	blameCmd.Flags().String("rev", "", "Blame committed content at this revision (default: worktree)")
	blameCmd.Flags().StringP("lines", "L", "", "Restrict output to a line range: start,end")
	blameCmd.Flags().Bool("no-pager", false, "Do not pipe output into a pager")

	rootCmd.AddCommand(blameCmd)
}

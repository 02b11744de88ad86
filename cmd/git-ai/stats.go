package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/engine"
	"github.com/git-ai-project/git-ai/internal/identity"
	"github.com/git-ai-project/git-ai/internal/timeparsing"
	"github.com/git-ai-project/git-ai/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate AI vs human line counts over a commit range",
	Long: `Walk the commit history and tally attested lines per author from the
attribution notes. Commits without a note are skipped.

Examples:
  git-ai stats                        # Last 100 commits from HEAD
  git-ai stats --since 2w             # Commits from the last two weeks
  git-ai stats --since "last monday"  # Natural language works too
  git-ai stats --rev main --limit 500
  git-ai stats --json                 # Machine-readable report`,
	Args: cobra.NoArgs,
	Run:  runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	ctx := getRootContext()

	eng, repo, cfg, err := openEngine()
	if err != nil {
		fatal(err)
	}

	rev, _ := cmd.Flags().GetString("rev")
	sinceStr, _ := cmd.Flags().GetString("since")
	limit, _ := cmd.Flags().GetInt("limit")
	noPager, _ := cmd.Flags().GetBool("no-pager")

	opts := engine.StatsOptions{Rev: rev, Limit: limit}
	if sinceStr != "" {
		since, err := timeparsing.ParseRelativeTime(sinceStr, time.Now())
		if err != nil {
			fatal(err)
		}
		opts.Since = since
	}

	report, err := eng.Stats(ctx, opts)
	if err != nil {
		fatal(err)
	}

	if jsonOutput {
		outputJSON(report)
		return
	}

	total := report.TotalAI + report.TotalHuman
	if total == 0 {
		fmt.Println(ui.RenderMuted("no attributed commits in range"))
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

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %d commits, %d attributed lines\n",
		ui.RenderCategory("ai attribution"), len(report.Commits), total)
	fmt.Fprintf(&sb, "  %s AI, %s human\n\n",
		ui.RenderAccent(fmt.Sprintf("%d%% (%d lines)", 100*report.TotalAI/total, report.TotalAI)),
		fmt.Sprintf("%d%% (%d lines)", 100*report.TotalHuman/total, report.TotalHuman))

	writeAuthorBreakdown(&sb, report, resolver, humanName, total)
	writeCommitRows(&sb, report)

	if err := ui.ToPager(sb.String(), ui.PagerOptions{NoPager: noPager}); err != nil {
		fatal(err)
	}
}

func writeAuthorBreakdown(sb *strings.Builder, report *engine.StatsReport, resolver *identity.Resolver, humanName string, total int) {
	type row struct {
		name  string
		color string
		lines int
	}
	rows := make([]row, 0, len(report.ByAuthor))
	nameWidth := 0
	for authorID, lines := range report.ByAuthor {
		var agent *authorship.AgentID
		if a, ok := report.Agents[authorID]; ok {
			agent = &a
		}
		id := resolver.Resolve(authorID, agent, humanName)
		rows = append(rows, row{name: id.Name, color: id.Color, lines: lines})
		nameWidth = max(nameWidth, len([]rune(id.Name)))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].lines != rows[j].lines {
			return rows[i].lines > rows[j].lines
		}
		return rows[i].name < rows[j].name
	})

	sb.WriteString("By author:\n")
	for _, r := range rows {
		name := ui.AuthorStyle(r.color).Render(ui.PadRight(r.name, nameWidth))
		fmt.Fprintf(sb, "  %s%s  %6d lines  %3d%%\n", ui.TreeChild, name, r.lines, 100*r.lines/total)
	}
}

func writeCommitRows(sb *strings.Builder, report *engine.StatsReport) {
	sb.WriteString("\nCommits:\n")
	for _, c := range report.Commits {
		counts := fmt.Sprintf("+%d AI, +%d human", c.AILines, c.HumanLines)
		if c.Sessions > 1 {
			counts += fmt.Sprintf(" (%d sessions)", c.Sessions)
		}
		fmt.Fprintf(sb, "  %s  %s  %s\n",
			ui.RenderAccent(shortCommit(c.SHA)),
			ui.PadRight(counts, 26),
			ui.TruncateSimple(c.Subject, 60))
	}
}

func init() {
	statsCmd.Flags().String("rev", "", "Starting revision for the walk (default: HEAD)")
	statsCmd.Flags().String("since", "", "Only commits newer than this: 3d, \"last monday\", 2025-01-02")
	statsCmd.Flags().Int("limit", 100, "Max commits to examine (0 = no limit)")
	statsCmd.Flags().Bool("no-pager", false, "Do not pipe output into a pager")

	rootCmd.AddCommand(statsCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-ai-project/git-ai/internal/ui"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Prune stale working logs and archive consumed events",
	Long: `Delete working logs whose base commit no longer exists (dropped by a
rebase and later pruned by git) and move consumed rewrite events into
the compressed archive under .git/ai/archive.

Safe to run anytime; attribution notes are never touched.`,
	Args: cobra.NoArgs,
	Run:  runGC,
}

func runGC(cmd *cobra.Command, args []string) {
	ctx := getRootContext()

	eng, _, _, err := openEngine()
	if err != nil {
		fatal(err)
	}

	pruned, err := eng.GC(ctx)
	if err != nil {
		fatal(err)
	}

	if jsonOutput {
		outputJSON(map[string]int{"pruned_worklogs": pruned})
		return
	}
	if pruned == 0 {
		fmt.Println(ui.RenderMuted("nothing to prune"))
		return
	}
	fmt.Printf("%s pruned %d stale working log(s)\n", ui.RenderPassIcon(), pruned)
}

func init() {
	rootCmd.AddCommand(gcCmd)
}

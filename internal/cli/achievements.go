package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/gitlog"
)

// commits is the git history source; tests replace it.
var commits gitlog.Reader = gitlog.Git{}

func newAchievementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "achievements",
		Aliases: []string{"detect-achievements"},
		Short:   "Record recent git commits as ACHIEVEMENTS memories",
		Long: `Scan recent non-merge commits in the project and save notable ones
(features, fixes, releases) as project ACHIEVEMENTS memories. Commits that
were already recorded are skipped.`,
		Args: cobra.NoArgs,
		RunE: runAchievements,
	}
	cmd.Flags().Duration("since", 24*time.Hour, "How far back to look")
	cmd.Flags().Bool("dry-run", false, "Show what would be saved without saving")
	return cmd
}

func runAchievements(cmd *cobra.Command, args []string) error {
	since, _ := cmd.Flags().GetDuration("since")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	list, err := commits.Since(cmd.Context(), a.dir, since)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "No commits found in the last %s.\n", since)
		return nil
	}
	fmt.Fprintf(out, "Scanning %d commits from the last %s...\n\n", len(list), since)

	report, err := a.engine.DetectAchievements(a.agent, a.project, list, dryRun)
	if err != nil {
		return err
	}

	verb := "Saved"
	if dryRun {
		verb = "Would save"
	}
	for i := range report.Saved {
		m := &report.Saved[i]
		fmt.Fprintf(out, "  %s [%s]: %s\n", verb, m.Impact, truncate(m.Content, 60))
	}
	fmt.Fprintln(out)
	if dryRun {
		fmt.Fprintf(out, "Dry run: %d achievements would be saved, %d skipped\n", len(report.Saved), report.Skipped)
	} else {
		fmt.Fprintf(out, "%d achievements saved, %d skipped\n", len(report.Saved), report.Skipped)
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/model"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics for the current agent",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.db.Stats(a.agent.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if s.Active+s.Superseded == 0 {
		fmt.Fprintf(out, "No memories found for agent %q\n", a.agent.Name)
		return nil
	}

	fmt.Fprintf(out, "# Memory Statistics for %s\n", a.agent.Name)
	fmt.Fprintf(out, "Project: %s\n\n", a.project.Name)
	fmt.Fprintf(out, "Total memories: %s\n\n", humanize.Comma(int64(s.Active+s.Superseded)))

	fmt.Fprintln(out, "## By Region")
	for _, r := range model.Regions {
		fmt.Fprintf(out, "  %-13s %d\n", r, s.ByRegion[r])
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## By Kind")
	for _, k := range model.Kinds {
		fmt.Fprintf(out, "  %-13s %d\n", k, s.ByKind[k])
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## By Impact")
	for _, i := range model.Impacts {
		fmt.Fprintf(out, "  %-13s %d\n", i, s.ByImpact[i])
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## Health")
	fmt.Fprintf(out, "  Active:         %d\n", s.Active)
	fmt.Fprintf(out, "  Superseded:     %d\n", s.Superseded)
	fmt.Fprintf(out, "  Low confidence: %d\n", s.LowConfidence)
	if a.agent.HasSigningKey() {
		fmt.Fprintf(out, "  Signed:         %d\n", s.Signed)
	}
	fmt.Fprintf(out, "  Active tokens:  %s of %s budget\n", humanize.Comma(int64(s.Tokens)), humanize.Comma(int64(a.engine.Budget)))
	if s.SizeBytes > 0 {
		fmt.Fprintf(out, "  Database size:  %s\n", humanize.Bytes(uint64(s.SizeBytes)))
	}
	return nil
}

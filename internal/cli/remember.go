package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/engine"
	"github.com/lazypower/ltm/internal/model"
)

// parseFlag parses an optional enum flag; empty means "infer".
func parseFlag[T ~string](cmd *cobra.Command, name string, parse func(string) (T, error)) (T, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return "", nil
	}
	return parse(v)
}

func newRememberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remember <text>",
		Short: "Save a memory",
		Long: `Save a memory for the current agent. Kind, impact and region are inferred
from the text unless given.`,
		Example: "  ltm remember This is crucial: never use print() for logging\n  ltm remember -r agent -k emotional I prefer terse answers",
		Args:    cobra.MinimumNArgs(1),
		RunE:    runRemember,
	}
	cmd.Flags().StringP("region", "r", "", "agent|project (default: inferred)")
	cmd.Flags().StringP("kind", "k", "", "emotional|architectural|learnings|achievements (default: inferred)")
	cmd.Flags().StringP("impact", "i", "", "low|medium|high|critical (default: inferred)")
	return cmd
}

func runRemember(cmd *cobra.Command, args []string) error {
	region, err := parseFlag(cmd, "region", model.ParseRegion)
	if err != nil {
		return err
	}
	kind, err := parseFlag(cmd, "kind", model.ParseKind)
	if err != nil {
		return err
	}
	impact, err := parseFlag(cmd, "impact", model.ParseImpact)
	if err != nil {
		return err
	}

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.engine.Create(a.agent, a.project, engine.CreateRequest{
		Text:   strings.Join(args, " "),
		Kind:   kind,
		Impact: impact,
		Region: region,
	})
	if err != nil {
		return fmt.Errorf("remember: %w", err)
	}

	out := cmd.OutOrStdout()
	linked := ""
	if m.PreviousMemoryID != "" {
		linked = fmt.Sprintf(" Linked to %.8s.", m.PreviousMemoryID)
	}
	fmt.Fprintf(out, "Remembered as %s (%s impact) in %s region.%s\n", m.Kind, m.Impact, m.Region, linked)
	signed := ""
	if m.Signature != "" {
		signed = " (signed)"
	}
	fmt.Fprintf(out, "Memory ID: %s%s\n", m.ShortID(), signed)
	return nil
}

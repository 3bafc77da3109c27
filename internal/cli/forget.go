package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/model"
)

func newForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <memory-id>",
		Short: "Retire a memory by superseding it with a correction note",
		Long: `Memories are append-only. Forgetting supersedes the memory with a
low-confidence correction so it is no longer injected.`,
		Example: "  ltm forget fa8382cf\n  ltm forget fa8382cf --reason \"We moved off Redis\"",
		Args:    cobra.ExactArgs(1),
		RunE:    runForget,
	}
	cmd.Flags().String("reason", "", "Correction text (default: a [FORGOTTEN] note)")
	cmd.Flags().StringP("impact", "i", "", "Impact of the correction (default: inherited)")
	return cmd
}

func runForget(cmd *cobra.Command, args []string) error {
	reason, _ := cmd.Flags().GetString("reason")
	impact, err := parseFlag(cmd, "impact", model.ParseImpact)
	if err != nil {
		return err
	}

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	old, correction, err := a.engine.Forget(a.agent, args[0], reason, impact)
	if err != nil {
		return describeLookup(args[0], err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Memory marked for removal: %s\n", old.ShortID())
	fmt.Fprintf(out, "Content: %s\n", truncate(old.Content, 60))
	fmt.Fprintf(out, "Correction: %s\n", correction.ShortID())
	fmt.Fprintln(out, "\n(Memories are append-only - a correction note was added)")
	return nil
}

func newCorrectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "correct <memory-id> <text>",
		Aliases: []string{"replace"},
		Short:   "Supersede a memory with corrected text",
		Long: `Supersede a memory with corrected text. The new version keeps the old
memory's region and kind. Use --impact to change the impact level.`,
		Example: "  ltm correct fa8382cf Tabs, not spaces, in Makefiles only\n  ltm correct fa8382cf --impact critical \"Never force-push main\"",
		Args:    cobra.MinimumNArgs(2),
		RunE:    runCorrect,
	}
	cmd.Flags().StringP("impact", "i", "", "New impact (default: inherited)")
	return cmd
}

func runCorrect(cmd *cobra.Command, args []string) error {
	impact, err := parseFlag(cmd, "impact", model.ParseImpact)
	if err != nil {
		return err
	}

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	old, replacement, err := a.engine.Replace(a.agent, args[0], strings.Join(args[1:], " "), impact)
	if err != nil {
		return describeLookup(args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Superseded %s (v%d) with %s (v%d, %s impact)\n",
		old.ShortID(), old.Version, replacement.ShortID(), replacement.Version, replacement.Impact)
	return nil
}

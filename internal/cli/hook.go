package cli

import (
	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/hooks"
)

func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Handle host session hook events",
	}
	for _, ev := range []struct{ use, short string }{
		{"start", "Handle SessionStart: inject memories"},
		{"end", "Handle SessionEnd: compact decayed memories"},
	} {
		event := ev.use
		cmd.AddCommand(&cobra.Command{
			Use:   ev.use,
			Short: ev.short,
			Args:  cobra.NoArgs,
			// Hooks never fail: errors go to stderr and the exit code stays 0.
			Run: func(cmd *cobra.Command, args []string) {
				h := hooks.NewHandler(hookOpener(optionsFrom(cmd)))
				h.Stdout = cmd.OutOrStdout()
				h.Stderr = cmd.ErrOrStderr()
				h.Handle(event, cmd.InOrStdin())
			},
		})
	}
	return cmd
}

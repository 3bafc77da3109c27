// Package cli implements the ltm command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the full command tree. Each call returns fresh commands
// so flag state never leaks between invocations.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ltm",
		Short:         "Long-term memory for AI agents",
		Long:          "ltm gives an agent memories that persist across sessions: signed, append-only, budgeted at injection and compacted as they age.",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("db", "", "Database path (default: $LTM_DB or ~/.ltm/memories.db)")
	pf.String("config", "", "Config file (default: ~/.ltm/config.json)")
	pf.StringP("agent", "a", "", "Agent name (default: resolved from .claude/agents)")
	pf.StringP("dir", "C", "", "Project directory (default: current directory)")

	root.AddCommand(
		newVersionCmd(),
		newHookCmd(),
		newRememberCmd(),
		newRecallCmd(),
		newForgetCmd(),
		newCorrectCmd(),
		newMemoriesCmd(),
		newGraphCmd(),
		newStatsCmd(),
		newExportCmd(),
		newImportCmd(),
		newSignCmd(),
		newKeygenCmd(),
		newAchievementsCmd(),
	)
	return root
}

// Execute runs the ltm command tree against os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/store"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the agent's memories as JSON",
		Long: `Export every memory of the current agent, superseded ones included, with
the projects they reference. Signing keys are never exported.`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}
	filterFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	// Export spans all projects; --region narrows it.
	f, err := filterFrom(cmd, "")
	if err != nil {
		return err
	}
	exp, err := a.db.Export(a.agent.ID, f)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer file.Close()
		w = file
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exp); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d memories to %s\n", len(exp.Memories), output)
	}
	return nil
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import memories from an export file",
		Long: `Import memories written by "ltm export". Ids, chains and signatures are
preserved; memories that already exist are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer file.Close()
		r = file
	}

	var exp store.Export
	if err := json.NewDecoder(r).Decode(&exp); err != nil {
		return fmt.Errorf("parse import file: %w", err)
	}

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.db.Import(&exp)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d memories for %s (%d skipped, %d new projects)\n",
		res.Imported, exp.Agent.ID, res.Skipped, res.Projects)
	return nil
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/store"
)

func newRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search memories, or show one by id",
		Example: `  ltm recall logging
  ltm recall --full architecture
  ltm recall --id f0087ff3`,
		RunE: runRecall,
	}
	cmd.Flags().BoolP("full", "f", false, "Show full memory content")
	cmd.Flags().String("id", "", "Look up a memory by id or unique prefix")
	cmd.Flags().IntP("limit", "n", 10, "Maximum number of results")
	return cmd
}

func runRecall(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	full, _ := cmd.Flags().GetBool("full")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")
	if id == "" && query == "" {
		return errors.New("recall: give a query or --id")
	}

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	out := cmd.OutOrStdout()

	if id != "" {
		memID, err := a.db.ResolveID(a.agent.ID, id)
		if err != nil {
			return describeLookup(id, err)
		}
		m, err := a.db.Get(memID)
		if err != nil {
			return err
		}
		printMemory(out, m)
		return nil
	}

	memories, err := a.engine.Recall(a.agent, a.project, query, limit)
	if err != nil {
		return fmt.Errorf("recall: %w", err)
	}
	if len(memories) == 0 {
		fmt.Fprintf(out, "No memories found matching %q\n", query)
		return nil
	}

	fmt.Fprintf(out, "Found %d memories matching %q:\n\n", len(memories), query)
	for i := range memories {
		m := &memories[i]
		fmt.Fprintf(out, "%d. [%s:%s%s] (%s)", i+1, m.Kind, m.Impact, confidenceMarker(m), m.CreatedAt.Format("2006-01-02"))
		if full {
			fmt.Fprintf(out, "\n   ID: %s\n   Region: %s\n   Content:\n", m.ID, m.Region)
			for _, line := range strings.Split(m.Content, "\n") {
				fmt.Fprintf(out, "   %s\n", line)
			}
		} else {
			fmt.Fprintf(out, " %s\n   ID: %s\n", truncate(m.Content, 80), m.ShortID())
		}
		fmt.Fprintln(out)
	}
	return nil
}

func printMemory(out io.Writer, m *model.Memory) {
	fmt.Fprintf(out, "Memory: %s\n", m.ID)
	fmt.Fprintf(out, "Type: %s | Impact: %s\n", m.Kind, m.Impact)
	fmt.Fprintf(out, "Region: %s\n", m.Region)
	fmt.Fprintf(out, "Created: %s\n", m.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "Confidence: %.1f\n", m.Confidence)
	if m.IsSuperseded() {
		fmt.Fprintf(out, "Superseded by: %s\n", m.SupersededBy)
	}
	if m.IsCompacted() {
		fmt.Fprintf(out, "Original: %s\n", m.OriginalContent)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Content:")
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintln(out, m.Content)
	fmt.Fprintln(out, strings.Repeat("-", 40))
}

func confidenceMarker(m *model.Memory) string {
	if m.IsLowConfidence() {
		return "?"
	}
	return ""
}

// truncate shortens s to n runes on one line.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// describeLookup turns id resolution failures into user-facing errors.
func describeLookup(id string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("no memory found with id starting with %q", id)
	case errors.Is(err, store.ErrAmbiguousID):
		return fmt.Errorf("multiple memories match %q; give a longer id", id)
	}
	return err
}

package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/store"
)

// filterFlags registers --kind and --region.
func filterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("kind", "k", "", "Only this kind")
	cmd.Flags().StringP("region", "r", "", "Only this region (agent|project)")
}

func filterFrom(cmd *cobra.Command, projectID string) (store.Filter, error) {
	kind, err := parseFlag(cmd, "kind", model.ParseKind)
	if err != nil {
		return store.Filter{}, err
	}
	region, err := parseFlag(cmd, "region", model.ParseRegion)
	if err != nil {
		return store.Filter{}, err
	}
	return store.Filter{Region: region, Kind: kind, ProjectID: projectID}, nil
}

func newMemoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memories",
		Aliases: []string{"ls"},
		Short:   "List memories for the current agent and project",
		Args:    cobra.NoArgs,
		RunE:    runMemories,
	}
	filterFlags(cmd)
	cmd.Flags().Bool("all", false, "Include superseded memories")
	return cmd
}

func runMemories(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := filterFrom(cmd, a.project.ID)
	if err != nil {
		return err
	}
	fetch := a.db.FetchActive
	if all {
		fetch = a.db.FetchAll
	}
	memories, err := fetch(a.agent.ID, f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(memories) == 0 {
		fmt.Fprintln(out, "No memories found")
		if f.Kind != "" || f.Region != "" {
			fmt.Fprintln(out, "(Try removing filters or use --all to include superseded)")
		}
		return nil
	}

	byKind := make(map[model.Kind][]*model.Memory)
	agentCount := 0
	for i := range memories {
		m := &memories[i]
		byKind[m.Kind] = append(byKind[m.Kind], m)
		if m.Region == model.RegionAgent {
			agentCount++
		}
	}

	fmt.Fprintf(out, "Memories for %s @ %s\n", a.agent.Name, a.project.Name)
	fmt.Fprintf(out, "%s\n\n", strings.Repeat("=", 50))
	for _, kind := range model.Kinds {
		list := byKind[kind]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(out, "## %s (%d)\n\n", kind, len(list))
		for _, m := range list {
			writeListEntry(out, m)
		}
	}
	fmt.Fprintf(out, "Total: %d memories (%d agent, %d project)\n", len(memories), agentCount, len(memories)-agentCount)
	return nil
}

func writeListEntry(out io.Writer, m *model.Memory) {
	var markers []string
	if m.IsSuperseded() {
		markers = append(markers, "SUPERSEDED")
	}
	if m.IsLowConfidence() {
		markers = append(markers, fmt.Sprintf("confidence:%.1f", m.Confidence))
	}
	if m.IsCompacted() {
		markers = append(markers, "compacted")
	}
	marker := ""
	if len(markers) > 0 {
		marker = " [" + strings.Join(markers, ", ") + "]"
	}
	fmt.Fprintf(out, "  %-7s [%s]%s %s\n", m.Region, m.Impact, marker, truncate(m.Content, 70))
	fmt.Fprintf(out, "     ID: %s | %s | last used %s\n\n",
		m.ShortID(), m.CreatedAt.Format("2006-01-02"), humanize.Time(m.LastAccessed))
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show memory chains and supersession",
		Long: `Show chains of related memories linked by their previous-memory pointer.
Superseded memories are shown struck through.`,
		Args: cobra.NoArgs,
		RunE: runGraph,
	}
	filterFlags(cmd)
	cmd.Flags().BoolP("all", "a", false, "Also list standalone memories")
	return cmd
}

func runGraph(cmd *cobra.Command, args []string) error {
	showAll, _ := cmd.Flags().GetBool("all")

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := filterFrom(cmd, a.project.ID)
	if err != nil {
		return err
	}
	memories, err := a.db.FetchAll(a.agent.ID, f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(memories) == 0 {
		fmt.Fprintf(out, "No memories found for agent %q\n", a.agent.Name)
		return nil
	}
	renderGraph(out, a.agent.Name, memories, showAll)
	return nil
}

// buildChains groups memories into chains along PreviousMemoryID links.
// Each chain starts at a memory whose predecessor is absent from the set
// and lists its descendants depth-first in creation order. Chains are
// ordered by their first memory's creation time.
func buildChains(memories []model.Memory) [][]*model.Memory {
	byID := make(map[string]*model.Memory, len(memories))
	for i := range memories {
		byID[memories[i].ID] = &memories[i]
	}
	next := make(map[string][]*model.Memory)
	var roots []*model.Memory
	for i := range memories {
		m := &memories[i]
		if _, ok := byID[m.PreviousMemoryID]; ok {
			next[m.PreviousMemoryID] = append(next[m.PreviousMemoryID], m)
		} else {
			roots = append(roots, m)
		}
	}

	byCreated := func(list []*model.Memory) {
		sort.Slice(list, func(i, j int) bool {
			if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].CreatedAt.Before(list[j].CreatedAt)
			}
			return list[i].ID < list[j].ID
		})
	}
	byCreated(roots)

	var chains [][]*model.Memory
	for _, root := range roots {
		var chain []*model.Memory
		var walk func(m *model.Memory)
		walk = func(m *model.Memory) {
			chain = append(chain, m)
			children := next[m.ID]
			byCreated(children)
			for _, c := range children {
				walk(c)
			}
		}
		walk(root)
		chains = append(chains, chain)
	}
	return chains
}

func graphNode(m *model.Memory) string {
	text := truncate(m.Content, 80)
	if m.IsSuperseded() {
		text = "~~" + text + "~~"
	}
	return fmt.Sprintf("[%s] %s v%d %s", m.ShortID(), m.Kind.Abbr(), m.Version, text)
}

func renderGraph(out io.Writer, agentName string, memories []model.Memory, showAll bool) {
	var linked, standalone [][]*model.Memory
	for _, c := range buildChains(memories) {
		if len(c) > 1 {
			linked = append(linked, c)
		} else {
			standalone = append(standalone, c)
		}
	}

	fmt.Fprintf(out, "# Memory Graph for %s\n\n", agentName)
	inChains := 0
	if len(linked) > 0 {
		fmt.Fprintf(out, "## Chains (%d)\n\n", len(linked))
		for _, chain := range linked {
			inChains += len(chain)
			fmt.Fprintf(out, "Chain starting %s:\n", chain[0].CreatedAt.Format("2006-01-02"))
			for i, m := range chain {
				prefix := "  ├─"
				if i == len(chain)-1 {
					prefix = "  └─"
				}
				fmt.Fprintf(out, "%s %s\n", prefix, graphNode(m))
			}
			fmt.Fprintln(out)
		}
	}

	if showAll && len(standalone) > 0 {
		fmt.Fprintf(out, "## Standalone (%d)\n\n", len(standalone))
		for i := len(standalone) - 1; i >= 0; i-- {
			fmt.Fprintf(out, "  • %s\n", graphNode(standalone[i][0]))
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "---")
	fmt.Fprintf(out, "Total: %d memories\n", len(memories))
	fmt.Fprintf(out, "  In chains: %d\n", inChains)
	fmt.Fprintf(out, "  Standalone: %d\n", len(standalone))
	if !showAll && len(standalone) > 0 {
		fmt.Fprintf(out, "\nUse --all to show %d standalone memories\n", len(standalone))
	}
}

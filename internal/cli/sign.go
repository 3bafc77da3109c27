package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/ltm/internal/agent"
	"github.com/lazypower/ltm/internal/model"
	"github.com/lazypower/ltm/internal/signing"
)

// keyBytes is the signing key length before hex encoding.
const keyBytes = 32

func newSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign memories that have no signature yet",
		Long: `Sign every unsigned memory of the current agent with its signing key.
Signed memories are never re-signed.`,
		Args: cobra.NoArgs,
		RunE: runSign,
	}
	cmd.Flags().Bool("dry-run", false, "List what would be signed without writing")
	return cmd
}

func runSign(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	signed, err := a.engine.SignUnsigned(a.agent, dryRun)
	if err != nil {
		return err
	}
	reportSigned(cmd, signed, dryRun)
	return nil
}

func reportSigned(cmd *cobra.Command, signed []model.Memory, dryRun bool) {
	out := cmd.OutOrStdout()
	verb := "Signed"
	if dryRun {
		verb = "Would sign"
	}
	fmt.Fprintf(out, "%s %d memories\n", verb, len(signed))
	if dryRun {
		for i := range signed {
			fmt.Fprintf(out, "  %s %s\n", signed[i].ShortID(), truncate(signed[i].Content, 60))
		}
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen [agent]",
		Short: "Generate a signing key for an agent",
		Long: `Generate a signing key and store it in the agent's definition file
(.claude/agents/<agent>.md, then ~/.claude/agents/<agent>.md), or in the
config file for the fallback agent. Existing keys are never replaced.
Unsigned memories are signed with the new key.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runKeygen,
	}
}

func runKeygen(cmd *cobra.Command, args []string) error {
	a, err := openCmd(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	target := a.agent
	path := target.DefinitionPath
	if len(args) == 1 {
		name := args[0]
		path = agent.FindDefinition(name, a.dir, a.home)
		switch {
		case path != "":
		case strings.EqualFold(name, a.cfg.Agent.ID):
			target = &model.Agent{ID: a.cfg.Agent.ID, Name: a.cfg.Agent.Name, SigningKey: a.cfg.Agent.SigningKey}
		default:
			return fmt.Errorf("agent %q not found in %s or %s",
				name, agent.LocalDir(a.dir), agent.GlobalDir(a.home))
		}
	}

	key, err := signing.GenerateKey(keyBytes)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path != "" {
		def, err := agent.LoadDefinition(path)
		if err != nil {
			return err
		}
		if err := agent.AddSigningKey(path, key); err != nil {
			if errors.Is(err, agent.ErrKeyExists) {
				return fmt.Errorf("agent %q already has a signing key in %s; remove it first to regenerate", def.Name, path)
			}
			return err
		}
		target = def.Agent()
		fmt.Fprintf(out, "Generated signing key for agent %q\n  Added to: %s\n", target.Name, path)
	} else {
		if target.SigningKey != "" || a.cfg.Agent.SigningKey != "" {
			return fmt.Errorf("agent %q already has a signing key in %s", target.ID, a.cfgPath)
		}
		a.cfg.Agent.SigningKey = key
		if err := a.cfg.Save(a.cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "Generated signing key for agent %q\n  Added to: %s\n", target.Name, a.cfgPath)
	}

	target.SigningKey = key
	if err := a.db.SaveAgent(target); err != nil {
		return err
	}
	fmt.Fprintln(out, "  Updated agent in database")

	signed, err := a.engine.SignUnsigned(target, false)
	if err != nil {
		return err
	}
	reportSigned(cmd, signed, false)
	return nil
}

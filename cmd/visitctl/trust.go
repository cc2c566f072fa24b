package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bizmatters/field-sales/visit-guard/internal/trust"
)

var trustBlockedOnly bool

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Inspect agent trust scores",
}

var trustShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show one agent's trust score and block status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return trustShowRun(cmd.Context(), args[0])
	},
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents by ascending trust score",
	RunE: func(cmd *cobra.Command, args []string) error {
		return trustListRun(cmd.Context())
	},
}

func init() {
	trustListCmd.Flags().BoolVar(&trustBlockedOnly, "blocked", false, "Only list blocked agents")
	trustCmd.AddCommand(trustShowCmd)
	trustCmd.AddCommand(trustListCmd)
	rootCmd.AddCommand(trustCmd)
}

func withBackend(ctx context.Context, fn func(trustBackend) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	backend, closeFn, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(backend)
}

func trustShowRun(ctx context.Context, agentID string) error {
	return withBackend(ctx, func(b trustBackend) error {
		st := trust.NewStore(b, nil, nil).Status(ctx, agentID)
		fmt.Fprintf(out, "  %-12s %s\n", "Agent", cyan(st.AgentID))
		fmt.Fprintf(out, "  %-12s %s\n", "Trust score", scoreColor(st.Score))
		if st.Blocked {
			fmt.Fprintf(out, "  %-12s %s\n", "Status", red("blocked"))
			fmt.Fprintf(out, "  %-12s %s\n", "Message", st.Message)
		} else {
			fmt.Fprintf(out, "  %-12s %s\n", "Status", green("active"))
		}
		return nil
	})
}

func trustListRun(ctx context.Context) error {
	return withBackend(ctx, func(b trustBackend) error {
		records, err := b.ListTrust(ctx)
		if err != nil {
			return fmt.Errorf("failed to list trust scores: %w", err)
		}

		table := newTable([]string{"Agent", "Score", "Status"})
		rows := 0
		for _, r := range records {
			blocked := trust.IsBlocked(r.TrustScore)
			if trustBlockedOnly && !blocked {
				continue
			}
			status := green("active")
			if blocked {
				status = red("blocked")
			}
			table.Append([]string{cyan(r.AgentID), scoreColor(r.TrustScore), status})
			rows++
		}
		if rows == 0 {
			info("No agents found")
			return nil
		}
		return table.Render()
	})
}

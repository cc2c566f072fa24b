package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bizmatters/field-sales/visit-guard/internal/auth"
)

var (
	tokenRoles []string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <agent-id>",
	Short: "Issue a signed API token for local testing",
	Long: `Issue a JWT signed with auth.jwt_secret. Use --role supervisor for
tokens that may open the live position feed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tokenRun(cmd.Context(), args[0])
	},
}

func init() {
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", nil, "Role to grant (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func tokenRun(ctx context.Context, agentID string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	jm, err := auth.NewJWTManager(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	token, err := jm.GenerateToken(ctx, agentID, tokenRoles, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

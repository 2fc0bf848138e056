package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/posrecon/internal/auth"
	"github.com/mmynk/posrecon/internal/config"
)

func newTokenCmd(g *globals) *cobra.Command {
	var (
		branchID string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the API",
		Long: `Sign a bearer token with JWT_SECRET for the operator given by
--operator, scoped to --company and --branch.

Example:
  reconctl token --operator alice --company c1 --ttl 8h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.envFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := auth.NewJWTManager(cfg.JWTSecret, ttl).Generate(g.operator, g.companyID, branchID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&branchID, "branch", "", "branch scope")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

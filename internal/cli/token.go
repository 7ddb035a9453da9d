package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"clinicagenda/internal/auth"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage staff session tokens",
	}

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Mint a signed session token",
		Long: `Mint an HS256 session token signed with auth.jwt_secret. Send it as the
"token" cookie or an "Authorization: Bearer" header.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}

			token, err := auth.NewTokens(cfg.JWTSecret, ttl).Issue(subject, email)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().String("subject", "", "staff user id")
	issue.Flags().String("email", "", "staff email")
	issue.Flags().Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}

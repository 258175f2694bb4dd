// Command devtoken mints a bearer token for an existing user. Accounts are
// provisioned outside this service, so this is how local setups get a token.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

func main() {
	var (
		userID string
		role   string
		ttl    int
	)

	rootCmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint a signed access token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			userRole := domain.UserRole(role)
			if !userRole.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				ttl = cfg.Auth.AccessTokenTTLMinutes
			}
			token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl).GenerateToken(userID, userRole)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
	rootCmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	rootCmd.Flags().StringVar(&role, "role", string(domain.RoleAgent), "role claim: admin, agent or user")
	rootCmd.Flags().IntVar(&ttl, "ttl", 0, "lifetime in minutes (defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	_ = rootCmd.MarkFlagRequired("user")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/athena-ops/athena-stack/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Access token management",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a bearer token for the API",
	Long:  "Signs a new JWT with the configured secret. The service must share the same auth.jwt_secret.",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		roles, _ := cmd.Flags().GetStringSlice("roles")

		if subject == "" {
			return fmt.Errorf("token subject is required")
		}
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not configured")
		}

		tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
		token, err := tm.Generate(subject, roles)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}

		fmt.Println(token)
		fmt.Fprintln(cmd.ErrOrStderr(), "\nUse with:")
		fmt.Fprintf(cmd.ErrOrStderr(), "  curl -H 'Authorization: Bearer %s' ...\n", token)
		return nil
	},
}

func init() {
	tokenCreateCmd.Flags().String("subject", "", "subject to embed in the token")
	tokenCreateCmd.Flags().StringSlice("roles", []string{"analyst"}, "roles to embed in the token")
	tokenCmd.AddCommand(tokenCreateCmd)
	rootCmd.AddCommand(tokenCmd)
}

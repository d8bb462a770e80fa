package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
)

// NewTokenCmd prints a signed identity token for manual testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an identity token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("jwt secret not configured")
			}
			tokens := auth.NewTokenService(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
			token, err := tokens.Generate(userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed")
	cmd.Flags().StringVar(&name, "name", "", "display name to embed")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

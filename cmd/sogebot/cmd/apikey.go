package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AnotherFoxGuy/sogeBot/internal/core/auth"
	"github.com/AnotherFoxGuy/sogeBot/internal/core/config"
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage admin API keys",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Issue a new API key; the plaintext is printed once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, err := config.HMACSecrets()
		if err != nil {
			return fmt.Errorf("failed to load HMAC secrets: %w", err)
		}
		if len(secrets) == 0 {
			return fmt.Errorf("no HMAC secrets configured (set SB_HMAC_SECRET environment variable)")
		}
		secretID, _ := cmd.Flags().GetString("secret-id")
		if secretID == "" {
			secretID = firstSecretID(secrets)
		}
		secret, ok := secrets[secretID]
		if !ok {
			return fmt.Errorf("unknown HMAC secret id %q", secretID)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		queries, closeDB, err := openQueries(cfg)
		if err != nil {
			return err
		}
		defer closeDB()

		key, plaintext, err := auth.Issue(queries, secretID, secret, args[0])
		if err != nil {
			return fmt.Errorf("failed to issue API key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "id:  %s\nkey: %s\n", key.ID, plaintext)
		return nil
	},
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		queries, closeDB, err := openQueries(cfg)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := auth.Revoke(queries, args[0]); err != nil {
			return fmt.Errorf("failed to revoke API key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyCreateCmd, apiKeyRevokeCmd)
	apiKeyCreateCmd.Flags().String("secret-id", "", "HMAC secret id to sign with (defaults to the lowest id)")
}

func firstSecretID(secrets map[string][]byte) string {
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[0]
}

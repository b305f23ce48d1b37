package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-mcp/conduit/internal/domain/apikey"
)

var useArgon2id bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [credential]",
	Short: "Hash a credential for use in config",
	Long: `Hash a credential for the auth.api_keys.key_hash or
security.server_token fields.

The default output is "sha256:<hex>". With --argon2id the output is an
Argon2id PHC string, which resists offline brute force if the config file
leaks, at the cost of slower verification.

Example:
  conduit hash-key "my-secret-key"
  # Output: sha256:7d5e8c...

Security note: the credential will appear in shell history.
Consider clearing history after use or using an environment variable:
  conduit hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if useArgon2id {
			hash, err := apikey.HashArgon2id(key)
			if err != nil {
				return fmt.Errorf("failed to hash credential: %w", err)
			}
			fmt.Println(hash)
			return nil
		}
		fmt.Println(apikey.Hash(key))
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&useArgon2id, "argon2id", false, "Produce an Argon2id hash instead of SHA256")
	rootCmd.AddCommand(hashKeyCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mapwarden/mapwarden/internal/domain/account"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Generate an Argon2id hash for a password or passphrase",
	Long: `Generate an Argon2id hash of a password for use in config.

The output is a PHC-format string that can be used directly in the
auth.passphrase_hash or auth.admins.password_hash fields.

Example:
  mapwarden hash-password "the shared passphrase"
  # Output: $argon2id$v=19$m=65536,t=1,p=...

Security note: The password will appear in shell history.
Consider clearing history after use or using an environment variable:
  mapwarden hash-password "$MAP_PASSPHRASE"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := account.HashPassword(args[0])
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

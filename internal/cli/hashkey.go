package cli

import (
	"fmt"

	"github.com/raphaelgruber/triggerexport/internal/hashkey"
	"github.com/spf13/cobra"
)

var hashKeyIdentity hashkey.Identity

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Print the hashed output path segment of a subscriber",
	Long: `Print the PBKDF2-HMAC-SHA512 path segment exports for a subscriber
and receiver are written under.

Examples:
  triggerexport hash-key --salt pepper --ordinal 3 --subscriber acme --receiver soc@acme.example`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), hashkey.Derive(hashKeyIdentity))
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().StringVar(&hashKeyIdentity.Salt, "salt", "", "salt")
	hashKeyCmd.Flags().IntVar(&hashKeyIdentity.Ordinal, "ordinal", 0, "ordinal appended to the salt")
	hashKeyCmd.Flags().StringVar(&hashKeyIdentity.Subscriber, "subscriber", "", "subscriber name")
	hashKeyCmd.Flags().StringVar(&hashKeyIdentity.Receiver, "receiver", "", "receiver name")
	_ = hashKeyCmd.MarkFlagRequired("salt")
	_ = hashKeyCmd.MarkFlagRequired("subscriber")
	_ = hashKeyCmd.MarkFlagRequired("receiver")
}

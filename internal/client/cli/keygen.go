package cli

import (
	"fmt"

	"github.com/dmitrijs2005/umasend/internal/cryptox"
	"github.com/spf13/cobra"
)

func (a *app) keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate signing and encryption keys for the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, name := range []string{"UMA_SIGNING", "UMA_ENCRYPTION"} {
				key, err := cryptox.GenerateKeyPair()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s_PRIVKEY=%s\n", name, cryptox.PrivateKeyHex(key))
				fmt.Fprintf(out, "%s_PUBKEY=%s\n", name, cryptox.PublicKeyHex(&key.PublicKey))
			}
			return nil
		},
	}
}

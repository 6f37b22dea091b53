package cli

import (
	"fmt"

	"github.com/dmitrijs2005/umasend/internal/common"
	"github.com/spf13/cobra"
)

func (a *app) loginCmd() *cobra.Command {
	var userName string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange username and password for an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			if userName == "" {
				name, err := GetSimpleText(a.reader, "Username", out)
				if err != nil {
					return err
				}
				userName = name
			}

			password, err := GetPassword(out)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(password)

			token, err := a.client().Login(cmd.Context(), userName, string(password))
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			fmt.Fprintln(out, token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userName, "user", "u", "", "username (prompted when empty)")
	return cmd
}

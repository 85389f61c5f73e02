package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/wallet"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <address>...",
		Short: "Check XRPL classic address syntax",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invalid := 0
			for _, a := range args {
				ok := wallet.IsValidAddress(a)
				if !ok {
					invalid++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", a, ok)
			}
			if invalid > 0 {
				return fmt.Errorf("%d invalid address(es)", invalid)
			}
			return nil
		},
	}
}

package commands

import (
	"context"

	"github.com/spf13/cobra"

	nftdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/nft"
)

func nftsCmd() *cobra.Command {
	var issuer string

	cmd := &cobra.Command{
		Use:   "nfts <account>",
		Short: "List the NFTs an XRPL account holds, with resolved metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			tokens, err := tokenLister().ListTokens(ctx, args[0])
			if err != nil {
				return err
			}
			if issuer != "" {
				tokens = nftdom.FilterByIssuer(tokens, issuer)
			}
			if tokens == nil {
				tokens = []nftdom.Token{}
			}
			return printJSON(cmd.OutOrStdout(), tokens)
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "", "only keep tokens minted by this issuer")
	return cmd
}

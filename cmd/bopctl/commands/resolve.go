package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <uri>",
		Short: "Resolve an NFT URI field (hex or plain) to {image, name}",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			md := metadataResolver().Resolve(ctx, args[0])
			return printJSON(cmd.OutOrStdout(), md)
		},
	}
}

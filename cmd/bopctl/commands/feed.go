package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/usecase"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/config"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/platform/di"
)

func feedCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the live registration list of the configured store (STORE_DRIVER etc.)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := di.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if once {
				items, err := store.ListAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			}

			out := cmd.OutOrStdout()
			return usecase.NewRegistrationSynchronizer(store).Run(ctx, func(u usecase.SyncUpdate) {
				switch {
				case u.Event != nil:
					fmt.Fprintf(out, "%s\t%s\t%s\t(%d total)\n", u.Kind, u.Event.Record.WalletAddress, u.Event.Record.ProjectName, len(u.Items))
				default:
					fmt.Fprintf(out, "%s\t%d registration(s)\n", u.Kind, len(u.Items))
				}
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "print the current list as JSON and exit")
	return cmd
}

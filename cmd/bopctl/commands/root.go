package commands

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpout "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/http"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/resolver"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/usecase"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/xrpl"
)

var (
	rpcEndpoint string
	ipfsGateway string
	timeout     time.Duration
)

// Execute runs the bopctl root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bopctl",
		Short:        "Board of Peace registry tooling (XRPL NFTs, metadata, registrations)",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&rpcEndpoint, "rpc", "https://xrplcluster.com/", "XRPL JSON-RPC endpoint")
	root.PersistentFlags().StringVar(&ipfsGateway, "gateway", resolver.DefaultIPFSGateway, "IPFS HTTP gateway")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout for network commands")

	root.AddCommand(validateCmd(), resolveCmd(), nftsCmd(), feedCmd())
	return root
}

func metadataResolver() *resolver.MetadataResolver {
	fetcher := httpout.NewMetadataFetcher(&http.Client{Timeout: 10 * time.Second})
	return resolver.NewMetadataResolver(fetcher, ipfsGateway)
}

func tokenLister() *usecase.TokenListUsecase {
	return usecase.NewTokenListUsecase(xrpl.NewLedgerReader(rpcEndpoint), metadataResolver())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package xrpl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
	nftdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/nft"
)

// LedgerReaderImpl implements usecase.LedgerClient:
//
//	AccountNFTs(ctx, account) ([]nft.LedgerRecord, error)
//
// rippled のエラーはここで domain エラーに翻訳する:
//   - actNotFound        → nft.ErrWalletNotFound
//   - それ以外の result.error → *nft.LedgerError（error_message をそのまま）
//   - 通信失敗            → nft.ErrLedgerUnavailable
type LedgerReaderImpl struct {
	Client *JSONRPCClient
}

// NewLedgerReader creates a reader against endpoint (empty = MainnetEndpoint).
func NewLedgerReader(endpoint string) *LedgerReaderImpl {
	return &LedgerReaderImpl{Client: NewJSONRPCClient(endpoint)}
}

func (r *LedgerReaderImpl) AccountNFTs(ctx context.Context, account string) ([]nftdom.LedgerRecord, error) {
	if r == nil || r.Client == nil {
		return nil, fmt.Errorf("xrpl ledger reader: client not configured")
	}

	raw, err := r.Client.AccountNFTs(ctx, account)
	if err != nil {
		return nil, translateError(err)
	}

	out := make([]nftdom.LedgerRecord, 0, len(raw))
	for _, n := range raw {
		id := strings.TrimSpace(n.NFTokenID)
		if id == "" {
			continue
		}
		out = append(out, nftdom.LedgerRecord{
			TokenID: id,
			Issuer:  strings.TrimSpace(n.Issuer),
			Taxon:   n.NFTokenTaxon,
			Serial:  n.NFTSerial,
			URI:     strings.TrimSpace(n.URI),
		})
	}
	return out, nil
}

func translateError(err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == ErrCodeAccountNotFound {
			return nftdom.ErrWalletNotFound
		}
		return &nftdom.LedgerError{Code: rpcErr.Code, Message: rpcErr.Message}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return common.Wrap(nftdom.ErrLedgerUnavailable, err)
}

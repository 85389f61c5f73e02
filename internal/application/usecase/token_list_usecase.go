// internal/application/usecase/token_list_usecase.go
package usecase

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
	nftdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/nft"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/wallet"
)

// ✅ usecase が必要とする IF をここで定義する
type LedgerClient interface {
	// AccountNFTs returns one bounded page at the latest validated ledger, in ledger order.
	// Errors are already domain-classified (nft.ErrWalletNotFound, *nft.LedgerError, nft.ErrLedgerUnavailable).
	AccountNFTs(ctx context.Context, account string) ([]nftdom.LedgerRecord, error)
}

// MetadataResolver never fails; nil means "nothing resolved".
type MetadataResolver interface {
	Resolve(ctx context.Context, descriptor string) *nftdom.Metadata
}

// defaultResolveConcurrency bounds in-flight metadata fetches per listing.
const defaultResolveConcurrency = 16

// TokenListUsecase lists the NFTs held by an account with resolved metadata.
type TokenListUsecase struct {
	Ledger      LedgerClient
	Resolver    MetadataResolver
	Concurrency int
}

func NewTokenListUsecase(ledger LedgerClient, resolver MetadataResolver) *TokenListUsecase {
	return &TokenListUsecase{
		Ledger:      ledger,
		Resolver:    resolver,
		Concurrency: defaultResolveConcurrency,
	}
}

// ListTokens validates account, queries the ledger once and resolves every token's
// metadata concurrently. Result order = ledger order. Per-token metadata failures
// never fail the listing.
func (uc *TokenListUsecase) ListTokens(ctx context.Context, account string) ([]nftdom.Token, error) {
	if uc == nil || uc.Ledger == nil {
		return nil, errors.New("token list usecase: ledger not configured")
	}

	addr, err := wallet.NormalizeAddress(account)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("bop/usecase").Start(ctx, "TokenListUsecase.ListTokens")
	defer span.End()
	span.SetAttributes(attribute.String("xrpl.account", addr))

	records, err := uc.Ledger.AccountNFTs(ctx, addr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, classifyLedgerError(err)
	}

	tokens := make([]nftdom.Token, len(records))
	g, gctx := errgroup.WithContext(ctx)
	if uc.Concurrency > 0 {
		g.SetLimit(uc.Concurrency)
	}
	for i, rec := range records {
		g.Go(func() error {
			tokens[i] = uc.buildToken(gctx, rec)
			return nil
		})
	}
	_ = g.Wait() // buildToken は失敗しない

	span.SetAttributes(attribute.Int("nft.count", len(tokens)))
	return tokens, nil
}

func (uc *TokenListUsecase) buildToken(ctx context.Context, rec nftdom.LedgerRecord) nftdom.Token {
	t := nftdom.Token{
		TokenID: rec.TokenID,
		Issuer:  rec.Issuer,
		Taxon:   rec.Taxon,
		Serial:  rec.Serial,
	}

	var md *nftdom.Metadata
	if uc.Resolver != nil {
		md = uc.Resolver.Resolve(ctx, rec.URI)
	}
	if md != nil {
		t.ImageURL = md.Image
		t.Name = md.Name
	}
	if t.Name == nil || strings.TrimSpace(*t.Name) == "" {
		t.Name = nftdom.StrPtr(nftdom.FallbackName(rec.Serial))
	}
	return t
}

// 分類済みのエラーはそのまま、未分類はネットワーク系とみなす
func classifyLedgerError(err error) error {
	var le *nftdom.LedgerError
	if errors.As(err, &le) {
		return err
	}
	if _, ok := common.KindOf(err); ok {
		return err
	}
	return common.Wrap(nftdom.ErrLedgerUnavailable, err)
}

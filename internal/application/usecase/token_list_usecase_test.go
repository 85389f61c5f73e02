package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
	nftdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/nft"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/wallet"
)

const (
	testAccount = "rN7n7otQDd6FczFgLdSqtcsAUxDkw6fzQS"
	bopIssuer   = "rBoardOfPeaceIssuer1111111111111"
)

type fakeLedger struct {
	mu      sync.Mutex
	records map[string][]nftdom.LedgerRecord
	err     error
	calls   int
	block   chan struct{}
}

func (f *fakeLedger) AccountNFTs(ctx context.Context, account string) ([]nftdom.LedgerRecord, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records[account], nil
}

// mapResolver returns canned metadata keyed by descriptor, with an optional delay
// that is larger for earlier tokens (so completion order differs from ledger order).
type mapResolver struct {
	md       map[string]*nftdom.Metadata
	delay    map[string]time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (r *mapResolver) Resolve(_ context.Context, descriptor string) *nftdom.Metadata {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if d := r.delay[descriptor]; d > 0 {
		time.Sleep(d)
	}
	return r.md[descriptor]
}

func sp(s string) *string { return &s }

func TestListTokensKeepsLedgerOrderAndSynthesizesNames(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ledger := &fakeLedger{records: map[string][]nftdom.LedgerRecord{
		testAccount: {
			{TokenID: "T1", Issuer: bopIssuer, Serial: 11, URI: "slow"},
			{TokenID: "T2", Issuer: "rOther", Serial: 12, URI: "named"},
			{TokenID: "T3", Issuer: bopIssuer, Serial: 13},
		},
	}}
	res := &mapResolver{
		md: map[string]*nftdom.Metadata{
			"slow":  {Image: sp("https://cdn/1.png")},
			"named": {Image: sp("https://cdn/2.png"), Name: sp("Dove")},
		},
		delay: map[string]time.Duration{"slow": 30 * time.Millisecond},
	}
	uc := NewTokenListUsecase(ledger, res)

	// --- Act ---
	tokens, err := uc.ListTokens(context.Background(), "  "+testAccount+" ")

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	require.Equal(t, []string{"T1", "T2", "T3"}, []string{tokens[0].TokenID, tokens[1].TokenID, tokens[2].TokenID})

	require.Equal(t, "https://cdn/1.png", *tokens[0].ImageURL)
	require.Equal(t, "NFT #11", *tokens[0].Name)
	require.Equal(t, "Dove", *tokens[1].Name)
	require.Nil(t, tokens[2].ImageURL)
	require.Equal(t, "NFT #13", *tokens[2].Name)
	require.Equal(t, bopIssuer, tokens[2].Issuer)
}

func TestListTokensResolvesConcurrently(t *testing.T) {
	t.Parallel()

	recs := make([]nftdom.LedgerRecord, 8)
	delay := map[string]time.Duration{}
	for i := range recs {
		uri := string(rune('a' + i))
		recs[i] = nftdom.LedgerRecord{TokenID: uri, URI: uri}
		delay[uri] = 20 * time.Millisecond
	}
	res := &mapResolver{delay: delay}
	uc := NewTokenListUsecase(&fakeLedger{records: map[string][]nftdom.LedgerRecord{testAccount: recs}}, res)

	tokens, err := uc.ListTokens(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, tokens, 8)
	require.Greater(t, res.maxSeen.Load(), int32(1))
}

func TestListTokensValidatesBeforeCallingLedger(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{}
	_, err := NewTokenListUsecase(ledger, nil).ListTokens(context.Background(), "abc")
	require.ErrorIs(t, err, wallet.ErrInvalidAddress)
	require.ErrorIs(t, err, common.ErrValidation)
	require.Zero(t, ledger.calls)
}

func TestListTokensErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		ledgerEr error
		check    func(t *testing.T, err error)
	}{
		{"account not found", nftdom.ErrWalletNotFound, func(t *testing.T, err error) {
			require.ErrorIs(t, err, nftdom.ErrWalletNotFound)
			require.ErrorIs(t, err, common.ErrNotFound)
		}},
		{"ledger message surfaces verbatim", &nftdom.LedgerError{Code: "tooBusy", Message: "The server is too busy to help you now."}, func(t *testing.T, err error) {
			var le *nftdom.LedgerError
			require.ErrorAs(t, err, &le)
			require.Equal(t, "The server is too busy to help you now.", err.Error())
		}},
		{"unclassified becomes transient", errors.New("connection reset by peer"), func(t *testing.T, err error) {
			require.ErrorIs(t, err, nftdom.ErrLedgerUnavailable)
			require.ErrorIs(t, err, common.ErrTransient)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewTokenListUsecase(&fakeLedger{err: tc.ledgerEr}, nil).ListTokens(context.Background(), testAccount)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

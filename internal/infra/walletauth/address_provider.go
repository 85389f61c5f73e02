// internal/infra/walletauth/address_provider.go
package walletauth

import (
	"context"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/wallet"
)

// AddressProvider trusts the address typed by the visitor (no signature).
// Ownership is still checked against the ledger by the token listing.
type AddressProvider struct{}

func NewAddressProvider() *AddressProvider { return &AddressProvider{} }

func (p *AddressProvider) Ready(ctx context.Context) error { return nil }

func (p *AddressProvider) Authorize(ctx context.Context, req wallet.AuthRequest) (wallet.Authorization, error) {
	addr, err := wallet.NormalizeAddress(req.Address)
	if err != nil {
		return wallet.Authorization{}, err
	}
	return wallet.Authorization{Account: addr}, nil
}

func (p *AddressProvider) Logout(ctx context.Context, ref string) error { return nil }

// DisabledProvider is wired when the configured provider cannot be used
// (e.g. XAMAN_API_KEY missing). Every call reports ErrProviderNotReady.
type DisabledProvider struct {
	Reason string
}

func (p *DisabledProvider) Ready(ctx context.Context) error { return wallet.ErrProviderNotReady }

func (p *DisabledProvider) Authorize(ctx context.Context, req wallet.AuthRequest) (wallet.Authorization, error) {
	return wallet.Authorization{}, wallet.ErrProviderNotReady
}

func (p *DisabledProvider) Logout(ctx context.Context, ref string) error { return nil }

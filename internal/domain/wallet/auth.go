package wallet

import "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"

// Authorization provider outcomes.
var (
	ErrProviderNotReady      = common.Transient("Wallet connection is not available right now, please try again later")
	ErrAuthorizationRejected = common.Validation("Wallet sign-in was rejected")
	ErrAuthorizationExpired  = common.Validation("Wallet sign-in request expired")
)

// AuthRequest is what a session hands to the authorization provider.
type AuthRequest struct {
	// Address is the visitor-typed address (address provider only).
	Address string
	// OnPending is called at most once with the URL the visitor must open to approve
	// the sign-in, and the provider reference needed to cancel it.
	OnPending func(url, ref string)
}

// Authorization is a successful sign-in.
type Authorization struct {
	Account string
	// Ref identifies the provider-side sign-in (used by Logout). May be empty.
	Ref string
}

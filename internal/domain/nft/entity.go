// internal/domain/nft/entity.go
package nft

import (
	"fmt"
	"strings"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
)

// Errors surfaced by the token listing.
var (
	ErrWalletNotFound    = common.NotFound("Wallet address not found on XRPL or has no NFTs")
	ErrLedgerUnavailable = common.Transient("Failed to reach the XRP Ledger, please try again")
)

// LedgerError carries the ledger's own error code/message (non-actNotFound failures).
type LedgerError struct {
	Code    string
	Message string
}

func (e *LedgerError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return "Failed to fetch NFTs"
}

// Token is one NFT held by an account, normalized for display.
// ImageURL / Name are nil when nothing could be resolved.
type Token struct {
	TokenID  string  `json:"tokenId"`
	Issuer   string  `json:"issuer"`
	Taxon    uint32  `json:"taxon"`
	Serial   uint32  `json:"serial"`
	ImageURL *string `json:"imageUrl"`
	Name     *string `json:"name"`
}

// Metadata is the normalized {image, name} pair produced by the metadata resolver.
type Metadata struct {
	Image *string `json:"image"`
	Name  *string `json:"name"`
}

// FallbackName is the synthesized label used when metadata yields no name.
func FallbackName(serial uint32) string {
	return fmt.Sprintf("NFT #%d", serial)
}

// FilterByIssuer keeps tokens created by issuer. An empty issuer keeps everything.
func FilterByIssuer(tokens []Token, issuer string) []Token {
	iss := strings.TrimSpace(issuer)
	if iss == "" {
		out := make([]Token, len(tokens))
		copy(out, tokens)
		return out
	}
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Issuer == iss {
			out = append(out, t)
		}
	}
	return out
}

// Contains reports whether tokens has an element with tokenID.
func Contains(tokens []Token, tokenID string) (Token, bool) {
	for _, t := range tokens {
		if t.TokenID == tokenID {
			return t, true
		}
	}
	return Token{}, false
}

// StrPtr returns nil for blank strings.
func StrPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	v := s
	return &v
}

// LedgerRecord is one raw account_nfts entry, before metadata resolution.
type LedgerRecord struct {
	TokenID string
	Issuer  string
	Taxon   uint32
	Serial  uint32
	// URI is the on-ledger descriptor (usually hex-encoded); may be empty.
	URI string
}

// internal/domain/wallet/entity.go
package wallet

import (
	"regexp"
	"strings"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
)

// Domain errors
var (
	ErrInvalidAddress = common.Validation("Invalid XRP wallet address format")
)

// XRPL classic address: 先頭 'r' + base58 (0, O, I, l を除外) 24..34 文字
var classicAddressRe = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)

// IsValidAddress reports whether s has the shape of an XRPL classic account address.
// Pure shape check: no checksum decoding and no network access.
func IsValidAddress(s string) bool {
	return classicAddressRe.MatchString(s)
}

// NormalizeAddress trims surrounding whitespace and validates the result.
func NormalizeAddress(s string) (string, error) {
	addr := strings.TrimSpace(s)
	if !IsValidAddress(addr) {
		return "", ErrInvalidAddress
	}
	return addr, nil
}

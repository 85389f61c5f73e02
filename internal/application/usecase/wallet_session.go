// internal/application/usecase/wallet_session.go
package usecase

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
	nftdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/nft"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/wallet"
)

// WalletAuthorizer is the authorization provider port (Xaman / typed address).
//   - Ready must be idempotent and cheap after the first success.
//   - Logout is best-effort; its error is only logged.
type WalletAuthorizer interface {
	Ready(ctx context.Context) error
	Authorize(ctx context.Context, req wallet.AuthRequest) (wallet.Authorization, error)
	Logout(ctx context.Context, ref string) error
}

// TokenLister is the part of TokenListUsecase a session needs.
type TokenLister interface {
	ListTokens(ctx context.Context, account string) ([]nftdom.Token, error)
}

// NoMatchMessage is shown when the wallet holds no token of the collection.
const NoMatchMessage = "No Board of Peace NFTs found in this wallet. You need to hold a BOP NFT to register."

const genericVerifyMessage = "Failed to verify wallet"

// ErrConnectInFlight: Connect was called while a verification is still running.
var ErrConnectInFlight = common.Conflict("Wallet verification already in progress")

// ErrConnectSuperseded: the session was reset while the provider was being checked.
var ErrConnectSuperseded = common.Conflict("Wallet session was reset; please connect again")

type SessionState string

const (
	StateIdle                SessionState = "idle"
	StateConnecting          SessionState = "connecting"
	StateConnectedNoMatch    SessionState = "connected_no_match"
	StateConnectedWithTokens SessionState = "connected_with_tokens"
	StateError               SessionState = "error"
)

// sessionData is the complete observable state of one session.
type sessionData struct {
	State      SessionState
	Account    string
	Tokens     []nftdom.Token
	Selected   *nftdom.Token
	ErrMsg     string
	PendingURL string
	AuthRef    string
	Submitted  bool
}

func idleData() sessionData { return sessionData{State: StateIdle} }

// ---- events --------------------------------------------------------------

type sessionEvent interface{ isSessionEvent() }

type (
	evConnectStarted struct{}
	evPending        struct{ URL, Ref string }
	evAuthorized     struct{ Account, Ref string }
	evListed         struct{ Tokens []nftdom.Token }
	evFailed         struct{ Msg string }
	evSelected       struct{ TokenID string }
	evDisconnected   struct{}
	evSubmitted      struct{}
)

func (evConnectStarted) isSessionEvent() {}
func (evPending) isSessionEvent()        {}
func (evAuthorized) isSessionEvent()     {}
func (evListed) isSessionEvent()         {}
func (evFailed) isSessionEvent()         {}
func (evSelected) isSessionEvent()       {}
func (evDisconnected) isSessionEvent()   {}
func (evSubmitted) isSessionEvent()      {}

// transition is the pure state function of a wallet session.
// Events that make no sense in the current state leave it unchanged.
func transition(d sessionData, ev sessionEvent) sessionData {
	switch e := ev.(type) {
	case evConnectStarted:
		// 前回の結果は捨てる。送信済みフラグは Disconnect までリセットしない
		return sessionData{State: StateConnecting, Submitted: d.Submitted}

	case evPending:
		if d.State != StateConnecting {
			return d
		}
		d.PendingURL = e.URL
		d.AuthRef = e.Ref
		return d

	case evAuthorized:
		if d.State != StateConnecting {
			return d
		}
		d.Account = e.Account
		if e.Ref != "" {
			d.AuthRef = e.Ref
		}
		d.PendingURL = ""
		return d

	case evListed:
		if d.State != StateConnecting || d.Account == "" {
			return d
		}
		d.PendingURL = ""
		if len(e.Tokens) == 0 {
			d.State = StateConnectedNoMatch
			d.Tokens = []nftdom.Token{}
			d.ErrMsg = NoMatchMessage
			return d
		}
		d.State = StateConnectedWithTokens
		d.Tokens = append([]nftdom.Token(nil), e.Tokens...)
		d.ErrMsg = ""
		return d

	case evFailed:
		d.State = StateError
		d.Tokens = nil
		d.Selected = nil
		d.PendingURL = ""
		d.ErrMsg = e.Msg
		return d

	case evSelected:
		if d.State != StateConnectedWithTokens || d.Submitted {
			return d
		}
		t, ok := nftdom.Contains(d.Tokens, e.TokenID)
		if !ok {
			return d
		}
		d.Selected = &t
		return d

	case evDisconnected:
		return idleData()

	case evSubmitted:
		if d.State != StateConnectedWithTokens || d.Selected == nil {
			return d
		}
		d.Submitted = true
		return d
	}
	return d
}

// ---- view ----------------------------------------------------------------

// SessionView is the read model exposed to the HTTP surface.
type SessionView struct {
	ID         string         `json:"id"`
	State      SessionState   `json:"state"`
	Connecting bool           `json:"isConnecting"`
	Connected  bool           `json:"isConnected"`
	Account    *string        `json:"walletAddress"`
	Tokens     []nftdom.Token `json:"nfts"`
	Selected   *nftdom.Token  `json:"selectedNft"`
	Error      *string        `json:"error"`
	PendingURL *string        `json:"pendingUrl,omitempty"`
	Submitted  bool           `json:"submitted"`
}

func viewOf(id string, d sessionData) SessionView {
	v := SessionView{
		ID:         id,
		State:      d.State,
		Connecting: d.State == StateConnecting,
		Connected:  d.State == StateConnectedNoMatch || d.State == StateConnectedWithTokens,
		Account:    nftdom.StrPtr(d.Account),
		Tokens:     append([]nftdom.Token{}, d.Tokens...),
		Error:      nftdom.StrPtr(d.ErrMsg),
		PendingURL: nftdom.StrPtr(d.PendingURL),
		Submitted:  d.Submitted,
	}
	if d.Selected != nil {
		sel := *d.Selected
		v.Selected = &sel
	}
	return v
}

// ---- session -------------------------------------------------------------

// WalletSession is the single mutable owner of one visitor's verification state.
//
// Connect results are tagged with the generation current when they started;
// Disconnect bumps the generation so a late result is dropped instead of
// resurrecting a reset session.
type WalletSession struct {
	id     string
	auth   WalletAuthorizer
	lister TokenLister
	issuer string

	mu   sync.Mutex
	data sessionData
	gen  uint64
}

// NewWalletSession creates an Idle session. issuer "" disables the collection filter.
func NewWalletSession(id string, auth WalletAuthorizer, lister TokenLister, issuer string) *WalletSession {
	return &WalletSession{
		id:     id,
		auth:   auth,
		lister: lister,
		issuer: strings.TrimSpace(issuer),
		data:   idleData(),
		gen:    1, // 0 は apply で無条件扱い
	}
}

func (s *WalletSession) ID() string { return s.id }

func (s *WalletSession) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return viewOf(s.id, s.data)
}

// apply runs transition under the lock. gen=0 applies unconditionally;
// otherwise the event is dropped when the session moved on.
func (s *WalletSession) apply(gen uint64, ev sessionEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != 0 && gen != s.gen {
		return false
	}
	s.data = transition(s.data, ev)
	return true
}

// begin moves the session to Connecting and returns the generation of the attempt.
// The readiness check may hit the network; a Disconnect while it is in flight
// wins and the attempt is abandoned with ErrConnectSuperseded.
func (s *WalletSession) begin(ctx context.Context) (uint64, error) {
	if s.auth == nil || s.lister == nil {
		return 0, errors.New("wallet session: not configured")
	}

	s.mu.Lock()
	if s.data.State == StateConnecting {
		s.mu.Unlock()
		return 0, ErrConnectInFlight
	}
	seen := s.gen
	s.mu.Unlock()

	if err := s.auth.Ready(ctx); err != nil {
		log.Printf("[session] connect refused id=%s: %v", s.id, err)
		if !s.apply(seen, evFailed{Msg: userMessage(err)}) {
			log.Printf("[session] late readiness failure discarded id=%s", s.id)
		}
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != seen {
		log.Printf("[session] connect abandoned after reset id=%s", s.id)
		return 0, ErrConnectSuperseded
	}
	if s.data.State == StateConnecting {
		return 0, ErrConnectInFlight
	}
	s.gen++
	s.data = transition(s.data, evConnectStarted{})
	return s.gen, nil
}

// run performs one verification attempt. The returned error is the failure that
// put the session into Error (nil when it reached a Connected state or was discarded).
func (s *WalletSession) run(ctx context.Context, gen uint64, address string) error {
	auth, err := s.auth.Authorize(ctx, wallet.AuthRequest{
		Address: address,
		OnPending: func(url, ref string) {
			s.apply(gen, evPending{URL: url, Ref: ref})
		},
	})
	if err != nil {
		return s.fail(gen, err)
	}
	if !s.apply(gen, evAuthorized{Account: auth.Account, Ref: auth.Ref}) {
		log.Printf("[session] late authorization discarded id=%s", s.id)
		return nil
	}

	tokens, err := s.lister.ListTokens(ctx, auth.Account)
	if err != nil {
		return s.fail(gen, err)
	}
	matched := nftdom.FilterByIssuer(tokens, s.issuer)
	if !s.apply(gen, evListed{Tokens: matched}) {
		log.Printf("[session] late token list discarded id=%s", s.id)
		return nil
	}
	log.Printf("[session] connected id=%s account=%s tokens=%d matched=%d", s.id, auth.Account, len(tokens), len(matched))
	return nil
}

func (s *WalletSession) fail(gen uint64, err error) error {
	log.Printf("[session] wallet verification error id=%s: %v", s.id, err)
	if !s.apply(gen, evFailed{Msg: userMessage(err)}) {
		return nil
	}
	return err
}

// Connect verifies the wallet synchronously and returns the resulting view.
// address is only used by the typed-address provider.
func (s *WalletSession) Connect(ctx context.Context, address string) (SessionView, error) {
	gen, err := s.begin(ctx)
	if err != nil {
		return s.View(), err
	}
	err = s.run(ctx, gen, address)
	return s.View(), err
}

// ConnectAsync starts verification in the background and returns once the
// session is Connecting. ctx must outlive the request (manager's base context).
func (s *WalletSession) ConnectAsync(ctx context.Context, address string) (SessionView, error) {
	gen, err := s.begin(ctx)
	if err != nil {
		return s.View(), err
	}
	go func() {
		_ = s.run(ctx, gen, address)
	}()
	return s.View(), nil
}

// SelectToken is a no-op unless the session has tokens and tokenID is one of them.
func (s *WalletSession) SelectToken(tokenID string) SessionView {
	s.apply(0, evSelected{TokenID: strings.TrimSpace(tokenID)})
	return s.View()
}

// Disconnect logs out (best-effort) and resets to Idle. It never fails.
func (s *WalletSession) Disconnect(ctx context.Context) SessionView {
	s.mu.Lock()
	ref := s.data.AuthRef
	s.mu.Unlock()

	if s.auth != nil {
		if err := s.auth.Logout(ctx, ref); err != nil {
			log.Printf("[session] WARN: logout failed id=%s: %v", s.id, err)
		}
	}

	s.mu.Lock()
	s.gen++
	s.data = transition(s.data, evDisconnected{})
	s.mu.Unlock()
	return s.View()
}

// verifiedSelection returns what a submission needs, or the precondition it violates.
func (s *WalletSession) verifiedSelection() (account string, token nftdom.Token, gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.data
	if d.Account == "" || (d.State != StateConnectedWithTokens && d.State != StateConnectedNoMatch) {
		return "", nftdom.Token{}, 0, regdom.ErrWalletNotVerified
	}
	// 送信済みは再接続後も Selected が空のままなので先に判定する
	if d.Submitted {
		return "", nftdom.Token{}, 0, regdom.ErrAlreadySubmitted
	}
	if d.Selected == nil {
		return "", nftdom.Token{}, 0, regdom.ErrTokenNotSelected
	}
	return d.Account, *d.Selected, s.gen, nil
}

func (s *WalletSession) markSubmitted(gen uint64) bool {
	return s.apply(gen, evSubmitted{})
}

// userMessage は画面に出せる文言を返す（分類済みエラーはそのまま）
func userMessage(err error) string {
	var le *nftdom.LedgerError
	if errors.As(err, &le) {
		return le.Error()
	}
	if _, ok := common.KindOf(err); ok {
		return err.Error()
	}
	return genericVerifyMessage
}

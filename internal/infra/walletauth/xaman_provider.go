// internal/infra/walletauth/xaman_provider.go
package walletauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/wallet"
)

// XamanAPIBase is the Xaman (formerly XUMM) platform API.
const XamanAPIBase = "https://xumm.app/api/v1/platform"

const (
	defaultPollInterval = 2 * time.Second
	// Xaman の SignIn payload は既定 5 分で失効する
	defaultSignInTTL = 5 * time.Minute
)

// XamanProvider signs visitors in with a Xaman SignIn payload:
//  1. POST /payload {txjson: {TransactionType: SignIn}}
//  2. visitor opens next.always (published via AuthRequest.OnPending)
//  3. GET /payload/{uuid} until meta.resolved
//  4. response.account is the signer
//
// The API credentials are checked once with GET /ping (Ready). A successful check
// is cached for the process lifetime; a failed one is retried on the next call.
type XamanProvider struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	HTTP         *http.Client
	PollInterval time.Duration
	SignInTTL    time.Duration

	readyMu sync.Mutex
	ready   bool
}

func NewXamanProvider(apiKey, apiSecret string) *XamanProvider {
	return &XamanProvider{
		BaseURL:      XamanAPIBase,
		APIKey:       strings.TrimSpace(apiKey),
		APISecret:    strings.TrimSpace(apiSecret),
		HTTP:         &http.Client{Timeout: 10 * time.Second},
		PollInterval: defaultPollInterval,
		SignInTTL:    defaultSignInTTL,
	}
}

// Ready is idempotent: at most one ping is in flight, and none after a success.
func (p *XamanProvider) Ready(ctx context.Context) error {
	if p == nil || p.APIKey == "" || p.APISecret == "" {
		return wallet.ErrProviderNotReady
	}
	p.readyMu.Lock()
	defer p.readyMu.Unlock()
	if p.ready {
		return nil
	}

	var out struct {
		Pong bool `json:"pong"`
	}
	if err := p.do(ctx, http.MethodGet, "/ping", nil, &out); err != nil {
		log.Printf("[xaman] WARN: readiness check failed: %v", err)
		return common.Wrap(wallet.ErrProviderNotReady, err)
	}
	if !out.Pong {
		log.Printf("[xaman] WARN: readiness check: pong=false")
		return wallet.ErrProviderNotReady
	}
	p.ready = true
	log.Printf("[xaman] provider ready")
	return nil
}

type payloadCreated struct {
	UUID string `json:"uuid"`
	Next struct {
		Always string `json:"always"`
	} `json:"next"`
}

type payloadStatus struct {
	Meta struct {
		Resolved  bool `json:"resolved"`
		Signed    bool `json:"signed"`
		Cancelled bool `json:"cancelled"`
		Expired   bool `json:"expired"`
	} `json:"meta"`
	Response struct {
		Account string `json:"account"`
	} `json:"response"`
}

func (p *XamanProvider) Authorize(ctx context.Context, req wallet.AuthRequest) (wallet.Authorization, error) {
	if err := p.Ready(ctx); err != nil {
		return wallet.Authorization{}, err
	}

	var created payloadCreated
	body := map[string]any{
		"txjson": map[string]any{"TransactionType": "SignIn"},
	}
	if err := p.do(ctx, http.MethodPost, "/payload", body, &created); err != nil {
		return wallet.Authorization{}, common.Wrap(wallet.ErrProviderNotReady, err)
	}
	uuid := strings.TrimSpace(created.UUID)
	if uuid == "" {
		return wallet.Authorization{}, fmt.Errorf("xaman: payload created without uuid")
	}
	if req.OnPending != nil {
		req.OnPending(created.Next.Always, uuid)
	}

	ttl := p.SignInTTL
	if ttl <= 0 {
		ttl = defaultSignInTTL
	}
	ctx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()

	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var st payloadStatus
		if err := p.do(ctx, http.MethodGet, "/payload/"+uuid, nil, &st); err != nil {
			if ctx.Err() != nil {
				return wallet.Authorization{}, wallet.ErrAuthorizationExpired
			}
			// 一時的な失敗はポーリングを続ける
			log.Printf("[xaman] WARN: poll payload=%s: %v", uuid, err)
		} else if st.Meta.Resolved || st.Meta.Cancelled || st.Meta.Expired {
			switch {
			case st.Meta.Expired:
				return wallet.Authorization{}, wallet.ErrAuthorizationExpired
			case !st.Meta.Signed || st.Meta.Cancelled:
				return wallet.Authorization{}, wallet.ErrAuthorizationRejected
			}
			acct, err := wallet.NormalizeAddress(st.Response.Account)
			if err != nil {
				return wallet.Authorization{}, fmt.Errorf("xaman: signed payload has invalid account %q: %w", st.Response.Account, err)
			}
			return wallet.Authorization{Account: acct, Ref: uuid}, nil
		}

		select {
		case <-ctx.Done():
			return wallet.Authorization{}, wallet.ErrAuthorizationExpired
		case <-ticker.C:
		}
	}
}

// Logout cancels an unresolved payload. Resolved payloads cannot be cancelled
// and the API answers with an error, which callers are expected to swallow.
func (p *XamanProvider) Logout(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if p == nil || ref == "" {
		return nil
	}
	return p.do(ctx, http.MethodDelete, "/payload/"+ref, nil, nil)
}

func (p *XamanProvider) do(ctx context.Context, method, path string, in any, out any) error {
	if p.HTTP == nil {
		return fmt.Errorf("xaman: http client not configured")
	}
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("xaman: marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.BaseURL, "/")+path, rd)
	if err != nil {
		return fmt.Errorf("xaman: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", p.APIKey)
	req.Header.Set("X-API-Secret", p.APISecret)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := p.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("xaman: http do: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		return fmt.Errorf("xaman: %s %s status=%d body=%s", method, path, res.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("xaman: decode response: %w", err)
	}
	return nil
}

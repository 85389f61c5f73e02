// internal/infra/xrpl/rpc_client.go
package xrpl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MainnetEndpoint is the public XRPL cluster (default).
const MainnetEndpoint = "https://xrplcluster.com/"

// AccountNFTsLimit is the single-page size used for account_nfts.
const AccountNFTsLimit = 100

// ErrCodeAccountNotFound is the rippled error code for an unknown account.
const ErrCodeAccountNotFound = "actNotFound"

// ErrTransport wraps every failure that happened before the ledger answered
// (dial, timeout, non-2xx, undecodable body).
var ErrTransport = errors.New("xrpl rpc: transport failure")

// RPCError is an error reported by the ledger node inside `result`.
type RPCError struct {
	Code    string // e.g. "actNotFound"
	Message string // error_message (may be empty)
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("xrpl rpc: %s: %s", e.Code, e.Message)
	}
	return "xrpl rpc: " + e.Code
}

// AccountNFT is one raw record of account_nfts.
type AccountNFT struct {
	NFTokenID    string `json:"NFTokenID"`
	Issuer       string `json:"Issuer"`
	NFTokenTaxon uint32 `json:"NFTokenTaxon"`
	NFTSerial    uint32 `json:"nft_serial"`
	URI          string `json:"URI,omitempty"`
	Flags        uint32 `json:"Flags"`
	TransferFee  uint32 `json:"TransferFee,omitempty"`
}

// JSONRPCClient is a simple HTTP JSON-RPC client for rippled / clio.
type JSONRPCClient struct {
	Endpoint string
	HTTP     *http.Client
}

// NewJSONRPCClient creates an XRPL JSON-RPC client. endpoint が空なら MainnetEndpoint.
func NewJSONRPCClient(endpoint string) *JSONRPCClient {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = MainnetEndpoint
	}
	return &JSONRPCClient{
		Endpoint: ep,
		HTTP: &http.Client{
			Timeout: 12 * time.Second,
		},
	}
}

// rippled の JSON-RPC は params が 1 要素の配列、エラーは result の中に入る。
type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
}

type rpcStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (c *JSONRPCClient) call(ctx context.Context, method string, params any, out any) error {
	if c == nil || c.Endpoint == "" || c.HTTP == nil {
		return fmt.Errorf("xrpl rpc: client not configured")
	}

	reqBody, err := json.Marshal(rpcRequest{
		Method: method,
		Params: []any{params},
	})
	if err != nil {
		return fmt.Errorf("xrpl rpc: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("xrpl rpc: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http do: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http status=%d", ErrTransport, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrTransport, err)
	}
	if len(rr.Result) == 0 {
		return fmt.Errorf("%w: empty result", ErrTransport)
	}

	var st rpcStatus
	if err := json.Unmarshal(rr.Result, &st); err != nil {
		return fmt.Errorf("%w: decode status: %w", ErrTransport, err)
	}
	if st.Error != "" {
		return &RPCError{Code: st.Error, Message: st.ErrorMessage}
	}

	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("%w: unmarshal result: %w", ErrTransport, err)
		}
	}
	return nil
}

type accountNFTsResult struct {
	Account     string       `json:"account"`
	AccountNFTs []AccountNFT `json:"account_nfts"`
	Marker      any          `json:"marker,omitempty"`
}

// AccountNFTs calls `account_nfts` at the latest validated ledger, one page only.
// Ledger order is preserved.
func (c *JSONRPCClient) AccountNFTs(ctx context.Context, account string) ([]AccountNFT, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, fmt.Errorf("xrpl rpc: account is empty")
	}

	ctx, span := otel.Tracer("bop/xrpl").Start(ctx, "xrpl.account_nfts")
	defer span.End()
	span.SetAttributes(attribute.String("xrpl.account", account))

	var res accountNFTsResult
	err := c.call(ctx, "account_nfts", map[string]any{
		"account":      account,
		"ledger_index": "validated",
		"limit":        AccountNFTsLimit,
	}, &res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if res.Marker != nil {
		// 2 ページ目以降は取得しない
		log.Printf("[xrpl] account_nfts truncated at %d records account=%s", AccountNFTsLimit, account)
	}
	span.SetAttributes(attribute.Int("xrpl.nft_count", len(res.AccountNFTs)))
	return res.AccountNFTs, nil
}

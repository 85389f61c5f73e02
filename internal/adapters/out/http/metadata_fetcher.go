// internal/adapters/out/http/metadata_fetcher.go
package httpout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxMetadataBytes caps NFT metadata documents (1MiB).
const maxMetadataBytes = 1 << 20

// MetadataFetcher implements resolver.MetadataFetcher with a plain GET.
type MetadataFetcher struct {
	client *http.Client
}

func NewMetadataFetcher(client *http.Client) *MetadataFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &MetadataFetcher{client: client}
}

func (f *MetadataFetcher) FetchJSON(ctx context.Context, url string, out any) error {
	if f == nil || f.client == nil {
		return fmt.Errorf("metadata fetcher is nil")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("metadata fetcher: url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("metadata fetcher: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("metadata fetcher: http do: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxMetadataBytes))
		return fmt.Errorf("metadata fetcher: http status=%d url=%s", res.StatusCode, url)
	}

	// 上限を超えたドキュメントは途中で切れて decode エラーになる
	body, err := io.ReadAll(io.LimitReader(res.Body, maxMetadataBytes+1))
	if err != nil {
		return fmt.Errorf("metadata fetcher: read body: %w", err)
	}
	if len(body) > maxMetadataBytes {
		return fmt.Errorf("metadata fetcher: document exceeds %d bytes", maxMetadataBytes)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("metadata fetcher: decode: %w", err)
	}
	return nil
}

package resolver

import (
	"context"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	nftdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/nft"
)

// DefaultIPFSGateway is the HTTP gateway used to rewrite ipfs:// URIs.
const DefaultIPFSGateway = "https://ipfs.io/ipfs/"

const defaultFetchTimeout = 10 * time.Second

var (
	hexOnlyRe  = regexp.MustCompile(`^[0-9A-Fa-f]+$`)
	rawImageRe = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|webp)$`)
)

// MetadataFetcher GETs a URL and decodes the body as JSON into out.
type MetadataFetcher interface {
	FetchJSON(ctx context.Context, url string, out any) error
}

// MetadataResolver turns an NFT URI field into a normalized {image, name} pair.
//
// 想定する入力:
//   - 空（URI 未設定）
//   - hex エンコードされた URI（XRPL の NFToken.URI はこれ）
//   - 画像への直接 URL / JSON メタデータへの URL
//   - 上記いずれかの ipfs:// 形式
//
// Resolve never returns an error and never panics: every fetch or decode failure
// degrades to a best-effort result (the decoded URI used as the image) or nil.
type MetadataResolver struct {
	Fetcher      MetadataFetcher
	Gateway      string
	FetchTimeout time.Duration
}

// NewMetadataResolver creates a resolver. gateway が空なら ipfs.io を使う。
func NewMetadataResolver(fetcher MetadataFetcher, gateway string) *MetadataResolver {
	gw := strings.TrimSpace(gateway)
	if gw == "" {
		gw = DefaultIPFSGateway
	}
	if !strings.HasSuffix(gw, "/") {
		gw += "/"
	}
	return &MetadataResolver{
		Fetcher:      fetcher,
		Gateway:      gw,
		FetchTimeout: defaultFetchTimeout,
	}
}

// Resolve returns nil when descriptor is empty.
func (r *MetadataResolver) Resolve(ctx context.Context, descriptor string) (md *nftdom.Metadata) {
	if descriptor == "" {
		return nil
	}

	decoded := descriptor
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[resolver] WARN: recovered while resolving %q: %v", decoded, rec)
			md = &nftdom.Metadata{Image: nftdom.StrPtr(decoded)}
		}
	}()

	// 1) hex → URI
	if hexOnlyRe.MatchString(descriptor) {
		decoded = DecodeHex(descriptor)
	}

	// 2) ipfs:// → gateway
	decoded = r.rewriteIPFS(decoded)

	// 3) raw image or non-HTTP → そのまま画像として扱う
	if !strings.HasPrefix(decoded, "http") || !looksLikeDocument(decoded) {
		return &nftdom.Metadata{Image: nftdom.StrPtr(decoded)}
	}

	// 4) JSON メタデータを取りに行く（失敗したら URI 自体を画像として扱う）
	doc, err := r.fetchDocument(ctx, decoded)
	if err != nil {
		log.Printf("[resolver] metadata fetch failed url=%s err=%v (falling back to uri)", decoded, err)
		return &nftdom.Metadata{Image: nftdom.StrPtr(decoded)}
	}

	image := stringField(doc, "image")
	if image == "" {
		image = stringField(doc, "image_url")
	}
	if image != "" {
		image = r.rewriteIPFS(image)
	}
	return &nftdom.Metadata{
		Image: nftdom.StrPtr(image),
		Name:  nftdom.StrPtr(stringField(doc, "name")),
	}
}

func (r *MetadataResolver) fetchDocument(ctx context.Context, url string) (map[string]any, error) {
	if r.Fetcher == nil {
		return nil, errFetcherNotConfigured
	}
	if r.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.FetchTimeout)
		defer cancel()
	}
	var doc map[string]any
	if err := r.Fetcher.FetchJSON(ctx, url, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errNotAnObject
	}
	return doc, nil
}

func (r *MetadataResolver) rewriteIPFS(uri string) string {
	if !strings.HasPrefix(uri, "ipfs://") {
		return uri
	}
	gw := r.Gateway
	if gw == "" {
		gw = DefaultIPFSGateway
	}
	return gw + strings.TrimPrefix(uri, "ipfs://")
}

// looksLikeDocument: ".json" を含む、または既知の画像拡張子で終わらない URI は JSON とみなす
func looksLikeDocument(uri string) bool {
	return strings.Contains(uri, ".json") || !rawImageRe.MatchString(uri)
}

// DecodeHex decodes byte pairs to characters. A trailing odd nibble is decoded on its own.
// Callers must have checked that s is hex-only.
func DecodeHex(s string) string {
	out := make([]byte, 0, (len(s)+1)/2)
	for i := 0; i < len(s); i += 2 {
		end := i + 2
		if end > len(s) {
			end = len(s)
		}
		v, err := strconv.ParseUint(s[i:end], 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return string(out)
}

func stringField(doc map[string]any, key string) string {
	v, ok := doc[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// internal/adapters/out/gcs/common/gcs_repository.go
package common

import (
	"fmt"
	"net/url"
	"strings"
)

const DefaultPublicBaseURL = "https://storage.googleapis.com"

// PublicURL builds a public object URL.
// - base が空なら DefaultPublicBaseURL を使用
// - objectPath の各セグメントは escape し、"/" は維持
func PublicURL(base, bucket, objectPath string) string {
	b := strings.TrimRight(strings.TrimSpace(base), "/")
	if b == "" {
		b = DefaultPublicBaseURL
	}
	obj := strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	parts := strings.Split(obj, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return fmt.Sprintf("%s/%s/%s", b, strings.TrimSpace(bucket), strings.Join(parts, "/"))
}

// ParseGCSURL parses a GCS-like URL and returns (bucket, objectPath, ok).
// 対応例:
//   - https://storage.googleapis.com/<bucket>/<object>
//   - https://storage.cloud.google.com/<bucket>/<object>
func ParseGCSURL(u string) (string, string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return "", "", false
	}

	host := strings.ToLower(parsed.Host)
	if host != "storage.googleapis.com" && host != "storage.cloud.google.com" {
		return "", "", false
	}

	p := strings.TrimLeft(parsed.EscapedPath(), "/")
	parts := strings.SplitN(p, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	objectPath, err := url.PathUnescape(parts[1])
	if err != nil {
		return "", "", false
	}
	return parts[0], objectPath, true
}

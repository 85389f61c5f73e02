// internal/adapters/out/gcs/projectImage_repository_gcs.go
package gcs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	gcscommon "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/gcs/common"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

// ProjectImageRepositoryGCS stores community project images.
//
// Layout (single bucket):
// - objectPath: <Prefix><walletAddress>-<unixMillis>.<ext>
//
// Public access:
//   - The bucket is expected to grant "allUsers: Storage Object Viewer"
//     (uniform access); no per-object ACL changes are made.
type ProjectImageRepositoryGCS struct {
	Client *storage.Client
	Bucket string
	Prefix string
	// Optional: if empty, uses https://storage.googleapis.com
	PublicBaseURL string
	// Optional: if <= 0, regdom.DefaultMaxImageBytes
	MaxBytes int64
}

func NewProjectImageRepositoryGCS(client *storage.Client, bucket string) *ProjectImageRepositoryGCS {
	return &ProjectImageRepositoryGCS{
		Client:        client,
		Bucket:        strings.TrimSpace(bucket),
		Prefix:        "project-images/",
		PublicBaseURL: gcscommon.DefaultPublicBaseURL,
		MaxBytes:      regdom.DefaultMaxImageBytes,
	}
}

func (r *ProjectImageRepositoryGCS) bucket() (*storage.BucketHandle, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("projectImage_repository_gcs: storage client is nil")
	}
	if r.Bucket == "" {
		return nil, errors.New("projectImage_repository_gcs: bucket is empty")
	}
	return r.Client.Bucket(r.Bucket), nil
}

func (r *ProjectImageRepositoryGCS) objectPath(key string) string {
	return r.Prefix + strings.TrimLeft(strings.TrimSpace(key), "/")
}

// Upload writes data under key and returns its public URL.
// Size and sniffed content type are checked again here, whatever the caller did.
func (r *ProjectImageRepositoryGCS) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := r.checkImage(contentType, data); err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("projectImage_repository_gcs: key is empty")
	}
	bh, err := r.bucket()
	if err != nil {
		return "", err
	}

	obj := r.objectPath(key)
	w := bh.Object(obj).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"
	// Safety: avoid writer hanging forever.
	w.ChunkSize = 0
	w.Metadata = map[string]string{
		"uploadedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("projectImage_repository_gcs: write %s: %w", obj, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("projectImage_repository_gcs: close %s: %w", obj, err)
	}

	log.Printf("[gcs] uploaded object=%s bytes=%d type=%s", obj, len(data), contentType)
	return r.PublicURL(key), nil
}

// Delete removes the object for key. A missing object is not an error.
func (r *ProjectImageRepositoryGCS) Delete(ctx context.Context, key string) error {
	bh, err := r.bucket()
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if err := bh.Object(r.objectPath(key)).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

// DeleteByURL removes an object previously returned by Upload. URLs that do
// not point into this bucket are ignored.
func (r *ProjectImageRepositoryGCS) DeleteByURL(ctx context.Context, publicURL string) error {
	key, ok := r.KeyFromURL(publicURL)
	if !ok {
		return nil
	}
	return r.Delete(ctx, key)
}

// KeyFromURL is the inverse of PublicURL.
func (r *ProjectImageRepositoryGCS) KeyFromURL(publicURL string) (string, bool) {
	if r == nil {
		return "", false
	}
	u := strings.TrimSpace(publicURL)
	var obj string
	if base := r.PublicURL(""); strings.HasPrefix(u, base) {
		rest, err := url.PathUnescape(strings.TrimPrefix(u, base))
		if err != nil {
			return "", false
		}
		obj = r.Prefix + rest
	} else {
		bucket, path, ok := gcscommon.ParseGCSURL(u)
		if !ok || bucket != r.Bucket {
			return "", false
		}
		obj = path
	}
	if !strings.HasPrefix(obj, r.Prefix) {
		return "", false
	}
	key := strings.TrimPrefix(obj, r.Prefix)
	if key == "" {
		return "", false
	}
	return key, true
}

// PublicURL returns the public URL for key.
func (r *ProjectImageRepositoryGCS) PublicURL(key string) string {
	return gcscommon.PublicURL(r.PublicBaseURL, r.Bucket, r.objectPath(key))
}

func (r *ProjectImageRepositoryGCS) checkImage(contentType string, data []byte) error {
	limit := r.MaxBytes
	if limit <= 0 {
		limit = regdom.DefaultMaxImageBytes
	}
	if int64(len(data)) > limit {
		return regdom.ErrImageTooLarge
	}
	if len(data) == 0 {
		return regdom.ErrUnsupportedImage
	}
	sniffed := http.DetectContentType(data)
	if _, ok := regdom.AllowedImageTypes[sniffed]; !ok || sniffed != strings.TrimSpace(contentType) {
		return regdom.ErrUnsupportedImage
	}
	return nil
}

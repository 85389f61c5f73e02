package httpin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/require"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http/middleware"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/sqlite"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/usecase"
	nftdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/nft"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/walletauth"
)

const (
	holder    = "rN7n7otQDd6FczFgLdSqtcsAUxDkw6fzQS"
	bopIssuer = "rBoPissuerXXXXXXXXXXXXXXXXXXXXXXX"
	bopToken  = "000800006203F49C21D5D6E022CB16DE3538F248662FC73C00000001"
	otherTok  = "00080000AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA00000009"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeLister struct{}

func (fakeLister) ListTokens(ctx context.Context, account string) ([]nftdom.Token, error) {
	img := "https://ipfs.io/ipfs/QmBop/1.png"
	name := "Peace #1"
	return []nftdom.Token{
		{TokenID: bopToken, Issuer: bopIssuer, Serial: 1, ImageURL: &img, Name: &name},
		{TokenID: otherTok, Issuer: "rOtherIssuer", Serial: 9},
	}, nil
}

type memImages struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memImages) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "https://storage.googleapis.com/bop-test/project-images/" + key, nil
}

func (m *memImages) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type stubVerifier map[string]string // token -> uid

func (v stubVerifier) VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error) {
	uid, ok := v[idToken]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &fbauth.Token{UID: uid, Claims: map[string]any{}}, nil
}

type testEnv struct {
	handler http.Handler
	store   *sqlite.Store
	live    *usecase.RegistrationSynchronizer
	images  *memImages
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "registrations.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sessions := usecase.NewSessionManager(ctx, walletauth.NewAddressProvider(), fakeLister{}, bopIssuer)
	images := &memImages{objects: map[string][]byte{}}
	regs := usecase.NewRegistrationUsecase(sessions, store).WithImages(images)

	live := usecase.NewRegistrationSynchronizer(store)
	go func() { _ = live.Run(ctx, nil) }()

	h := NewRouter(RouterDeps{
		Sessions:      sessions,
		Tokens:        fakeLister{},
		Registrations: regs,
		LiveFeed:      live,
		NewFeedSync:   func() *usecase.RegistrationSynchronizer { return usecase.NewRegistrationSynchronizer(store) },
		Moderation:    usecase.NewModerationUsecase(store),
		ModeratorAuth: middleware.NewModeratorAuth(stubVerifier{"mod-token": "mod-1", "user-token": "user-1"}, []string{"mod-1"}),
		CORSOrigins:   []string{"*"},
	})
	return &testEnv{handler: h, store: store, live: live, images: images}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// connectedSession creates a session, verifies holder and selects the BOP token.
func (e *testEnv) connectedSession(t *testing.T) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/sessions", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[usecase.SessionView](t, rec).ID
	require.NotEmpty(t, id)

	rec = e.do(t, http.MethodPost, "/sessions/"+id+"/connect", map[string]string{"address": holder}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		v := decode[usecase.SessionView](t, e.do(t, http.MethodGet, "/sessions/"+id, nil, nil))
		return v.State == usecase.StateConnectedWithTokens
	}, 2*time.Second, 10*time.Millisecond)

	rec = e.do(t, http.MethodPost, "/sessions/"+id+"/select", map[string]string{"tokenId": bopToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[usecase.SessionView](t, rec)
	require.NotNil(t, v.Selected)
	require.Equal(t, bopToken, v.Selected.TokenID)
	// the other issuer's token is filtered out
	require.Len(t, v.Tokens, 1)
	return id
}

func (e *testEnv) submit(t *testing.T, sessionID string, fields map[string]string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("projectImage", "logo.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/registration", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestSessionNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/sessions/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "Session not found")
}

func TestConnectWithInvalidAddressEndsInError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := decode[usecase.SessionView](t, env.do(t, http.MethodPost, "/sessions", nil, nil)).ID

	rec := env.do(t, http.MethodPost, "/sessions/"+id+"/connect", map[string]string{"address": "not-an-address"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		v := decode[usecase.SessionView](t, env.do(t, http.MethodGet, "/sessions/"+id, nil, nil))
		return v.State == usecase.StateError && v.Error != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitRegistrationFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// not verified yet
	id := decode[usecase.SessionView](t, env.do(t, http.MethodPost, "/sessions", nil, nil)).ID
	rec := env.submit(t, id, map[string]string{"projectName": "Peace DAO", "description": "We build."}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Wallet not verified")

	id = env.connectedSession(t)
	rec = env.submit(t, id, map[string]string{
		"projectName": "Peace DAO",
		"description": "We build.",
		"twitterUrl":  "https://x.com/peacedao",
	}, pngHeader)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[map[string]any](t, rec)
	require.Equal(t, holder, created["walletAddress"])
	require.Equal(t, bopToken, created["nftTokenId"])
	require.Equal(t, "Peace DAO", created["projectName"])
	require.Contains(t, created["projectImageUrl"], "project-images/"+holder+"-")
	require.Equal(t, created["projectImageUrl"], created["displayImageUrl"])
	require.Len(t, env.images.objects, 1)

	v := decode[usecase.SessionView](t, env.do(t, http.MethodGet, "/sessions/"+id, nil, nil))
	require.True(t, v.Submitted)

	// same session again
	rec = env.submit(t, id, map[string]string{"projectName": "Again", "description": "x"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// same wallet from a fresh session hits the store constraint
	other := env.connectedSession(t)
	rec = env.submit(t, other, map[string]string{"projectName": "Again", "description": "x"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "already registered")

	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/registrations", nil, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		body := decode[struct {
			Registrations []map[string]any `json:"registrations"`
		}](t, rec)
		return len(body.Registrations) == 1 && body.Registrations[0]["projectName"] == "Peace DAO"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitRejectsNonImageUpload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	id := env.connectedSession(t)

	rec := env.submit(t, id, map[string]string{"projectName": "Peace DAO", "description": "We build."}, []byte("<html><body>hi</body></html>"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, env.images.objects)
}

func TestListRegistrationsWhileLoading(t *testing.T) {
	t.Parallel()

	h := NewRouter(RouterDeps{LiveFeed: usecase.NewRegistrationSynchronizer(nil)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/registrations", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "Registrations are loading")
}

func TestNFTsEndpointFiltersByIssuer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/nfts/"+holder, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[struct {
		NFTs []nftdom.Token `json:"nfts"`
	}](t, rec)
	require.Len(t, all.NFTs, 2)

	rec = env.do(t, http.MethodGet, "/nfts/"+holder+"?issuer="+bopIssuer, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bop := decode[struct {
		NFTs []nftdom.Token `json:"nfts"`
	}](t, rec)
	require.Len(t, bop.NFTs, 1)
	require.Equal(t, bopToken, bop.NFTs[0].TokenID)
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	created, err := env.store.Create(context.Background(), regdom.Registration{
		WalletAddress: holder,
		NFTTokenID:    bopToken,
		ProjectName:   "Peace DAO",
		Description:   "We build.",
	})
	require.NoError(t, err)
	path := "/admin/registrations/" + created.ID

	rec := env.do(t, http.MethodDelete, path, nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodDelete, path, nil, map[string]string{"Authorization": "Bearer user-token"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	mod := map[string]string{"Authorization": "Bearer mod-token"}

	rec = env.do(t, http.MethodPatch, path, map[string]string{"projectName": "Renamed"}, mod)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Renamed", decode[map[string]any](t, rec)["projectName"])

	rec = env.do(t, http.MethodPatch, path, map[string]string{"walletAddress": "rSomeoneElse"}, mod)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, path, nil, mod)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, path, nil, mod)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistrationStream(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/registrations/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 8)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed")
			return ev
		case <-ctx.Done():
			t.Fatal("timed out waiting for an event")
			return ""
		}
	}

	require.Equal(t, "snapshot", next())

	_, err = env.store.Create(context.Background(), regdom.Registration{
		WalletAddress: holder,
		NFTTokenID:    bopToken,
		ProjectName:   "Peace DAO",
		Description:   "We build.",
	})
	require.NoError(t, err)
	require.Equal(t, "insert", next())
}

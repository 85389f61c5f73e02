package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
	nftdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/nft"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func oversizedPNG() []byte {
	b := make([]byte, regdom.DefaultMaxImageBytes+1)
	copy(b, pngBytes)
	return b
}

type fakeImages struct {
	mu        sync.Mutex
	uploads   []string
	types     []string
	deletes   []string
	uploadErr error
}

func (f *fakeImages) Upload(_ context.Context, key, contentType string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, key)
	f.types = append(f.types, contentType)
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "https://storage.googleapis.com/bop-images/" + key, nil
}

func (f *fakeImages) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	return nil
}

type chanNotifier struct{ ch chan regdom.Registration }

func (n *chanNotifier) NotifyRegistration(_ context.Context, r regdom.Registration) error {
	n.ch <- r
	return errors.New("smtp down") // failures are only logged
}

type submitFixture struct {
	uc      *RegistrationUsecase
	store   *memStore
	images  *fakeImages
	manager *SessionManager
	session *WalletSession
}

// newSubmitFixture returns a usecase with one session connected as account
// and holding token "T1" (selected when selectToken is true).
func newSubmitFixture(t *testing.T, account string, selectToken bool) submitFixture {
	t.Helper()

	img := "https://ipfs.io/ipfs/Qm/1.png"
	lister := &fakeLister{tokens: []nftdom.Token{{TokenID: "T1", Issuer: bopIssuer, ImageURL: &img}}}
	m := NewSessionManager(context.Background(), &fakeAuth{}, lister, bopIssuer)
	s := m.Create()
	_, err := s.Connect(context.Background(), account)
	require.NoError(t, err)
	if selectToken {
		s.SelectToken("T1")
	}

	store := newMemStore()
	images := &fakeImages{}
	uc := NewRegistrationUsecase(m, store).WithImages(images)
	uc.Now = func() time.Time { return time.UnixMilli(1767225600123).UTC() }
	return submitFixture{uc: uc, store: store, images: images, manager: m, session: s}
}

func validForm() regdom.Form {
	return regdom.Form{ProjectName: "Peace DAO", Description: "Builders of peace.", WebsiteURL: "https://peace.example"}
}

func TestSubmitCreatesRegistrationWithUploadedImage(t *testing.T) {
	t.Parallel()

	f := newSubmitFixture(t, testAccount, true)
	notifier := &chanNotifier{ch: make(chan regdom.Registration, 1)}
	f.uc.WithNotifier(notifier)

	got, err := f.uc.Submit(context.Background(), f.session.ID(), SubmitInput{
		Form:  validForm(),
		Image: &ImageUpload{Filename: "logo.png", Data: pngBytes},
	})
	require.NoError(t, err)

	wantKey := testAccount + "-1767225600123.png"
	require.Equal(t, []string{wantKey}, f.images.uploads)
	require.Equal(t, []string{"image/png"}, f.images.types)

	require.NotEmpty(t, got.ID)
	require.Equal(t, testAccount, got.WalletAddress)
	require.Equal(t, "T1", got.NFTTokenID)
	require.Equal(t, "https://ipfs.io/ipfs/Qm/1.png", *got.NFTImageURL)
	require.Equal(t, "https://storage.googleapis.com/bop-images/"+wantKey, *got.ProjectImageURL)
	require.Equal(t, "https://peace.example", *got.WebsiteURL)
	require.Nil(t, got.TwitterURL)

	require.True(t, f.session.View().Submitted)
	select {
	case n := <-notifier.ch:
		require.Equal(t, got.ID, n.ID)
	case <-time.After(time.Second):
		t.Fatal("moderator notification not sent")
	}
}

func TestSubmitWithoutImageSkipsUpload(t *testing.T) {
	t.Parallel()

	f := newSubmitFixture(t, testAccount, true)
	got, err := f.uc.Submit(context.Background(), f.session.ID(), SubmitInput{Form: validForm()})
	require.NoError(t, err)
	require.Nil(t, got.ProjectImageURL)
	require.Empty(t, f.images.uploads)
	require.Equal(t, got.NFTImageURL, got.DisplayImageURL())
}

func TestSubmitPreconditionsFailBeforeAnyNetworkCall(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		selected bool
		connect  bool
		in       SubmitInput
		want     error
	}{
		{"wallet not verified", false, false, SubmitInput{Form: validForm()}, regdom.ErrWalletNotVerified},
		{"token not selected", false, true, SubmitInput{Form: validForm()}, regdom.ErrTokenNotSelected},
		{"missing fields", true, true, SubmitInput{Form: regdom.Form{ProjectName: "  ", Description: "x"}}, regdom.ErrMissingFields},
		{"name too long", true, true, SubmitInput{Form: regdom.Form{ProjectName: strings.Repeat("a", 51), Description: "x"}}, regdom.ErrProjectNameTooLong},
		{"description too long", true, true, SubmitInput{Form: regdom.Form{ProjectName: "a", Description: strings.Repeat("d", 281)}}, regdom.ErrDescriptionTooLong},
		{"image too large", true, true, SubmitInput{Form: validForm(), Image: &ImageUpload{Data: oversizedPNG()}}, regdom.ErrImageTooLarge},
		{"unsupported image", true, true, SubmitInput{Form: validForm(), Image: &ImageUpload{Data: []byte("just some text")}}, regdom.ErrUnsupportedImage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newSubmitFixture(t, testAccount, tc.selected)
			if !tc.connect {
				f.session.Disconnect(context.Background())
			}
			_, err := f.uc.Submit(context.Background(), f.session.ID(), tc.in)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, common.ErrValidation)
			require.Empty(t, f.images.uploads)
			require.Zero(t, f.store.rowCount())
		})
	}
}

func TestSubmitTwiceInOneSessionIsRejected(t *testing.T) {
	t.Parallel()

	f := newSubmitFixture(t, testAccount, true)
	_, err := f.uc.Submit(context.Background(), f.session.ID(), SubmitInput{Form: validForm()})
	require.NoError(t, err)

	_, err = f.uc.Submit(context.Background(), f.session.ID(), SubmitInput{Form: validForm()})
	require.ErrorIs(t, err, regdom.ErrAlreadySubmitted)

	// reconnecting is not a reset
	_, err = f.session.Connect(context.Background(), testAccount)
	require.NoError(t, err)
	f.session.SelectToken("T1")
	_, err = f.uc.Submit(context.Background(), f.session.ID(), SubmitInput{Form: validForm()})
	require.ErrorIs(t, err, regdom.ErrAlreadySubmitted)
	require.Equal(t, 1, f.store.rowCount())
}

func TestSubmitDuplicateWalletIsConflict(t *testing.T) {
	t.Parallel()

	f := newSubmitFixture(t, testAccount, true)
	_, err := f.uc.Submit(context.Background(), f.session.ID(), SubmitInput{Form: validForm()})
	require.NoError(t, err)

	// same wallet, fresh session (a second tab)
	other := f.manager.Create()
	_, err = other.Connect(context.Background(), testAccount)
	require.NoError(t, err)
	other.SelectToken("T1")

	_, err = f.uc.Submit(context.Background(), other.ID(), SubmitInput{
		Form:  validForm(),
		Image: &ImageUpload{Data: pngBytes},
	})
	require.ErrorIs(t, err, regdom.ErrConflict)
	require.ErrorIs(t, err, common.ErrConflict)
	require.Equal(t, "This wallet has already registered a community", err.Error())

	require.Equal(t, 1, f.store.rowCount())
	require.False(t, other.View().Submitted)
	require.Len(t, f.images.deletes, 1, "orphan image removed")
}

func TestSubmitSurfacesStoreAndUploadErrors(t *testing.T) {
	t.Parallel()

	f := newSubmitFixture(t, testAccount, true)
	f.store.createErr = errors.New("pq: connection refused")
	_, err := f.uc.Submit(context.Background(), f.session.ID(), SubmitInput{Form: validForm()})
	require.EqualError(t, err, "pq: connection refused")
	require.False(t, f.session.View().Submitted)

	f = newSubmitFixture(t, testAccount, true)
	f.images.uploadErr = errors.New("googleapi: Error 503")
	_, err = f.uc.Submit(context.Background(), f.session.ID(), SubmitInput{Form: validForm(), Image: &ImageUpload{Data: pngBytes}})
	require.ErrorIs(t, err, regdom.ErrUploadFailed)
	require.ErrorIs(t, err, common.ErrTransient)
	require.Zero(t, f.store.rowCount())

	f = newSubmitFixture(t, testAccount, true)
	f.uc.Images = nil
	_, err = f.uc.Submit(context.Background(), f.session.ID(), SubmitInput{Form: validForm(), Image: &ImageUpload{Data: pngBytes}})
	require.ErrorIs(t, err, regdom.ErrUploadUnavailable)
}

func TestSubmitUnknownSession(t *testing.T) {
	t.Parallel()

	f := newSubmitFixture(t, testAccount, true)
	_, err := f.uc.Submit(context.Background(), "nope", SubmitInput{Form: validForm()})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSniffImage(t *testing.T) {
	t.Parallel()

	ct, ext, err := SniffImage([]byte("GIF89a\x01\x00\x01\x00"))
	require.NoError(t, err)
	require.Equal(t, "image/gif", ct)
	require.Equal(t, "gif", ext)

	ct, ext, err = SniffImage(append([]byte("\xFF\xD8\xFF"), make([]byte, 16)...))
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", ct)
	require.Equal(t, "jpg", ext)

	_, _, err = SniffImage(nil)
	require.ErrorIs(t, err, regdom.ErrUnsupportedImage)
	_, _, err = SniffImage([]byte("<svg xmlns='http://www.w3.org/2000/svg'/>"))
	require.ErrorIs(t, err, regdom.ErrUnsupportedImage)
}

func TestModerationUsecase(t *testing.T) {
	t.Parallel()

	img := "https://storage.googleapis.com/bop/project-images/r1.png"
	repo := &patchRepo{rows: map[string]regdom.Registration{
		"r1": {ID: "r1", WalletAddress: testAccount, ProjectName: "Old", Description: "d", ProjectImageURL: &img},
		"r2": {ID: "r2", WalletAddress: "rOther", ProjectName: "Other", Description: "d"},
	}}
	remover := &urlRemover{err: errors.New("bucket offline")}
	uc := NewModerationUsecase(repo).WithImages(remover)

	name := "New"
	got, err := uc.Update(context.Background(), "mod-1", "r1", regdom.Patch{ProjectName: &name})
	require.NoError(t, err)
	require.Equal(t, "New", got.ProjectName)

	_, err = uc.Update(context.Background(), "mod-1", "r1", regdom.Patch{})
	require.ErrorIs(t, err, regdom.ErrEmptyPatch)

	_, err = uc.Update(context.Background(), "mod-1", "missing", regdom.Patch{ProjectName: &name})
	require.ErrorIs(t, err, regdom.ErrNotFound)

	// image removal failure does not fail the delete
	require.NoError(t, uc.Delete(context.Background(), "mod-1", "r1"))
	require.Equal(t, []string{img}, remover.urls)
	require.ErrorIs(t, uc.Delete(context.Background(), "mod-1", "r1"), common.ErrNotFound)
	require.ErrorIs(t, uc.Delete(context.Background(), "mod-1", " "), regdom.ErrNotFound)

	require.NoError(t, uc.Delete(context.Background(), "mod-1", "r2"))
	require.Len(t, remover.urls, 1, "no image, nothing to remove")
}

type urlRemover struct {
	urls []string
	err  error
}

func (r *urlRemover) DeleteByURL(_ context.Context, u string) error {
	r.urls = append(r.urls, u)
	return r.err
}

// patchRepo implements regdom.Repository for moderation tests.
type patchRepo struct {
	rows map[string]regdom.Registration
}

func (r *patchRepo) ListAll(context.Context) ([]regdom.Registration, error) { return nil, nil }

func (r *patchRepo) Create(_ context.Context, reg regdom.Registration) (regdom.Registration, error) {
	return reg, nil
}

func (r *patchRepo) GetByID(_ context.Context, id string) (regdom.Registration, error) {
	reg, ok := r.rows[id]
	if !ok {
		return regdom.Registration{}, regdom.ErrNotFound
	}
	return reg, nil
}

func (r *patchRepo) Update(ctx context.Context, id string, p regdom.Patch) (regdom.Registration, error) {
	reg, err := r.GetByID(ctx, id)
	if err != nil {
		return regdom.Registration{}, err
	}
	next, err := p.ApplyTo(reg)
	if err != nil {
		return regdom.Registration{}, err
	}
	r.rows[id] = next
	return next, nil
}

func (r *patchRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.rows[id]; !ok {
		return regdom.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

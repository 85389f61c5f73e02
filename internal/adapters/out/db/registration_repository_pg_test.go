package db

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/database"
)

func TestDecodeNotification(t *testing.T) {
	t.Parallel()

	ev, err := decodeNotification(`{"type":"INSERT","id":"4f1c2d43-1a2b-4c3d-8e9f-0a1b2c3d4e5f"}`)
	require.NoError(t, err)
	require.Equal(t, regdom.ChangeInsert, ev.Type)
	require.Equal(t, regdom.Registration{ID: "4f1c2d43-1a2b-4c3d-8e9f-0a1b2c3d4e5f"}, ev.Record)

	ev, err = decodeNotification(`{"type":"delete","id":" 4f1c2d43-1a2b-4c3d-8e9f-0a1b2c3d4e5f "}`)
	require.NoError(t, err)
	require.Equal(t, regdom.ChangeDelete, ev.Type)
	require.Equal(t, "4f1c2d43-1a2b-4c3d-8e9f-0a1b2c3d4e5f", ev.Record.ID)
}

func TestDecodeNotificationRejects(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{
		`not json`,
		`{"type":"truncate","id":"x"}`,
		`{"type":"delete","id":""}`,
		`{"type":"insert"}`,
	} {
		_, err := decodeNotification(payload)
		require.Error(t, err, payload)
	}
}

func TestDeleteNotificationNeedsNoReload(t *testing.T) {
	t.Parallel()

	// DB が nil でも delete は読み直さない
	repo := NewRegistrationRepositoryPG(nil, "")
	in := regdom.ChangeEvent{Type: regdom.ChangeDelete, Record: regdom.Registration{ID: "4f1c2d43-1a2b-4c3d-8e9f-0a1b2c3d4e5f"}}
	out, ok, err := repo.resolveChange(context.Background(), in)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in, out)
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	require.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	require.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"})))
	require.False(t, isUniqueViolation(&pq.Error{Code: "23514"}))
	require.False(t, isUniqueViolation(fmt.Errorf("plain")))
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	t.Parallel()

	// no DB round trip for ids that cannot be a uuid
	repo := NewRegistrationRepositoryPG(nil, "")
	_, err := repo.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, regdom.ErrNotFound)
	require.ErrorIs(t, repo.Delete(context.Background(), ""), regdom.ErrNotFound)

	_, err = repo.Subscribe(context.Background())
	require.Error(t, err)
}

// TestRepositoryAgainstPostgres runs only when TEST_DATABASE_URL points at a
// disposable database.
func TestRepositoryAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	conn, err := database.NewConnection(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.EnsureSchema(ctx))
	_, err = conn.Client.ExecContext(ctx, `DELETE FROM community_registrations`)
	require.NoError(t, err)

	repo := NewRegistrationRepositoryPG(conn.Client, conn.DSN)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, err := repo.Subscribe(subCtx)
	require.NoError(t, err)

	draft := regdom.Registration{
		WalletAddress: "rN7n7otQDd6FczFgLdSqtcsAUxDkw6fzQS",
		NFTTokenID:    "000800",
		ProjectName:   "Peace DAO",
		Description:   "We build.",
	}
	created, err := repo.Create(ctx, draft)
	require.NoError(t, err)
	require.False(t, created.CreatedAt.IsZero())

	_, err = repo.Create(ctx, draft)
	require.ErrorIs(t, err, regdom.ErrConflict)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	next := func(what string) regdom.ChangeEvent {
		t.Helper()
		select {
		case ev := <-sub.Events():
			return ev
		case <-time.After(5 * time.Second):
			t.Fatalf("no notification for %s", what)
		}
		return regdom.ChangeEvent{}
	}

	ev := next("insert")
	require.Equal(t, regdom.ChangeInsert, ev.Type)
	require.Equal(t, created, ev.Record)

	// a row far larger than the 8000 byte NOTIFY limit still inserts and is delivered whole
	longURL := "https://ipfs.io/ipfs/Qm/" + strings.Repeat("a", 9000) + ".png"
	big := draft
	big.WalletAddress = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	big.NFTImageURL = &longURL
	bigCreated, err := repo.Create(ctx, big)
	require.NoError(t, err)

	ev = next("large insert")
	require.Equal(t, regdom.ChangeInsert, ev.Type)
	require.Equal(t, bigCreated.ID, ev.Record.ID)
	require.NotNil(t, ev.Record.NFTImageURL)
	require.Equal(t, longURL, *ev.Record.NFTImageURL)

	require.NoError(t, repo.Delete(ctx, created.ID))
	require.ErrorIs(t, repo.Delete(ctx, created.ID), regdom.ErrNotFound)

	ev = next("delete")
	require.Equal(t, regdom.ChangeDelete, ev.Type)
	require.Equal(t, created.ID, ev.Record.ID)

	require.NoError(t, repo.Delete(ctx, bigCreated.ID))
}

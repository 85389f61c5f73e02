// internal/adapters/out/firestore/registration_repository_fs.go
package firestore

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/feed"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

const DefaultRegistrationsCollection = "community_registrations"

// ========================================
// Firestore Repository Implementation
// ========================================

// RegistrationRepositoryFS stores one document per wallet address
// (doc ID = walletAddress), so ref.Create enforces "1 wallet = 1 registration".
// Registration.ID is a separate uuid field.
type RegistrationRepositoryFS struct {
	Client     *firestore.Client
	Collection string
}

func NewRegistrationRepositoryFS(client *firestore.Client, collection string) *RegistrationRepositoryFS {
	c := strings.TrimSpace(collection)
	if c == "" {
		c = DefaultRegistrationsCollection
	}
	return &RegistrationRepositoryFS{Client: client, Collection: c}
}

func (r *RegistrationRepositoryFS) col() *firestore.CollectionRef {
	return r.Client.Collection(r.Collection)
}

// Ensure interface implementation
var _ regdom.Store = (*RegistrationRepositoryFS)(nil)

// registrationDoc is the stored shape.
type registrationDoc struct {
	ID              string    `firestore:"id"`
	WalletAddress   string    `firestore:"walletAddress"`
	NFTTokenID      string    `firestore:"nftTokenId"`
	NFTImageURL     *string   `firestore:"nftImageUrl"`
	ProjectName     string    `firestore:"projectName"`
	ProjectImageURL *string   `firestore:"projectImageUrl"`
	Description     string    `firestore:"description"`
	TwitterURL      *string   `firestore:"twitterUrl"`
	DiscordURL      *string   `firestore:"discordUrl"`
	WebsiteURL      *string   `firestore:"websiteUrl"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

func toDoc(r regdom.Registration) registrationDoc {
	return registrationDoc{
		ID:              r.ID,
		WalletAddress:   r.WalletAddress,
		NFTTokenID:      r.NFTTokenID,
		NFTImageURL:     r.NFTImageURL,
		ProjectName:     r.ProjectName,
		ProjectImageURL: r.ProjectImageURL,
		Description:     r.Description,
		TwitterURL:      r.TwitterURL,
		DiscordURL:      r.DiscordURL,
		WebsiteURL:      r.WebsiteURL,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

func (d registrationDoc) toDomain() regdom.Registration {
	return regdom.Registration{
		ID:              strings.TrimSpace(d.ID),
		WalletAddress:   strings.TrimSpace(d.WalletAddress),
		NFTTokenID:      strings.TrimSpace(d.NFTTokenID),
		NFTImageURL:     d.NFTImageURL,
		ProjectName:     d.ProjectName,
		ProjectImageURL: d.ProjectImageURL,
		Description:     d.Description,
		TwitterURL:      d.TwitterURL,
		DiscordURL:      d.DiscordURL,
		WebsiteURL:      d.WebsiteURL,
		CreatedAt:       d.CreatedAt.UTC(),
	}
}

func docToDomain(snap *firestore.DocumentSnapshot) (regdom.Registration, error) {
	var d registrationDoc
	if err := snap.DataTo(&d); err != nil {
		return regdom.Registration{}, err
	}
	return d.toDomain(), nil
}

// ========================================
// Queries
// ========================================

func (r *RegistrationRepositoryFS) ListAll(ctx context.Context) ([]regdom.Registration, error) {
	iter := r.col().OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	items := make([]regdom.Registration, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		reg, err := docToDomain(snap)
		if err != nil {
			log.Printf("[firestore.registration] WARN: skip undecodable doc=%s: %v", snap.Ref.ID, err)
			continue
		}
		items = append(items, reg)
	}
	return items, nil
}

func (r *RegistrationRepositoryFS) GetByID(ctx context.Context, id string) (regdom.Registration, error) {
	snap, err := r.findByID(ctx, id)
	if err != nil {
		return regdom.Registration{}, err
	}
	return docToDomain(snap)
}

func (r *RegistrationRepositoryFS) findByID(ctx context.Context, id string) (*firestore.DocumentSnapshot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, regdom.ErrNotFound
	}
	iter := r.col().Where("id", "==", id).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, regdom.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ========================================
// Mutations
// ========================================

func (r *RegistrationRepositoryFS) Create(ctx context.Context, in regdom.Registration) (regdom.Registration, error) {
	wallet := strings.TrimSpace(in.WalletAddress)
	if wallet == "" {
		return regdom.Registration{}, errors.New("registration_repository_fs: wallet address is empty")
	}
	in.WalletAddress = wallet
	in.ID = uuid.NewString()
	in.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := r.col().Doc(wallet).Create(ctx, toDoc(in)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return regdom.Registration{}, regdom.ErrConflict
		}
		return regdom.Registration{}, err
	}
	return in, nil
}

func (r *RegistrationRepositoryFS) Update(ctx context.Context, id string, p regdom.Patch) (regdom.Registration, error) {
	snap, err := r.findByID(ctx, id)
	if err != nil {
		return regdom.Registration{}, err
	}
	ref := snap.Ref

	var out regdom.Registration
	err = r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cur, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return regdom.ErrNotFound
		}
		if err != nil {
			return err
		}
		reg, err := docToDomain(cur)
		if err != nil {
			return err
		}
		next, err := p.ApplyTo(reg)
		if err != nil {
			return err
		}
		out = next
		return tx.Set(ref, toDoc(next))
	})
	if err != nil {
		return regdom.Registration{}, err
	}
	return out, nil
}

func (r *RegistrationRepositoryFS) Delete(ctx context.Context, id string) error {
	snap, err := r.findByID(ctx, id)
	if err != nil {
		return err
	}
	_, err = snap.Ref.Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return regdom.ErrNotFound
	}
	return err
}

// Close is a no-op; the client is owned by infra/firestore.
func (r *RegistrationRepositoryFS) Close() error { return nil }

// ========================================
// Change feed (query snapshots)
// ========================================

// Subscribe listens to collection snapshots. The first snapshot is the full
// collection; it is replayed as inserts, oldest first, so documents written
// between ListAll and the listener attaching are not lost. Inserts of already
// loaded rows replace them in place.
func (r *RegistrationRepositoryFS) Subscribe(ctx context.Context) (regdom.Subscription, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("registration_repository_fs: client is nil")
	}

	subCtx, cancel := context.WithCancel(ctx)
	it := r.col().Snapshots(subCtx)
	sub := feed.NewSubscription(feed.DefaultBuffer, cancel)

	go func() {
		defer it.Stop()
		first := true
		for {
			qs, err := it.Next()
			if err != nil {
				if subCtx.Err() != nil || status.Code(err) == codes.Canceled {
					_ = sub.Close()
				} else {
					sub.Fail(err)
				}
				return
			}

			evs := make([]regdom.ChangeEvent, 0, len(qs.Changes))
			for _, ch := range qs.Changes {
				if ev, ok := changeEvent(ch.Kind, ch.Doc); ok {
					evs = append(evs, ev)
				}
			}

			if first {
				first = false
				// 初回はコレクション全件。buffer を超えうるので待って送る
				for _, ev := range oldestFirst(evs) {
					if !sub.SendWait(subCtx, ev) {
						return
					}
				}
				continue
			}
			for _, ev := range evs {
				if !sub.Send(ev) {
					return
				}
			}
		}
	}()
	return sub, nil
}

// oldestFirst orders an initial batch so that prepending each insert yields a
// newest-first list.
func oldestFirst(evs []regdom.ChangeEvent) []regdom.ChangeEvent {
	out := make([]regdom.ChangeEvent, len(evs))
	copy(out, evs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Record, out[j].Record
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func changeEvent(kind firestore.DocumentChangeKind, snap *firestore.DocumentSnapshot) (regdom.ChangeEvent, bool) {
	if snap == nil {
		return regdom.ChangeEvent{}, false
	}
	reg, err := docToDomain(snap)
	if err != nil || reg.ID == "" {
		log.Printf("[firestore.registration] WARN: skip change for doc=%s: %v", snap.Ref.ID, err)
		return regdom.ChangeEvent{}, false
	}
	return regdom.ChangeEvent{Type: changeTypeOf(kind), Record: reg}, true
}

func changeTypeOf(kind firestore.DocumentChangeKind) regdom.ChangeType {
	switch kind {
	case firestore.DocumentAdded:
		return regdom.ChangeInsert
	case firestore.DocumentRemoved:
		return regdom.ChangeDelete
	default:
		return regdom.ChangeUpdate
	}
}

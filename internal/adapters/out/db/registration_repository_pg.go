// internal/adapters/out/db/registration_repository_pg.go
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/feed"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

const uniqueViolation = "23505"

// ErrListenerReconnected ends a subscription when the LISTEN connection was
// re-established; notifications sent in between are lost.
var ErrListenerReconnected = errors.New("registration_repository_pg: listener reconnected, events may be lost")

// RegistrationRepositoryPG implements regdom.Store on PostgreSQL.
// The change feed is LISTEN/NOTIFY on regdom.NotifyChannel (trigger in the DDL).
type RegistrationRepositoryPG struct {
	DB  *sql.DB
	DSN string

	MinReconnect time.Duration
	MaxReconnect time.Duration
}

func NewRegistrationRepositoryPG(db *sql.DB, dsn string) *RegistrationRepositoryPG {
	return &RegistrationRepositoryPG{
		DB:           db,
		DSN:          strings.TrimSpace(dsn),
		MinReconnect: 10 * time.Second,
		MaxReconnect: time.Minute,
	}
}

var _ regdom.Store = (*RegistrationRepositoryPG)(nil)

const pgSelectColumns = `
  id, wallet_address, nft_token_id, nft_image_url, project_name, project_image_url,
  description, twitter_url, discord_url, website_url, created_at`

// =======================
// Queries
// =======================

func (r *RegistrationRepositoryPG) ListAll(ctx context.Context) ([]regdom.Registration, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT`+pgSelectColumns+`
FROM community_registrations
ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]regdom.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *RegistrationRepositoryPG) GetByID(ctx context.Context, id string) (regdom.Registration, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return regdom.Registration{}, regdom.ErrNotFound
	}
	row := r.DB.QueryRowContext(ctx, `
SELECT`+pgSelectColumns+`
FROM community_registrations
WHERE id = $1`, id)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return regdom.Registration{}, regdom.ErrNotFound
	}
	if err != nil {
		return regdom.Registration{}, err
	}
	return reg, nil
}

// =======================
// Mutations
// =======================

func (r *RegistrationRepositoryPG) Create(ctx context.Context, in regdom.Registration) (regdom.Registration, error) {
	in.ID = uuid.NewString()

	row := r.DB.QueryRowContext(ctx, `
INSERT INTO community_registrations (
  id, wallet_address, nft_token_id, nft_image_url, project_name, project_image_url,
  description, twitter_url, discord_url, website_url
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING`+pgSelectColumns,
		in.ID, in.WalletAddress, in.NFTTokenID, in.NFTImageURL, in.ProjectName, in.ProjectImageURL,
		in.Description, in.TwitterURL, in.DiscordURL, in.WebsiteURL,
	)
	out, err := scanRegistration(row)
	if err != nil {
		if isUniqueViolation(err) {
			return regdom.Registration{}, regdom.ErrConflict
		}
		return regdom.Registration{}, fmt.Errorf("insert registration: %w", err)
	}
	return out, nil
}

func (r *RegistrationRepositoryPG) Update(ctx context.Context, id string, p regdom.Patch) (regdom.Registration, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return regdom.Registration{}, regdom.ErrNotFound
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return regdom.Registration{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanRegistration(tx.QueryRowContext(ctx, `
SELECT`+pgSelectColumns+`
FROM community_registrations
WHERE id = $1
FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return regdom.Registration{}, regdom.ErrNotFound
	}
	if err != nil {
		return regdom.Registration{}, err
	}

	next, err := p.ApplyTo(cur)
	if err != nil {
		return regdom.Registration{}, err
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE community_registrations SET
  project_name = $2, project_image_url = $3, description = $4,
  twitter_url = $5, discord_url = $6, website_url = $7
WHERE id = $1`,
		id, next.ProjectName, next.ProjectImageURL, next.Description,
		next.TwitterURL, next.DiscordURL, next.WebsiteURL,
	); err != nil {
		return regdom.Registration{}, err
	}
	if err := tx.Commit(); err != nil {
		return regdom.Registration{}, err
	}
	return next, nil
}

func (r *RegistrationRepositoryPG) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return regdom.ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM community_registrations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return regdom.ErrNotFound
	}
	return nil
}

// =======================
// Change feed (LISTEN/NOTIFY)
// =======================

// Subscribe opens a dedicated LISTEN connection. The subscription fails when the
// listener loses its connection so the consumer reloads instead of missing rows.
func (r *RegistrationRepositoryPG) Subscribe(ctx context.Context) (regdom.Subscription, error) {
	if r.DSN == "" {
		return nil, errors.New("registration_repository_pg: dsn is empty")
	}

	listener := pq.NewListener(r.DSN, r.MinReconnect, r.MaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[pg.feed] listener event=%d: %v", ev, err)
		}
	})
	if err := listener.Listen(regdom.NotifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", regdom.NotifyChannel, err)
	}

	sub := feed.NewSubscription(feed.DefaultBuffer, func() { _ = listener.Close() })
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case <-sub.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					sub.Fail(errors.New("registration_repository_pg: listener closed"))
					return
				}
				// nil = 再接続（その間の通知は失われている）
				if n == nil {
					sub.Fail(ErrListenerReconnected)
					return
				}
				ev, err := decodeNotification(n.Extra)
				if err != nil {
					log.Printf("[pg.feed] WARN: skip malformed notification: %v", err)
					continue
				}
				ev, ok, err = r.resolveChange(ctx, ev)
				if err != nil {
					if ctx.Err() != nil {
						_ = sub.Close()
						return
					}
					sub.Fail(err)
					return
				}
				if !ok {
					continue
				}
				if !sub.Send(ev) {
					return
				}
			}
		}
	}()
	return sub, nil
}

// resolveChange loads the row named by an insert/update notification.
// ok=false when the row is already gone; its delete notification follows.
func (r *RegistrationRepositoryPG) resolveChange(ctx context.Context, ev regdom.ChangeEvent) (regdom.ChangeEvent, bool, error) {
	if ev.Type == regdom.ChangeDelete {
		return ev, true, nil
	}
	reg, err := r.GetByID(ctx, ev.Record.ID)
	if errors.Is(err, regdom.ErrNotFound) {
		return regdom.ChangeEvent{}, false, nil
	}
	if err != nil {
		return regdom.ChangeEvent{}, false, fmt.Errorf("registration_repository_pg: reload %s: %w", ev.Record.ID, err)
	}
	ev.Record = reg
	return ev, true, nil
}

// Close is a no-op; the *sql.DB is owned by infra/database.
func (r *RegistrationRepositoryPG) Close() error { return nil }

// =======================
// Helpers
// =======================

// decodeNotification parses the trigger payload {"type": ..., "id": ...}.
// Only the id is carried; Record is filled in by resolveChange.
func decodeNotification(payload string) (regdom.ChangeEvent, error) {
	var msg struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return regdom.ChangeEvent{}, err
	}
	typ := regdom.ChangeType(strings.ToLower(strings.TrimSpace(msg.Type)))
	switch typ {
	case regdom.ChangeInsert, regdom.ChangeUpdate, regdom.ChangeDelete:
	default:
		return regdom.ChangeEvent{}, fmt.Errorf("unknown change type %q", msg.Type)
	}
	id := strings.TrimSpace(msg.ID)
	if id == "" {
		return regdom.ChangeEvent{}, errors.New("record id is empty")
	}
	return regdom.ChangeEvent{Type: typ, Record: regdom.Registration{ID: id}}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(s rowScanner) (regdom.Registration, error) {
	var (
		reg                                               regdom.Registration
		nftImage, projectImage, twitter, discord, website sql.NullString
	)
	if err := s.Scan(
		&reg.ID, &reg.WalletAddress, &reg.NFTTokenID, &nftImage, &reg.ProjectName, &projectImage,
		&reg.Description, &twitter, &discord, &website, &reg.CreatedAt,
	); err != nil {
		return regdom.Registration{}, err
	}
	reg.NFTImageURL = nullString(nftImage)
	reg.ProjectImageURL = nullString(projectImage)
	reg.TwitterURL = nullString(twitter)
	reg.DiscordURL = nullString(discord)
	reg.WebsiteURL = nullString(website)
	reg.CreatedAt = reg.CreatedAt.UTC()
	return reg, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

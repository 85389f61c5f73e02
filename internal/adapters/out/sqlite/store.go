// Package sqlite provides a SQLite-backed registration store for local runs,
// tooling, and tests. Change events are broadcast in-process, so only writes
// made through this Store reach its subscribers.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/feed"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/sqlite/migrations"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

// Store persists community registrations in SQLite.
type Store struct {
	sqlDB *sql.DB
	bc    *feed.Broadcaster
	now   func() time.Time

	// writeMu serializes each write with its Publish so subscribers see
	// changes in commit order (and created_at order for inserts).
	writeMu sync.Mutex
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite registration store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{
		sqlDB: sqlDB,
		bc:    feed.NewBroadcaster(feed.DefaultBuffer),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close ends every subscription and closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.bc.CloseAll(nil)
	return s.sqlDB.Close()
}

const selectColumns = `id, wallet_address, nft_token_id, nft_image_url, project_name, project_image_url,
        description, twitter_url, discord_url, website_url, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (regdom.Registration, error) {
	var (
		r                                                 regdom.Registration
		nftImage, projectImage, twitter, discord, website sql.NullString
		createdAt                                         int64
	)
	if err := row.Scan(
		&r.ID, &r.WalletAddress, &r.NFTTokenID, &nftImage, &r.ProjectName, &projectImage,
		&r.Description, &twitter, &discord, &website, &createdAt,
	); err != nil {
		return regdom.Registration{}, err
	}
	r.NFTImageURL = nullable(nftImage)
	r.ProjectImageURL = nullable(projectImage)
	r.TwitterURL = nullable(twitter)
	r.DiscordURL = nullable(discord)
	r.WebsiteURL = nullable(website)
	r.CreatedAt = fromMillis(createdAt)
	return r, nil
}

// ListAll returns every registration, newest first.
func (s *Store) ListAll(ctx context.Context) ([]regdom.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+selectColumns+`
		   FROM community_registrations
		  ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	out := make([]regdom.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

// Create inserts r with a fresh id and created_at. A second row for the same
// wallet returns regdom.ErrConflict.
func (s *Store) Create(ctx context.Context, r regdom.Registration) (regdom.Registration, error) {
	if err := ctx.Err(); err != nil {
		return regdom.Registration{}, err
	}
	if s == nil || s.sqlDB == nil {
		return regdom.Registration{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(r.WalletAddress) == "" {
		return regdom.Registration{}, fmt.Errorf("wallet address is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	r.ID = uuid.NewString()
	r.CreatedAt = s.now().Truncate(time.Millisecond)

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO community_registrations (
		   id, wallet_address, nft_token_id, nft_image_url, project_name, project_image_url,
		   description, twitter_url, discord_url, website_url, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.WalletAddress, r.NFTTokenID, r.NFTImageURL, r.ProjectName, r.ProjectImageURL,
		r.Description, r.TwitterURL, r.DiscordURL, r.WebsiteURL, toMillis(r.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return regdom.Registration{}, regdom.ErrConflict
		}
		return regdom.Registration{}, fmt.Errorf("create registration: %w", err)
	}

	s.bc.Publish(regdom.ChangeEvent{Type: regdom.ChangeInsert, Record: r})
	return r, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (regdom.Registration, error) {
	if err := ctx.Err(); err != nil {
		return regdom.Registration{}, err
	}
	if s == nil || s.sqlDB == nil {
		return regdom.Registration{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return regdom.Registration{}, regdom.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+selectColumns+`
		   FROM community_registrations
		  WHERE id = ?`, id)
	r, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return regdom.Registration{}, regdom.ErrNotFound
		}
		return regdom.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return r, nil
}

// Update applies a moderation patch inside one transaction.
func (s *Store) Update(ctx context.Context, id string, p regdom.Patch) (regdom.Registration, error) {
	if err := ctx.Err(); err != nil {
		return regdom.Registration{}, err
	}
	if s == nil || s.sqlDB == nil {
		return regdom.Registration{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return regdom.Registration{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM community_registrations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return regdom.Registration{}, regdom.ErrNotFound
		}
		return regdom.Registration{}, fmt.Errorf("load registration: %w", err)
	}
	next, err := p.ApplyTo(cur)
	if err != nil {
		return regdom.Registration{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE community_registrations
		    SET project_name = ?, project_image_url = ?, description = ?,
		        twitter_url = ?, discord_url = ?, website_url = ?
		  WHERE id = ?`,
		next.ProjectName, next.ProjectImageURL, next.Description,
		next.TwitterURL, next.DiscordURL, next.WebsiteURL, id,
	); err != nil {
		return regdom.Registration{}, fmt.Errorf("update registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return regdom.Registration{}, fmt.Errorf("commit update: %w", err)
	}

	s.bc.Publish(regdom.ChangeEvent{Type: regdom.ChangeUpdate, Record: next})
	return next, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM community_registrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if n == 0 {
		return regdom.ErrNotFound
	}

	s.bc.Publish(regdom.ChangeEvent{Type: regdom.ChangeDelete, Record: regdom.Registration{ID: id}})
	return nil
}

// Subscribe returns an in-process subscription; ctx cancellation closes it.
func (s *Store) Subscribe(ctx context.Context) (regdom.Subscription, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	sub := s.bc.Subscribe()
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

func nullable(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "community_registrations.wallet_address")
}

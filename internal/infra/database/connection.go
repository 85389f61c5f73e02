package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"

	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

type DB struct {
	Client *sql.DB
	// DSN is kept for the LISTEN connection of the change feed.
	DSN string
}

// NewConnection initializes the PostgreSQL connection from a DATABASE_URL style DSN.
func NewConnection(dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	// Connection pool tuning
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	log.Println("[DB] Connected to PostgreSQL successfully")
	return &DB{Client: db, DSN: dsn}, nil
}

// EnsureSchema applies the community_registrations DDL (idempotent).
func (d *DB) EnsureSchema(ctx context.Context) error {
	if d == nil || d.Client == nil {
		return fmt.Errorf("database is not connected")
	}
	if _, err := d.Client.ExecContext(ctx, regdom.RegistrationsTableDDL); err != nil {
		return fmt.Errorf("apply registrations ddl: %w", err)
	}
	return nil
}

// Graceful shutdown
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

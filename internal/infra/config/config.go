// internal/infra/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Store drivers
const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
)

// Auth providers
const (
	AuthXaman   = "xaman"
	AuthAddress = "address"
)

// Config はアプリケーション全体の環境変数設定を保持します。
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// 登録ストア（sqlite | firestore | postgres）
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/registrations.sqlite"`

	GCPProjectID             string `env:"GCP_PROJECT_ID"`
	FirestoreProjectID       string `env:"FIRESTORE_PROJECT_ID"`
	FirestoreCredentialsFile string `env:"FIRESTORE_CREDENTIALS_FILE"`
	GCPCreds                 string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	RegistrationsCollection  string `env:"REGISTRATIONS_COLLECTION" envDefault:"community_registrations"`

	DatabaseURL string `env:"DATABASE_URL"`

	// プロジェクト画像（未設定ならアップロード無効）
	GCSBucket        string `env:"GCS_BUCKET"`
	GCSPublicBaseURL string `env:"GCS_PUBLIC_BASE_URL"`
	MaxImageBytes    int64  `env:"MAX_IMAGE_BYTES" envDefault:"5242880"`

	XRPLRPCEndpoint string `env:"XRPL_RPC_ENDPOINT" envDefault:"https://xrplcluster.com/"`
	IPFSGateway     string `env:"IPFS_GATEWAY" envDefault:"https://ipfs.io/ipfs/"`
	BOPIssuer       string `env:"BOP_NFT_ISSUER"`

	// ウォレット認証
	AuthProvider     string `env:"AUTH_PROVIDER" envDefault:"xaman"`
	XamanAPIKey      string `env:"XAMAN_API_KEY"`
	XamanAPISecret   string `env:"XAMAN_API_SECRET"`
	XamanAPISecretID string `env:"XAMAN_API_SECRET_ID"`

	// モデレーター（Firebase Auth）
	FirebaseProjectID string   `env:"FIREBASE_PROJECT_ID"`
	ModeratorUIDs     []string `env:"MODERATOR_UIDS" envSeparator:","`

	SendGridAPIKey     string   `env:"SENDGRID_API_KEY"`
	ModerationMailFrom string   `env:"MODERATION_MAIL_FROM"`
	ModerationMailTo   []string `env:"MODERATION_MAIL_TO" envSeparator:","`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
}

// Load は環境変数を読み込み Config を返します。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.AuthProvider = strings.ToLower(strings.TrimSpace(c.AuthProvider))
	c.BOPIssuer = strings.TrimSpace(c.BOPIssuer)
	c.ModeratorUIDs = compact(c.ModeratorUIDs)
	c.ModerationMailTo = compact(c.ModerationMailTo)
	c.CORSAllowedOrigins = compact(c.CORSAllowedOrigins)
}

// Validate checks the settings that have no safe fallback.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for STORE_DRIVER=sqlite")
		}
	case StoreFirestore:
		if c.GetFirestoreProjectID() == "" {
			return fmt.Errorf("config: FIRESTORE_PROJECT_ID (or GCP_PROJECT_ID) is required for STORE_DRIVER=firestore")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("config: DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.AuthProvider {
	case AuthXaman, AuthAddress:
	default:
		return fmt.Errorf("config: unknown AUTH_PROVIDER %q", c.AuthProvider)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("config: MAX_IMAGE_BYTES must be positive")
	}
	return nil
}

// GetFirestoreProjectID は Firestore/GCP プロジェクト ID を返します。
func (c *Config) GetFirestoreProjectID() string {
	return firstNonEmpty(c.FirestoreProjectID, c.GCPProjectID)
}

// Firebase 用の ProjectID（未指定なら GCP のデフォルト）
func (c *Config) GetFirebaseProjectID() string {
	return firstNonEmpty(c.FirebaseProjectID, c.GCPProjectID, c.FirestoreProjectID)
}

// Secret Manager 用の ProjectID
func (c *Config) GetSecretsProjectID() string {
	return firstNonEmpty(c.GCPProjectID, c.FirestoreProjectID)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func compact(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}

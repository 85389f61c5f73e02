// internal/platform/di/store.go
package di

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	pgrepo "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/db"
	fsrepo "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/firestore"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/sqlite"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/config"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/database"
	firestoreinfra "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/firestore"
)

// OpenStore opens the registration store selected by STORE_DRIVER.
// The returned closer releases the store and its underlying client.
func OpenStore(ctx context.Context, cfg *config.Config) (regdom.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreFirestore:
		projectID := cfg.GetFirestoreProjectID()
		cw, err := firestoreinfra.NewClient(ctx, projectID, cfg.FirestoreCredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("di: firestore: %w", err)
		}
		log.Printf("[di] store=firestore project=%s collection=%s", projectID, cfg.RegistrationsCollection)
		repo := fsrepo.NewRegistrationRepositoryFS(cw.Client, cfg.RegistrationsCollection)
		return repo, func() { _ = cw.Close() }, nil

	case config.StorePostgres:
		db, err := database.NewConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("di: postgres: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("di: postgres schema: %w", err)
		}
		log.Printf("[di] store=postgres")
		repo := pgrepo.NewRegistrationRepositoryPG(db.Client, db.DSN)
		return repo, func() { _ = db.Close() }, nil

	default:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("di: sqlite dir: %w", err)
		}
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("di: sqlite: %w", err)
		}
		log.Printf("[di] store=sqlite path=%s", cfg.SQLitePath)
		return st, func() { _ = st.Close() }, nil
	}
}

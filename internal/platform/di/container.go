// internal/platform/di/container.go
package di

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"

	httpin "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http/middleware"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/gcs"
	httpout "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/http"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/out/mail"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/resolver"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/usecase"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/config"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/secrets"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/walletauth"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/infra/xrpl"
	bopotel "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/platform/otel"
)

const serviceName = "bop-registry-api"

// ========================================
// Container (DI)
// ========================================

// Container は main.go から使う依存オブジェクトの束です。
type Container struct {
	Config *config.Config

	Store         regdom.Store
	Tokens        *usecase.TokenListUsecase
	Sessions      *usecase.SessionManager
	Registrations *usecase.RegistrationUsecase
	Moderation    *usecase.ModerationUsecase
	ModeratorAuth *middleware.ModeratorAuth

	// Live は GET /registrations の背後で常時動く synchronizer
	Live *usecase.RegistrationSynchronizer

	cleanupFn []func()
}

// NewContainer loads the configuration from the environment and wires every dependency.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return Build(ctx, cfg)
}

// Build wires the container from cfg. Optional integrations (GCS, SendGrid,
// Firebase, Secret Manager) that fail to initialise are logged and left disabled;
// only the registration store is mandatory.
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	// base ctx: sessions の裏で走る検証と live synchronizer の寿命
	base, cancel := context.WithCancel(context.Background())
	c.addCleanup(cancel)

	// ------------------------------------------------------------
	// 0. Tracing
	// ------------------------------------------------------------
	shutdown, err := bopotel.Setup(ctx, serviceName, bopotel.Options{
		Endpoint: cfg.OTelEndpoint,
		Enabled:  cfg.OTelEnabled,
	})
	if err != nil {
		log.Printf("[di] WARN: otel setup failed: %v (tracing disabled)", err)
	}
	c.addCleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdown(sctx); err != nil {
			log.Printf("[di] WARN: otel shutdown: %v", err)
		}
	})

	// ------------------------------------------------------------
	// 1. Registration store
	// ------------------------------------------------------------
	store, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.addCleanup(closeStore)
	c.Store = store

	// ------------------------------------------------------------
	// 2. XRPL + metadata
	// ------------------------------------------------------------
	ledger := xrpl.NewLedgerReader(cfg.XRPLRPCEndpoint)
	fetcher := httpout.NewMetadataFetcher(&http.Client{Timeout: 10 * time.Second})
	res := resolver.NewMetadataResolver(fetcher, cfg.IPFSGateway)
	c.Tokens = usecase.NewTokenListUsecase(ledger, res)
	log.Printf("[di] XRPL endpoint=%s ipfsGateway=%s issuer=%q", cfg.XRPLRPCEndpoint, res.Gateway, cfg.BOPIssuer)

	// ------------------------------------------------------------
	// 3. Wallet sessions
	// ------------------------------------------------------------
	auth := c.walletAuthorizer(ctx, cfg)
	c.Sessions = usecase.NewSessionManager(base, auth, c.Tokens, cfg.BOPIssuer)

	// ------------------------------------------------------------
	// 4. Registration submission (+ optional image storage / notification)
	// ------------------------------------------------------------
	c.Registrations = usecase.NewRegistrationUsecase(c.Sessions, store)
	c.Registrations.MaxImageBytes = cfg.MaxImageBytes

	c.Moderation = usecase.NewModerationUsecase(store)

	if images := c.projectImages(ctx, cfg); images != nil {
		c.Registrations.WithImages(images)
		c.Moderation.WithImages(images)
	}
	if mailer := registrationMailer(cfg); mailer != nil {
		c.Registrations.WithNotifier(mailer)
	}

	// ------------------------------------------------------------
	// 5. Moderator auth (Firebase)
	// ------------------------------------------------------------
	c.ModeratorAuth = middleware.NewModeratorAuth(firebaseVerifier(ctx, cfg), cfg.ModeratorUIDs)

	// ------------------------------------------------------------
	// 6. Live registration list
	// ------------------------------------------------------------
	c.Live = usecase.NewRegistrationSynchronizer(store)
	go func() {
		if err := c.Live.Run(base, nil); err != nil {
			log.Printf("[di] live registration feed stopped: %v", err)
		}
	}()

	return c, nil
}

// RouterDeps は HTTP ルーターに渡す依存を返します。
func (c *Container) RouterDeps() httpin.RouterDeps {
	store := c.Store
	return httpin.RouterDeps{
		Sessions:      c.Sessions,
		Tokens:        c.Tokens,
		Registrations: c.Registrations,
		LiveFeed:      c.Live,
		NewFeedSync:   func() *usecase.RegistrationSynchronizer { return usecase.NewRegistrationSynchronizer(store) },
		Moderation:    c.Moderation,
		ModeratorAuth: c.ModeratorAuth,
		CORSOrigins:   c.Config.CORSAllowedOrigins,
	}
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.cleanupFn) - 1; i >= 0; i-- {
		c.cleanupFn[i]()
	}
	c.cleanupFn = nil
}

func (c *Container) addCleanup(fn func()) {
	c.cleanupFn = append(c.cleanupFn, fn)
}

// ========================================
// Wallet authorization
// ========================================

func (c *Container) walletAuthorizer(ctx context.Context, cfg *config.Config) usecase.WalletAuthorizer {
	if cfg.AuthProvider == config.AuthAddress {
		log.Printf("[di] wallet auth=address (typed address, no signature)")
		return walletauth.NewAddressProvider()
	}

	secret := strings.TrimSpace(cfg.XamanAPISecret)
	if secret == "" && strings.TrimSpace(cfg.XamanAPISecretID) != "" {
		s, err := c.readSecret(ctx, cfg, cfg.XamanAPISecretID)
		if err != nil {
			log.Printf("[di] WARN: xaman api secret %s: %v", cfg.XamanAPISecretID, err)
		}
		secret = s
	}
	if strings.TrimSpace(cfg.XamanAPIKey) == "" || secret == "" {
		log.Printf("[di] WARN: XAMAN_API_KEY / secret missing; wallet connect disabled")
		return &walletauth.DisabledProvider{Reason: "xaman credentials missing"}
	}
	log.Printf("[di] wallet auth=xaman")
	return walletauth.NewXamanProvider(cfg.XamanAPIKey, secret)
}

func (c *Container) readSecret(ctx context.Context, cfg *config.Config, secretID string) (string, error) {
	projectID := cfg.GetSecretsProjectID()
	if projectID == "" && !strings.HasPrefix(secretID, "projects/") {
		return "", fmt.Errorf("GCP_PROJECT_ID is required to read secret %q", secretID)
	}
	sm, err := secrets.NewSecretProviderSM(ctx, projectID)
	if err != nil {
		return "", err
	}
	defer func() { _ = sm.Close() }()
	return sm.Get(ctx, secretID)
}

// ========================================
// Optional integrations
// ========================================

func (c *Container) projectImages(ctx context.Context, cfg *config.Config) *gcs.ProjectImageRepositoryGCS {
	bucket := strings.TrimSpace(cfg.GCSBucket)
	if bucket == "" {
		log.Printf("[di] GCS_BUCKET is empty; project image uploads disabled")
		return nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		log.Printf("[di] WARN: storage.NewClient failed: %v (project image uploads disabled)", err)
		return nil
	}
	c.addCleanup(func() { _ = client.Close() })

	repo := gcs.NewProjectImageRepositoryGCS(client, bucket)
	repo.MaxBytes = cfg.MaxImageBytes
	if base := strings.TrimSpace(cfg.GCSPublicBaseURL); base != "" {
		repo.PublicBaseURL = base
	}
	log.Printf("[di] project images bucket=%s", bucket)
	return repo
}

func registrationMailer(cfg *config.Config) *mail.RegistrationMailer {
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" || len(cfg.ModerationMailTo) == 0 {
		return nil
	}
	log.Printf("[di] registration notifications -> %d recipient(s)", len(cfg.ModerationMailTo))
	return mail.NewRegistrationMailer(mail.NewSendGridClient(cfg.SendGridAPIKey), cfg.ModerationMailFrom, cfg.ModerationMailTo)
}

// firebaseVerifier returns nil when Firebase is not configured; the admin
// routes then answer 503.
func firebaseVerifier(ctx context.Context, cfg *config.Config) middleware.IDTokenVerifier {
	projectID := cfg.GetFirebaseProjectID()
	if projectID == "" {
		log.Printf("[di] WARN: FIREBASE_PROJECT_ID is empty; moderation disabled")
		return nil
	}
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		log.Printf("[di] WARN: firebase app init failed: %v", err)
		return nil
	}
	authClient, err := fbApp.Auth(ctx)
	if err != nil {
		log.Printf("[di] WARN: firebase auth init failed: %v", err)
		return nil
	}
	log.Printf("[di] Firebase Auth initialized")
	return authClient
}

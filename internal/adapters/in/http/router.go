// internal/adapters/in/http/router.go
package httpin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http/handlers"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http/middleware"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/usecase"
)

// RouterDeps はルーターが必要とする依存関係です。
// nil の usecase に対応するルートはマウントされません。
type RouterDeps struct {
	Sessions      *usecase.SessionManager
	Tokens        usecase.TokenLister
	Registrations *usecase.RegistrationUsecase
	LiveFeed      *usecase.RegistrationSynchronizer
	NewFeedSync   func() *usecase.RegistrationSynchronizer
	Moderation    *usecase.ModerationUsecase
	ModeratorAuth *middleware.ModeratorAuth

	CORSOrigins []string
}

// NewRouter builds the public API.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CORS(deps.CORSOrigins))
	r.Use(middleware.Recover)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var regHandler *handlers.RegistrationHandler
	if deps.Registrations != nil || deps.LiveFeed != nil {
		regHandler = handlers.NewRegistrationHandler(deps.Registrations, deps.LiveFeed, deps.NewFeedSync)
	}

	if deps.Sessions != nil {
		sh := handlers.NewSessionHandler(deps.Sessions)
		if regHandler != nil && deps.Registrations != nil {
			sh.WithSubmit(regHandler.Submit)
		}
		r.Route("/sessions", sh.Routes)
	}

	if regHandler != nil {
		r.Get("/registrations", regHandler.List)
		r.Get("/registrations/stream", regHandler.Stream)
	}

	if deps.Tokens != nil {
		r.Method(http.MethodGet, "/nfts/{account}", handlers.NewNFTHandler(deps.Tokens))
	}

	if deps.Moderation != nil {
		ah := handlers.NewAdminRegistrationHandler(deps.Moderation)
		r.Route("/admin/registrations", func(r chi.Router) {
			r.Use(deps.ModeratorAuth.Handler)
			ah.Routes(r)
		})
	}

	return r
}

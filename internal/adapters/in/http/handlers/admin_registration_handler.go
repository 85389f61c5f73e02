// internal/adapters/in/http/handlers/admin_registration_handler.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http/handlers/common"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http/middleware"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/usecase"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

// AdminRegistrationHandler は /admin/registrations（モデレーター専用）を担当します。
// middleware.ModeratorAuth の内側にマウントすること。
type AdminRegistrationHandler struct {
	uc *usecase.ModerationUsecase
}

func NewAdminRegistrationHandler(uc *usecase.ModerationUsecase) *AdminRegistrationHandler {
	return &AdminRegistrationHandler{uc: uc}
}

func (h *AdminRegistrationHandler) Routes(r chi.Router) {
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

// PATCH /admin/registrations/{id}
func (h *AdminRegistrationHandler) update(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.ModeratorUID(r)

	var patch regdom.Patch
	if err := common.DecodeJSON(r, &patch); err != nil {
		common.BadRequest(w, "invalid json")
		return
	}
	updated, err := h.uc.Update(r.Context(), uid, chi.URLParam(r, "id"), patch)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, RegistrationView{Registration: updated, DisplayImageURL: updated.DisplayImageURL()})
}

// DELETE /admin/registrations/{id}
func (h *AdminRegistrationHandler) delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.ModeratorUID(r)
	if err := h.uc.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

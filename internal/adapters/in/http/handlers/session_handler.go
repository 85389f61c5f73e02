// internal/adapters/in/http/handlers/session_handler.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http/handlers/common"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/usecase"
)

// SessionHandler は /sessions 関連のエンドポイントを担当します。
// One session = one browser tab's wallet verification state.
type SessionHandler struct {
	sessions *usecase.SessionManager
	// submit handles POST /sessions/{id}/registration (nil: not mounted)
	submit http.HandlerFunc
}

func NewSessionHandler(sessions *usecase.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// WithSubmit mounts the registration submission under the session.
func (h *SessionHandler) WithSubmit(submit http.HandlerFunc) *SessionHandler {
	h.submit = submit
	return h
}

// Routes mounts the session endpoints on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.delete)
		r.Post("/connect", h.connect)
		r.Post("/select", h.selectToken)
		r.Post("/disconnect", h.disconnect)
		if h.submit != nil {
			r.Post("/registration", h.submit)
		}
	})
}

// POST /sessions
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	common.WriteJSON(w, http.StatusCreated, s.View())
}

// GET /sessions/{id}
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, s.View())
}

// DELETE /sessions/{id}
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /sessions/{id}/connect {address?}
//
// Verification runs in the background; poll GET /sessions/{id} for the result.
func (h *SessionHandler) connect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address string `json:"address"`
	}
	if err := common.DecodeJSON(r, &body); err != nil {
		common.BadRequest(w, "invalid json")
		return
	}
	view, err := h.sessions.Connect(chi.URLParam(r, "id"), strings.TrimSpace(body.Address))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusAccepted, view)
}

// POST /sessions/{id}/select {tokenId}
func (h *SessionHandler) selectToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TokenID string `json:"tokenId"`
	}
	if err := common.DecodeJSON(r, &body); err != nil {
		common.BadRequest(w, "invalid json")
		return
	}
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, s.SelectToken(strings.TrimSpace(body.TokenID)))
}

// POST /sessions/{id}/disconnect
func (h *SessionHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, s.Disconnect(r.Context()))
}

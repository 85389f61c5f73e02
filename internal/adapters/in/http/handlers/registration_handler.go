// internal/adapters/in/http/handlers/registration_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/adapters/in/http/handlers/common"
	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/application/usecase"
	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

const projectImageField = "projectImage"

const (
	formOverhead     = 1 << 20 // multipart のフォーム部分の余裕
	multipartMemory  = 8 << 20
	streamHeartbeat  = 25 * time.Second
	streamBufferSize = 16
)

// RegistrationView is a registration plus the image a card should show.
type RegistrationView struct {
	regdom.Registration
	DisplayImageURL *string `json:"displayImageUrl"`
}

func viewsOf(items []regdom.Registration) []RegistrationView {
	out := make([]RegistrationView, 0, len(items))
	for _, r := range items {
		out = append(out, RegistrationView{Registration: r, DisplayImageURL: r.DisplayImageURL()})
	}
	return out
}

// RegistrationHandler serves submission, the live list and its SSE stream.
type RegistrationHandler struct {
	uc *usecase.RegistrationUsecase
	// live is the server-wide synchronizer behind GET /registrations.
	live *usecase.RegistrationSynchronizer
	// newSync builds one synchronizer per stream client.
	newSync func() *usecase.RegistrationSynchronizer

	maxImageBytes int64
}

func NewRegistrationHandler(
	uc *usecase.RegistrationUsecase,
	live *usecase.RegistrationSynchronizer,
	newSync func() *usecase.RegistrationSynchronizer,
) *RegistrationHandler {
	limit := regdom.DefaultMaxImageBytes
	if uc != nil && uc.MaxImageBytes > 0 {
		limit = uc.MaxImageBytes
	}
	return &RegistrationHandler{uc: uc, live: live, newSync: newSync, maxImageBytes: limit}
}

// POST /sessions/{id}/registration (multipart/form-data)
func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.WriteError(w, r, regdom.ErrImageTooLarge)
			return
		}
		common.BadRequest(w, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in := usecase.SubmitInput{
		Form: regdom.Form{
			ProjectName: r.FormValue("projectName"),
			Description: r.FormValue("description"),
			TwitterURL:  r.FormValue("twitterUrl"),
			DiscordURL:  r.FormValue("discordUrl"),
			WebsiteURL:  r.FormValue("websiteUrl"),
		},
	}

	file, header, err := r.FormFile(projectImageField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		common.BadRequest(w, "invalid project image")
		return
	default:
		defer file.Close()
		// 上限 +1 byte まで読む（超過は usecase が判定）
		data, err := io.ReadAll(io.LimitReader(file, h.maxImageBytes+1))
		if err != nil {
			common.BadRequest(w, "invalid project image")
			return
		}
		if len(data) > 0 {
			in.Image = &usecase.ImageUpload{Filename: header.Filename, Data: data}
		}
	}

	created, err := h.uc.Submit(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, RegistrationView{Registration: created, DisplayImageURL: created.DisplayImageURL()})
}

// GET /registrations
func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.live == nil || !h.live.Loaded() {
		w.Header().Set("Retry-After", "2")
		common.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Registrations are loading"})
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{"registrations": viewsOf(h.live.Items())})
}

type streamMessage struct {
	Type          string             `json:"type"`
	Record        *RegistrationView  `json:"record,omitempty"`
	Registrations []RegistrationView `json:"registrations"`
}

// GET /registrations/stream (text/event-stream)
//
// Each client gets its own synchronizer: a "snapshot" event first (and again
// after any reload), then insert/update/delete events carrying the full list.
func (h *RegistrationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || h.newSync == nil {
		common.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := make(chan usecase.SyncUpdate, streamBufferSize)
	syncer := h.newSync()
	done := make(chan error, 1)
	go func() {
		done <- syncer.Run(ctx, func(u usecase.SyncUpdate) {
			select {
			case updates <- u:
			case <-ctx.Done():
			}
		})
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-done:
			if err != nil {
				log.Printf("[sse] registration stream ended: %v", err)
			}
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case u := <-updates:
			if err := writeSSE(w, u); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, u usecase.SyncUpdate) error {
	msg := streamMessage{Type: string(u.Kind), Registrations: viewsOf(u.Items)}
	if u.Event != nil && u.Kind != usecase.SyncSnapshot {
		rec := RegistrationView{Registration: u.Event.Record, DisplayImageURL: u.Event.Record.DisplayImageURL()}
		msg.Record = &rec
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
	return err
}

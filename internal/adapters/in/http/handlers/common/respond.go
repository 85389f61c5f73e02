package common

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	domcommon "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] WARN: encode response: %v", err)
	}
}

// StatusOf maps a classified error to its HTTP status.
//   - validation → 400, not found → 404, conflict → 409, transient → 503
//   - anything else → 500
func StatusOf(err error) int {
	kind, ok := domcommon.KindOf(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
	switch kind {
	case domcommon.KindValidation:
		return http.StatusBadRequest
	case domcommon.KindNotFound:
		return http.StatusNotFound
	case domcommon.KindConflict:
		return http.StatusConflict
	case domcommon.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError writes {"error": msg}. Classified errors carry their user-facing
// message; anything else is logged and hidden behind a generic one.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	msg := err.Error()
	if _, ok := domcommon.KindOf(err); !ok {
		log.Printf("[http] %s %s: %v", r.Method, r.URL.Path, err)
		msg = http.StatusText(status)
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// BadRequest writes a 400 with msg.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// DecodeJSON decodes a small JSON body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

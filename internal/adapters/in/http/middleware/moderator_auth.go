// internal/adapters/in/http/middleware/moderator_auth.go
package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
)

// FirebaseAuthClient は firebase auth クライアントのエイリアス。
type FirebaseAuthClient = fbauth.Client

// IDTokenVerifier is the part of *fbauth.Client the middleware needs.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// context key は string を使わず、衝突回避のため独自型を使用
type ctxKey struct{ name string }

var ctxKeyModeratorUID = ctxKey{name: "moderatorUid"}

// ModeratorClaim is the custom claim that marks a moderator account.
const ModeratorClaim = "moderator"

// ModeratorAuth は
//
//   - Authorization: Bearer <ID_TOKEN>
//
// を検証し、UID が許可リストにある、またはカスタムクレーム moderator=true を持つ場合のみ通す。
type ModeratorAuth struct {
	Verifier IDTokenVerifier
	uids     map[string]struct{}
}

func NewModeratorAuth(verifier IDTokenVerifier, uids []string) *ModeratorAuth {
	m := &ModeratorAuth{Verifier: verifier, uids: make(map[string]struct{}, len(uids))}
	for _, u := range uids {
		if u = strings.TrimSpace(u); u != "" {
			m.uids[u] = struct{}{}
		}
	}
	return m
}

func (m *ModeratorAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 依存チェック
		if m == nil || m.Verifier == nil {
			writeAuthError(w, http.StatusServiceUnavailable, "moderation is not configured")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized: missing bearer token")
			return
		}
		idToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if idToken == "" {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized: empty bearer token")
			return
		}

		token, err := m.Verifier.VerifyIDToken(r.Context(), idToken)
		if err != nil || token == nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		uid := strings.TrimSpace(token.UID)
		if uid == "" {
			writeAuthError(w, http.StatusUnauthorized, "invalid uid in token")
			return
		}
		if !m.allowed(uid, token.Claims) {
			log.Printf("[ModeratorAuth] denied path=%s uid=%s", r.URL.Path, uid)
			writeAuthError(w, http.StatusForbidden, "forbidden: not a moderator")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyModeratorUID, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *ModeratorAuth) allowed(uid string, claims map[string]any) bool {
	if _, ok := m.uids[uid]; ok {
		return true
	}
	v, ok := claims[ModeratorClaim].(bool)
	return ok && v
}

// ModeratorUID は middleware で検証された UID を返します。
func ModeratorUID(r *http.Request) (string, bool) {
	s, ok := r.Context().Value(ctxKeyModeratorUID).(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

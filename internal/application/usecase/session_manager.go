// internal/application/usecase/session_manager.go
package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/common"
)

var ErrSessionNotFound = common.NotFound("Session not found")

// SessionManager owns wallet sessions by id (one per client tab).
// Sessions live until deleted or the process exits.
type SessionManager struct {
	Auth   WalletAuthorizer
	Lister TokenLister
	Issuer string

	// base outlives individual requests; background verifications run under it.
	base context.Context

	mu       sync.RWMutex
	sessions map[string]*WalletSession
}

func NewSessionManager(base context.Context, auth WalletAuthorizer, lister TokenLister, issuer string) *SessionManager {
	if base == nil {
		base = context.Background()
	}
	return &SessionManager{
		Auth:     auth,
		Lister:   lister,
		Issuer:   strings.TrimSpace(issuer),
		base:     base,
		sessions: make(map[string]*WalletSession),
	}
}

func (m *SessionManager) Create() *WalletSession {
	s := NewWalletSession(uuid.NewString(), m.Auth, m.Lister, m.Issuer)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

func (m *SessionManager) Get(id string) (*WalletSession, error) {
	id = strings.TrimSpace(id)
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Connect starts a background verification for session id.
func (m *SessionManager) Connect(id, address string) (SessionView, error) {
	s, err := m.Get(id)
	if err != nil {
		return SessionView{}, err
	}
	// 検証本体は request ではなく base ctx で走らせる
	return s.ConnectAsync(m.base, address)
}

// Delete disconnects (best-effort logout) and forgets the session.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Disconnect(ctx)
	return nil
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

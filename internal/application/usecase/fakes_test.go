package usecase

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

// memStore is an in-memory registration store with a wallet uniqueness
// constraint and a fan-out change feed.
type memStore struct {
	mu        sync.Mutex
	rows      map[string]regdom.Registration
	seq       int
	createErr error
	listErr   error
	listCalls int
	subErr    error
	subs      []*memSub
	subCalls  int
	clock     time.Time
}

func newMemStore(initial ...regdom.Registration) *memStore {
	s := &memStore{rows: map[string]regdom.Registration{}, clock: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}
	for _, r := range initial {
		s.rows[r.ID] = r
	}
	return s
}

func (s *memStore) ListAll(context.Context) ([]regdom.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]regdom.Registration, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) Create(_ context.Context, r regdom.Registration) (regdom.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return regdom.Registration{}, s.createErr
	}
	for _, existing := range s.rows {
		if existing.WalletAddress == r.WalletAddress {
			return regdom.Registration{}, regdom.ErrConflict
		}
	}
	s.seq++
	s.clock = s.clock.Add(time.Minute)
	r.ID = "reg-" + strconv.Itoa(s.seq)
	r.CreatedAt = s.clock
	s.rows[r.ID] = r
	s.emitLocked(regdom.ChangeEvent{Type: regdom.ChangeInsert, Record: r})
	return r, nil
}

func (s *memStore) Subscribe(context.Context) (regdom.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subCalls++
	if s.subErr != nil {
		return nil, s.subErr
	}
	sub := &memSub{ch: make(chan regdom.ChangeEvent, 16)}
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (s *memStore) emit(ev regdom.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case regdom.ChangeDelete:
		delete(s.rows, ev.Record.ID)
	default:
		s.rows[ev.Record.ID] = ev.Record
	}
	s.emitLocked(ev)
}

func (s *memStore) emitLocked(ev regdom.ChangeEvent) {
	for _, sub := range s.subs {
		sub.send(ev)
	}
}

// failSubscriptions ends every live subscription with err.
func (s *memStore) failSubscriptions(err error) {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fail(err)
	}
}

func (s *memStore) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memSub struct {
	mu     sync.Mutex
	ch     chan regdom.ChangeEvent
	done   bool
	err    error
	closes int
}

func (m *memSub) Events() <-chan regdom.ChangeEvent { return m.ch }

func (m *memSub) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *memSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	if !m.done {
		m.done = true
		close(m.ch)
	}
	return nil
}

func (m *memSub) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *memSub) send(ev regdom.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.done {
		m.ch <- ev
	}
}

func (m *memSub) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.done {
		m.err = err
		m.done = true
		close(m.ch)
	}
}

var errFeedDropped = errors.New("change feed connection dropped")

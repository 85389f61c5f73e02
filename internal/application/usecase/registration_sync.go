// internal/application/usecase/registration_sync.go
package usecase

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

// RegistrationSource is the read side of the registration store.
type RegistrationSource interface {
	ListAll(ctx context.Context) ([]regdom.Registration, error)
	Subscribe(ctx context.Context) (regdom.Subscription, error)
}

// SyncUpdateKind: "snapshot" は一覧の全置換、それ以外は変更イベント
type SyncUpdateKind string

const SyncSnapshot SyncUpdateKind = "snapshot"

// SyncUpdate is what the synchronizer publishes. Items is always the full,
// newest-first list after the update.
type SyncUpdate struct {
	Kind  SyncUpdateKind
	Event *regdom.ChangeEvent
	Items []regdom.Registration
}

// SyncSink receives updates in order, from the Run goroutine.
type SyncSink func(SyncUpdate)

// RegistrationSynchronizer keeps a live, newest-first registration list.
//
// One Run = one active view. The change subscription is opened before the bulk
// load so nothing committed in between is lost; replayed events are harmless
// because Feed.Apply is idempotent per id. When the subscription fails, Run
// waits (exponential backoff), re-runs the bulk load and resubscribes.
type RegistrationSynchronizer struct {
	Source RegistrationSource

	// NewBackOff is overridable in tests.
	NewBackOff func() backoff.BackOff

	mu   sync.RWMutex
	feed *regdom.Feed
}

func NewRegistrationSynchronizer(src RegistrationSource) *RegistrationSynchronizer {
	return &RegistrationSynchronizer{
		Source: src,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Items returns the current list (nil before the first bulk load).
func (s *RegistrationSynchronizer) Items() []regdom.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.feed == nil {
		return nil
	}
	return s.feed.Items()
}

// Loaded reports whether the first bulk load has completed.
func (s *RegistrationSynchronizer) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed != nil
}

// Run blocks until ctx is done. It returns nil on cancellation.
func (s *RegistrationSynchronizer) Run(ctx context.Context, sink SyncSink) error {
	if s == nil || s.Source == nil {
		return errors.New("registration sync: source not configured")
	}
	if sink == nil {
		sink = func(SyncUpdate) {}
	}
	bo := s.NewBackOff()
	bo.Reset()

	for {
		err := s.session(ctx, sink, bo)
		if ctx.Err() != nil {
			return nil
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		log.Printf("[sync] change feed interrupted, reloading in %s: %v", wait, err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// session runs one subscribe → bulk load → apply loop. The subscription is
// closed exactly once whatever way the loop ends.
func (s *RegistrationSynchronizer) session(ctx context.Context, sink SyncSink, bo backoff.BackOff) error {
	sub, err := s.Source.Subscribe(ctx)
	if err != nil {
		return err
	}
	var once sync.Once
	closeSub := func() {
		once.Do(func() {
			if err := sub.Close(); err != nil {
				log.Printf("[sync] WARN: close subscription: %v", err)
			}
		})
	}
	defer closeSub()

	items, err := s.Source.ListAll(ctx)
	if err != nil {
		return err
	}
	feed := regdom.NewFeed(items)
	s.mu.Lock()
	s.feed = feed
	snapshot := feed.Items()
	s.mu.Unlock()
	sink(SyncUpdate{Kind: SyncSnapshot, Items: snapshot})
	bo.Reset()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			closeSub()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return errors.New("registration sync: change feed closed")
			}
			s.mu.Lock()
			changed := s.feed.Apply(ev)
			next := s.feed.Items()
			s.mu.Unlock()
			if !changed {
				continue
			}
			e := ev
			sink(SyncUpdate{Kind: SyncUpdateKind(ev.Type), Event: &e, Items: next})
		}
	}
}

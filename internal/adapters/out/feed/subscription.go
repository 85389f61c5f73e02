// Package feed holds the change-feed plumbing shared by the registration stores.
package feed

import (
	"context"
	"errors"
	"sync"

	regdom "github.com/TheMuddySociety/bop-xrpl-nfts-landing-page/internal/domain/registration"
)

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 64

// ErrLagging ends a subscription whose consumer fell more than one buffer behind.
// The consumer is expected to reload and resubscribe.
var ErrLagging = errors.New("feed: subscriber lagging, events dropped")

// Subscription is a buffered regdom.Subscription fed by a store adapter.
// Send never blocks: a full buffer fails the subscription with ErrLagging.
type Subscription struct {
	ch      chan regdom.ChangeEvent
	closed  chan struct{}
	onClose func()

	// senders hold sendMu.RLock; ch is closed only under the write lock
	sendMu sync.RWMutex

	mu   sync.Mutex
	done bool
	err  error
}

// NewSubscription creates a subscription. onClose (may be nil) runs once, on the
// first Close or Fail, outside the lock.
func NewSubscription(buffer int, onClose func()) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscription{
		ch:      make(chan regdom.ChangeEvent, buffer),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

func (s *Subscription) Events() <-chan regdom.ChangeEvent { return s.ch }

func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send delivers ev. It reports false when the subscription is (now) closed.
func (s *Subscription) Send(ev regdom.ChangeEvent) bool {
	s.sendMu.RLock()
	select {
	case <-s.closed:
		s.sendMu.RUnlock()
		return false
	default:
	}
	select {
	case s.ch <- ev:
		s.sendMu.RUnlock()
		return true
	default:
	}
	s.sendMu.RUnlock()
	s.Fail(ErrLagging)
	return false
}

// SendWait delivers ev, waiting for buffer space. Used for initial batches that
// may exceed the buffer before the consumer starts reading. It reports false
// when the subscription ended or ctx was cancelled first.
func (s *Subscription) SendWait(ctx context.Context, ev regdom.ChangeEvent) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.ch <- ev:
		return true
	case <-s.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// Fail ends the subscription with err (first end wins).
func (s *Subscription) Fail(err error) {
	s.finish(err)
}

// Close ends the subscription without error. Safe to call more than once.
func (s *Subscription) Close() error {
	s.finish(nil)
	return nil
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.closed }

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.err = err
	close(s.closed)
	s.mu.Unlock()

	// blocked SendWait callers wake on closed and release the read lock
	s.sendMu.Lock()
	close(s.ch)
	s.sendMu.Unlock()

	if s.onClose != nil {
		s.onClose()
	}
}

// Broadcaster fans events out to in-process subscribers.
type Broadcaster struct {
	buffer int

	mu   sync.Mutex
	next int
	subs map[int]*Subscription
}

func NewBroadcaster(buffer int) *Broadcaster {
	return &Broadcaster{buffer: buffer, subs: make(map[int]*Subscription)}
}

func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := NewSubscription(b.buffer, func() { b.remove(id) })
	b.subs[id] = sub
	return sub
}

func (b *Broadcaster) Publish(ev regdom.ChangeEvent) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Send(ev)
	}
}

// CloseAll ends every subscription with err (nil = clean close).
func (b *Broadcaster) CloseAll(err error) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.finish(err)
	}
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) remove(id int) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

package events

import (
	"sync"
	"time"

	"tallybook/internal/models"
)

// Subscription receives sync signals until Unsubscribe is called or the
// broadcaster is closed, after which C is closed.
type Subscription struct {
	C <-chan models.SyncSignal

	ch   chan models.SyncSignal
	b    *Broadcaster
	once sync.Once
}

// Unsubscribe stops delivery and closes C. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.b.remove(s)
	})
}

// Broadcaster fans reconciliation completions out to read-views.
type Broadcaster struct {
	mu     sync.Mutex
	seq    uint64
	last   *models.SyncSignal
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBroadcaster constructs a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. A subscription taken after Close
// starts closed.
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan models.SyncSignal, models.SubscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, b: b}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// SubscribeFunc calls fn on its own goroutine for every signal. The returned
// function unsubscribes.
func (b *Broadcaster) SubscribeFunc(fn func(models.SyncSignal)) func() {
	sub := b.Subscribe()
	go func() {
		for sig := range sub.C {
			fn(sig)
		}
	}()
	return sub.Unsubscribe
}

// SignalCompletion records a finished pass and delivers it without blocking.
// A subscriber that has not consumed its previous signal gets the newer one
// in its place.
func (b *Broadcaster) SignalCompletion(result models.DrainResult) models.SyncSignal {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sig := models.SyncSignal{Seq: b.seq, At: time.Now().UTC(), Result: result}
	b.last = &sig

	for sub := range b.subs {
		select {
		case sub.ch <- sig:
			continue
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- sig:
		default:
		}
	}
	return sig
}

// Last returns the most recent signal, if any.
func (b *Broadcaster) Last() (models.SyncSignal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return models.SyncSignal{}, false
	}
	return *b.last, true
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription. Later signals are still counted.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Package events carries ledger state changes to in-process consumers
// (notification fan-out) and to connected clients (cache invalidation).
package events

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"go.uber.org/zap"
)

var handlerFailures = expvar.NewInt("event_handler_failures_total")

// TransactionChanged is emitted after a ledger mutation has committed.
type TransactionChanged struct {
	Scenario    models.NotificationScenario `json:"scenario"`
	Transaction models.CashTransaction      `json:"transaction"`
	OccurredAt  time.Time                   `json:"occurred_at"`
}

type Handler func(ctx context.Context, e TransactionChanged) error

// Publisher is what the ledger depends on.
type Publisher interface {
	Publish(ctx context.Context, e TransactionChanged)
}

type subscriber struct {
	name string
	fn   Handler
}

// Bus delivers events synchronously to subscribers and best-effort to
// watchers. A failing subscriber never affects the publisher or its peers.
type Bus struct {
	log *zap.Logger

	mu          sync.RWMutex
	subscribers []subscriber
	watchers    map[int]chan TransactionChanged
	nextWatch   int
	closed      bool
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		log:      log,
		watchers: make(map[int]chan TransactionChanged),
	}
}

func (b *Bus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, subscriber{name: name, fn: fn})
}

func (b *Bus) Publish(ctx context.Context, e TransactionChanged) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	// the mutation already committed; a cancelled request must not cut the fan-out short
	ctx = context.WithoutCancel(ctx)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.log.Warn("event published after bus closed", zap.String("transaction_id", e.Transaction.ID))
		return
	}
	subs := append([]subscriber(nil), b.subscribers...)
	for id, ch := range b.watchers {
		select {
		case ch <- e:
		default:
			b.log.Warn("event watcher is slow, dropping event", zap.Int("watcher", id))
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.deliver(ctx, s, e); err != nil {
			handlerFailures.Add(1)
			b.log.Error("event subscriber failed",
				zap.String("subscriber", s.name),
				zap.String("scenario", string(e.Scenario)),
				zap.String("transaction_id", e.Transaction.ID),
				zap.String("branch", e.Transaction.Branch),
				zap.Error(err))
		}
	}
}

func (b *Bus) deliver(ctx context.Context, s subscriber, e TransactionChanged) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.fn(ctx, e)
}

// Watch registers a buffered stream of events. The returned func stops it.
func (b *Bus) Watch(buffer int) (<-chan TransactionChanged, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan TransactionChanged, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextWatch
	b.nextWatch++
	b.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if w, ok := b.watchers[id]; ok {
				delete(b.watchers, id)
				close(w)
			}
		})
	}
}

// Close ends every watcher stream and rejects further publishing.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.watchers {
		delete(b.watchers, id)
		close(ch)
	}
}

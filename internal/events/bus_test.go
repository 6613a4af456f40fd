package events

import (
	"context"
	"errors"
	"testing"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"go.uber.org/zap/zaptest"
)

func TestPublishIsolatesFailingSubscribers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	var got []string
	bus.Subscribe("broken", func(context.Context, TransactionChanged) error {
		return errors.New("smtp down")
	})
	bus.Subscribe("panicky", func(context.Context, TransactionChanged) error {
		panic("nil map")
	})
	bus.Subscribe("recorder", func(_ context.Context, e TransactionChanged) error {
		got = append(got, e.Transaction.ID)
		return nil
	})

	bus.Publish(context.Background(), TransactionChanged{
		Scenario:    models.ScenarioPending,
		Transaction: models.CashTransaction{ID: "tx-1"},
	})

	if len(got) != 1 || got[0] != "tx-1" {
		t.Fatalf("recorder saw %v, want [tx-1]", got)
	}
}

func TestPublishIgnoresCancelledContext(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ctxErr error
	bus.Subscribe("ctx", func(ctx context.Context, _ TransactionChanged) error {
		ctxErr = ctx.Err()
		return nil
	})
	bus.Publish(ctx, TransactionChanged{Scenario: models.ScenarioApproved})

	if ctxErr != nil {
		t.Errorf("subscriber context err = %v, want nil", ctxErr)
	}
}

func TestWatchReceivesAndStops(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	ch, stop := bus.Watch(1)

	bus.Publish(context.Background(), TransactionChanged{
		Scenario:    models.ScenarioRejected,
		Transaction: models.CashTransaction{ID: "tx-2"},
	})

	e := <-ch
	if e.Transaction.ID != "tx-2" || e.OccurredAt.IsZero() {
		t.Fatalf("watch event = %+v", e)
	}

	stop()
	stop()
	if _, ok := <-ch; ok {
		t.Error("channel still open after stop")
	}
}

func TestCloseEndsWatchers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	ch, stop := bus.Watch(1)
	defer stop()

	bus.Close()
	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}

	called := false
	bus.Subscribe("late", func(context.Context, TransactionChanged) error {
		called = true
		return nil
	})
	bus.Publish(context.Background(), TransactionChanged{})
	if called {
		t.Error("subscriber called after Close")
	}
}

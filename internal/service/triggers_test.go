package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"house_screens/internal/events"
	"house_screens/internal/logger"
	"house_screens/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcileCall struct {
	Force bool
}

// scriptedReconciler records calls and answers with queued outcomes.
type scriptedReconciler struct {
	mu       sync.Mutex
	calls    []reconcileCall
	outcomes []Outcome
	seen     chan reconcileCall
}

func newScriptedReconciler(outcomes ...Outcome) *scriptedReconciler {
	return &scriptedReconciler{outcomes: outcomes, seen: make(chan reconcileCall, 16)}
}

func (r *scriptedReconciler) Reconcile(_ context.Context, force bool) (Outcome, error) {
	r.mu.Lock()
	call := reconcileCall{Force: force}
	r.calls = append(r.calls, call)
	var out Outcome
	if len(r.outcomes) > 0 {
		out, r.outcomes = r.outcomes[0], r.outcomes[1:]
	}
	r.mu.Unlock()
	r.seen <- call
	return out, nil
}

func (r *scriptedReconciler) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func expectCall(t *testing.T, r *scriptedReconciler, within time.Duration) reconcileCall {
	t.Helper()
	select {
	case c := <-r.seen:
		return c
	case <-time.After(within):
		t.Fatalf("no reconcile call within %v", within)
		return reconcileCall{}
	}
}

func startTriggers(t *testing.T, tr *Triggers) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("triggers did not stop")
		}
	}
}

func TestTriggers_MountRunsOnce(t *testing.T) {
	rec := newScriptedReconciler()
	tr := NewTriggers(rec, NewFlagStore(newMemStore()), events.NewBus(), 20*time.Millisecond, 20*time.Millisecond, logger.Nop())
	stop := startTriggers(t, tr)
	defer stop()

	call := expectCall(t, rec, time.Second)
	assert.False(t, call.Force)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.callCount())
}

func TestTriggers_HouseCreatedIsDebounced(t *testing.T) {
	rec := newScriptedReconciler()
	store := newMemStore()
	bus := events.NewBus()
	tr := NewTriggers(rec, NewFlagStore(store), bus, 40*time.Millisecond, time.Second, logger.Nop())
	stop := startTriggers(t, tr)
	defer stop()

	expectCall(t, rec, time.Second) // mount

	ctx := context.Background()
	bus.Publish(ctx, events.Event{Topic: events.HouseCreated, Payload: events.HouseCreatedPayload{HouseID: "H1"}})
	time.Sleep(10 * time.Millisecond)
	bus.Publish(ctx, events.Event{Topic: events.HouseCreated, Payload: events.HouseCreatedPayload{HouseID: "H1"}})

	call := expectCall(t, rec, time.Second)
	assert.True(t, call.Force, "house-created runs are forced")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, rec.callCount(), "two signals inside the debounce window cause one run")

	assert.Equal(t, "true", store.value(models.KeyAccountJustCreated))
	assert.Equal(t, "H1", store.value(models.KeyNewAccountHouseID))
}

func TestTriggers_HouseCreatedWithoutIDIsIgnored(t *testing.T) {
	rec := newScriptedReconciler()
	bus := events.NewBus()
	tr := NewTriggers(rec, NewFlagStore(newMemStore()), bus, 10*time.Millisecond, time.Second, logger.Nop())
	stop := startTriggers(t, tr)
	defer stop()

	expectCall(t, rec, time.Second)
	bus.Publish(context.Background(), events.Event{Topic: events.HouseCreated})
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.callCount())
}

func TestTriggers_SecondRefreshFollowUp(t *testing.T) {
	rec := newScriptedReconciler(Outcome{NeedsSecondRefresh: true}, Outcome{})
	tr := NewTriggers(rec, NewFlagStore(newMemStore()), events.NewBus(), time.Second, 20*time.Millisecond, logger.Nop())
	stop := startTriggers(t, tr)
	defer stop()

	first := expectCall(t, rec, time.Second)
	require.False(t, first.Force)
	follow := expectCall(t, rec, time.Second)
	assert.False(t, follow.Force, "follow-up is a plain trigger")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, rec.callCount(), "no follow-up once the flag is clear")
}

func TestTriggers_StopCancelsPendingTimers(t *testing.T) {
	rec := newScriptedReconciler(Outcome{NeedsSecondRefresh: true})
	tr := NewTriggers(rec, NewFlagStore(newMemStore()), events.NewBus(), time.Second, time.Hour, logger.Nop())
	stop := startTriggers(t, tr)

	expectCall(t, rec, time.Second)
	time.Sleep(10 * time.Millisecond)
	stop()
	assert.Equal(t, 1, rec.callCount())
}

func TestHouseCreatedID(t *testing.T) {
	assert.Equal(t, "H1", houseCreatedID(events.Event{Payload: events.HouseCreatedPayload{HouseID: "H1"}}))
	assert.Equal(t, "H2", houseCreatedID(events.Event{Payload: &events.HouseCreatedPayload{HouseID: "H2"}}))
	assert.Equal(t, "H3", houseCreatedID(events.Event{Payload: "H3"}))
	assert.Empty(t, houseCreatedID(events.Event{Payload: 42}))
}

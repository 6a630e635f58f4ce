package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lsanches/bico/internal/bus"
	"github.com/lsanches/bico/internal/wire"
)

// fakeFetcher counts calls and serves a fixed result.
type fakeFetcher struct {
	mu       sync.Mutex
	calls    int
	messages []wire.Message
	err      error
}

func (f *fakeFetcher) FetchMessages(_ context.Context, _ wire.ID) ([]wire.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.messages, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestEngine(t *testing.T, fetcher Fetcher, timeout time.Duration) (*Engine, *Store, *bus.Bus) {
	t.Helper()
	b := bus.New()
	s := NewStore(10*time.Second, b)
	e := NewEngine(s, fetcher, b, zap.NewNop(), timeout)
	e.Start(context.Background())
	t.Cleanup(e.Stop)
	return e, s, b
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestHydrationRace: the snapshot arrives before the fallback timeout,
// so the fallback request is never issued.
func TestHydrationRace(t *testing.T) {
	fetcher := &fakeFetcher{}
	e, s, _ := newTestEngine(t, fetcher, 60*time.Millisecond)

	e.ScheduleFallback("c1")
	s.ApplyPushSnapshot("c1", []wire.Message{msg("m1", 1000)})
	e.cancelFallback("c1")

	time.Sleep(150 * time.Millisecond)
	if fetcher.callCount() != 0 {
		t.Errorf("fallback fired %d times, want 0 (hydrated first)", fetcher.callCount())
	}
}

// TestSnapshotViaBusCancelsFallback is the integration form: the
// snapshot flows through the bus, as published by the connection manager.
func TestSnapshotViaBusCancelsFallback(t *testing.T) {
	fetcher := &fakeFetcher{}
	e, s, b := newTestEngine(t, fetcher, 100*time.Millisecond)

	e.ScheduleFallback("c1")
	b.Publish(bus.Event{
		Kind:      "chat.snapshot",
		Timestamp: time.Now(),
		Payload:   &wire.InitialMessages{ConversationID: "c1", Messages: []wire.Message{msg("m1", 1000)}},
	})

	waitFor(t, func() bool { return s.Hydration("c1") == HydratedViaPush }, "snapshot never applied")
	time.Sleep(200 * time.Millisecond)
	if fetcher.callCount() != 0 {
		t.Errorf("fallback fired %d times, want 0", fetcher.callCount())
	}
}

// TestFallbackFiresOnceAndMerges: no push within the timeout, exactly
// one fallback request fires, and later push increments do not duplicate.
func TestFallbackFiresOnceAndMerges(t *testing.T) {
	fetcher := &fakeFetcher{messages: []wire.Message{msg("m1", 1000), msg("m2", 2000)}}
	e, s, _ := newTestEngine(t, fetcher, 20*time.Millisecond)

	e.ScheduleFallback("c1")
	waitFor(t, func() bool { return s.Hydration("c1") == HydratedViaFallback }, "fallback never hydrated")

	if fetcher.callCount() != 1 {
		t.Fatalf("fallback fired %d times, want 1", fetcher.callCount())
	}

	// A push increment already contained in the fallback result is
	// absorbed; a new one is appended.
	s.ApplyPushIncrement(msg("m2", 2000))
	s.ApplyPushIncrement(msg("m3", 3000))

	got := ids(s.Messages("c1"))
	want := []string{"m1", "m2", "m3"}
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("messages = %v, want %v", got, want)
		}
	}

	// Re-arming after the single request is spent does nothing.
	e.ScheduleFallback("c1")
	time.Sleep(50 * time.Millisecond)
	if fetcher.callCount() != 1 {
		t.Errorf("fallback fired %d times after re-arm, want 1", fetcher.callCount())
	}
}

// TestFallbackFailureNonFatal: a failed pull is surfaced as a warning
// event and the conversation stays push-only.
func TestFallbackFailureNonFatal(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("boom")}
	e, s, b := newTestEngine(t, fetcher, 20*time.Millisecond)

	warnCh, unsub := b.Subscribe("chat.fallback_failed", 10)
	defer unsub()

	e.ScheduleFallback("c1")

	select {
	case evt := <-warnCh:
		if evt.Payload.(wire.ID) != "c1" {
			t.Errorf("payload = %v, want c1", evt.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for fallback_failed event")
	}

	if s.Hydration("c1") != NotHydrated {
		t.Error("failed fallback must not hydrate")
	}
	// Push increments still land.
	s.ApplyPushIncrement(msg("m1", 1000))
	if len(s.Messages("c1")) != 1 {
		t.Error("push increment lost after fallback failure")
	}
}

// TestJoinedEventArmsFallback: the manager publishes chat.joined after a
// successful join; the engine arms the timer off that event.
func TestJoinedEventArmsFallback(t *testing.T) {
	fetcher := &fakeFetcher{messages: []wire.Message{msg("m1", 1000)}}
	_, s, b := newTestEngine(t, fetcher, 20*time.Millisecond)

	b.Publish(bus.Event{Kind: "chat.joined", Timestamp: time.Now(), Payload: wire.ID("c1")})

	waitFor(t, func() bool { return s.Hydration("c1") == HydratedViaFallback }, "joined event never armed fallback")
	if fetcher.callCount() != 1 {
		t.Errorf("fallback fired %d times, want 1", fetcher.callCount())
	}
}

// TestRejoinDoesNotRearmWhileArmed: duplicate joined events (reconnect
// re-join) collapse into one armed timer.
func TestRejoinDoesNotRearmWhileArmed(t *testing.T) {
	fetcher := &fakeFetcher{}
	e, _, _ := newTestEngine(t, fetcher, 40*time.Millisecond)

	e.ScheduleFallback("c1")
	e.ScheduleFallback("c1")
	e.ScheduleFallback("c1")

	time.Sleep(120 * time.Millisecond)
	if fetcher.callCount() != 1 {
		t.Errorf("fallback fired %d times, want 1", fetcher.callCount())
	}
}

// TestIncrementViaBus verifies live messages flow bus → engine → store.
func TestIncrementViaBus(t *testing.T) {
	fetcher := &fakeFetcher{}
	_, s, b := newTestEngine(t, fetcher, time.Minute)

	m := msg("m1", 1000)
	b.Publish(bus.Event{Kind: "chat.message", Timestamp: time.Now(), Payload: &m})

	waitFor(t, func() bool { return len(s.Messages("c1")) == 1 }, "increment never applied")
}

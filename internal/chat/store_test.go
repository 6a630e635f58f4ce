package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/lsanches/bico/internal/bus"
	"github.com/lsanches/bico/internal/wire"
)

func msg(id string, createdAt int64) wire.Message {
	return wire.Message{
		ID:             wire.ID(id),
		ConversationID: "c1",
		SenderID:       "u1",
		ReceiverID:     "u2",
		Body:           "body-" + id,
		Kind:           wire.KindText,
		CreatedAt:      createdAt,
	}
}

func ids(msgs []wire.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID.String()
	}
	return out
}

func TestIncrementDedupByID(t *testing.T) {
	s := NewStore(time.Second, nil)

	s.ApplyPushIncrement(msg("m1", 1000))
	// Redelivery of the exact same event.
	s.ApplyPushIncrement(msg("m1", 1000))

	got := s.Messages("c1")
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1 (dedup by id)", len(got))
	}
	if got[0].ID != "m1" {
		t.Errorf("id = %s, want m1", got[0].ID)
	}
}

func TestSnapshotHydrates(t *testing.T) {
	s := NewStore(time.Second, nil)

	if s.Hydration("c1") != NotHydrated {
		t.Fatal("fresh conversation should not be hydrated")
	}
	s.ApplyPushSnapshot("c1", []wire.Message{msg("m1", 1000), msg("m2", 2000)})

	if s.Hydration("c1") != HydratedViaPush {
		t.Errorf("hydration = %v, want push", s.Hydration("c1"))
	}
	if len(s.Messages("c1")) != 2 {
		t.Errorf("got %d messages, want 2", len(s.Messages("c1")))
	}

	// An empty snapshot still hydrates.
	s.ApplyPushSnapshot("c2", nil)
	if s.Hydration("c2") != HydratedViaPush {
		t.Error("empty snapshot should hydrate")
	}
}

// TestOrderingInvariant: for any interleaving of push increments and a
// fallback batch, the final view is ascending by CreatedAt.
func TestOrderingInvariant(t *testing.T) {
	s := NewStore(time.Second, nil)

	s.ApplyPushIncrement(msg("m3", 3000))
	s.ApplyPushIncrement(msg("m1", 1000))
	s.ApplyFallbackResult("c1", []wire.Message{msg("m4", 4000), msg("m2", 2000)})
	s.ApplyPushIncrement(msg("m5", 5000))

	got := ids(s.Messages("c1"))
	want := []string{"m1", "m2", "m3", "m4", "m5"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

// TestFallbackDoesNotDuplicatePush: the fallback returns [m1(T1), m2(T2)]
// after push already applied m2(T2); m2 must not appear twice.
func TestFallbackDoesNotDuplicatePush(t *testing.T) {
	s := NewStore(time.Second, nil)

	s.ApplyPushIncrement(msg("m2", 2000))
	s.ApplyFallbackResult("c1", []wire.Message{msg("m1", 1000), msg("m2", 2000)})

	got := ids(s.Messages("c1"))
	if len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Errorf("messages = %v, want [m1 m2]", got)
	}
	if s.Hydration("c1") != HydratedViaFallback {
		t.Errorf("hydration = %v, want fallback", s.Hydration("c1"))
	}
}

func TestFallbackAfterPushSnapshotKeepsPushHydration(t *testing.T) {
	s := NewStore(time.Second, nil)

	s.ApplyPushSnapshot("c1", []wire.Message{msg("m1", 1000)})
	s.ApplyFallbackResult("c1", []wire.Message{msg("m1", 1000), msg("m2", 2000)})

	if s.Hydration("c1") != HydratedViaPush {
		t.Errorf("hydration = %v, want push (first source wins)", s.Hydration("c1"))
	}
	if len(s.Messages("c1")) != 2 {
		t.Errorf("got %d messages, want 2", len(s.Messages("c1")))
	}
}

func TestStableSortPreservesArrivalOrderOnTies(t *testing.T) {
	s := NewStore(time.Second, nil)

	s.ApplyPushIncrement(msg("a", 1000))
	s.ApplyPushIncrement(msg("b", 1000))
	s.ApplyPushIncrement(msg("c", 1000))

	got := ids(s.Messages("c1"))
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v (stable on equal timestamps)", got, want)
		}
	}
}

func TestAppendOptimisticEchoReconciled(t *testing.T) {
	s := NewStore(10*time.Second, nil)

	local := s.AppendOptimistic("c1", "u1", "u2", "hello there", wire.KindText)
	if !strings.HasPrefix(local.ID.String(), optimisticPrefix) {
		t.Fatalf("temp id = %s, want %s prefix", local.ID, optimisticPrefix)
	}
	if len(s.Messages("c1")) != 1 {
		t.Fatal("optimistic message not visible")
	}

	// Server echo: same sender, same body, server-assigned id.
	echo := wire.Message{
		ID: "m9", ConversationID: "c1", SenderID: "u1", ReceiverID: "u2",
		Body: "hello there", Kind: wire.KindText, CreatedAt: 9000,
	}
	s.ApplyPushIncrement(echo)

	got := s.Messages("c1")
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1 (echo replaces temp)", len(got))
	}
	if got[0].ID != "m9" {
		t.Errorf("id = %s, want m9", got[0].ID)
	}
}

// TestSnapshotReconcilesPendingEcho: the echo of an in-flight optimistic
// send can arrive inside the hydration snapshot instead of as a live
// increment; it must still replace the temp entry.
func TestSnapshotReconcilesPendingEcho(t *testing.T) {
	s := NewStore(10*time.Second, nil)

	s.AppendOptimistic("c1", "u1", "u2", "hello there", wire.KindText)

	echo := wire.Message{
		ID: "m9", ConversationID: "c1", SenderID: "u1", ReceiverID: "u2",
		Body: "hello there", Kind: wire.KindText, CreatedAt: 9000,
	}
	s.ApplyPushSnapshot("c1", []wire.Message{msg("m1", 1000), echo})

	got := s.Messages("c1")
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2 (echo replaces temp)", len(got))
	}
	for _, m := range got {
		if strings.HasPrefix(m.ID.String(), optimisticPrefix) {
			t.Errorf("temp entry %s survived the snapshot merge", m.ID)
		}
	}
}

// TestFallbackReconcilesPendingEcho is the fallback-path twin.
func TestFallbackReconcilesPendingEcho(t *testing.T) {
	s := NewStore(10*time.Second, nil)

	s.AppendOptimistic("c1", "u1", "u2", "hi", wire.KindText)

	echo := wire.Message{
		ID: "m5", ConversationID: "c1", SenderID: "u1", ReceiverID: "u2",
		Body: "hi", Kind: wire.KindText, CreatedAt: 5000,
	}
	s.ApplyFallbackResult("c1", []wire.Message{echo})

	got := s.Messages("c1")
	if len(got) != 1 || got[0].ID != "m5" {
		t.Fatalf("messages = %v, want just m5", ids(got))
	}
	if s.Hydration("c1") != HydratedViaFallback {
		t.Error("fallback merge must still hydrate")
	}
}

func TestEchoNotMatchedAcrossSenders(t *testing.T) {
	s := NewStore(10*time.Second, nil)

	s.AppendOptimistic("c1", "u1", "u2", "hello", wire.KindText)

	// Same body but a different sender: a genuine second message.
	other := wire.Message{
		ID: "m9", ConversationID: "c1", SenderID: "u3",
		Body: "hello", Kind: wire.KindText, CreatedAt: 9000,
	}
	s.ApplyPushIncrement(other)

	if len(s.Messages("c1")) != 2 {
		t.Errorf("got %d messages, want 2 (no cross-sender match)", len(s.Messages("c1")))
	}
}

func TestResolveOptimisticViaAck(t *testing.T) {
	s := NewStore(10*time.Second, nil)

	local := s.AppendOptimistic("c1", "u1", "u2", "hi", wire.KindText)
	confirmed := wire.Message{
		ID: "m5", ConversationID: "c1", SenderID: "u1", ReceiverID: "u2",
		Body: "hi", Kind: wire.KindText, CreatedAt: 5000,
	}
	s.ResolveOptimistic("c1", local.ID, confirmed)

	got := s.Messages("c1")
	if len(got) != 1 || got[0].ID != "m5" {
		t.Fatalf("messages = %v, want [m5]", ids(got))
	}

	// The server may redeliver the confirmed message as an increment;
	// it must not reappear and must not re-match a pending echo.
	s.ApplyPushIncrement(confirmed)
	if len(s.Messages("c1")) != 1 {
		t.Errorf("redelivery duplicated the confirmed message")
	}
}

func TestFailOptimisticRemovesTemp(t *testing.T) {
	s := NewStore(10*time.Second, nil)

	local := s.AppendOptimistic("c1", "u1", "u2", "hi", wire.KindText)
	s.FailOptimistic("c1", local.ID)

	if len(s.Messages("c1")) != 0 {
		t.Error("failed optimistic message still visible")
	}
}

func TestUnknownKindNormalized(t *testing.T) {
	s := NewStore(time.Second, nil)

	m := msg("m1", 1000)
	m.Kind = "hologram"
	s.ApplyPushIncrement(m)

	got := s.Messages("c1")
	if got[0].Kind != wire.KindText {
		t.Errorf("kind = %q, want text", got[0].Kind)
	}
}

func TestUpdatePublishesBusEvent(t *testing.T) {
	b := bus.New()
	s := NewStore(time.Second, b)

	ch, unsub := b.Subscribe("chat.updated", 10)
	defer unsub()

	s.ApplyPushIncrement(msg("m1", 1000))

	select {
	case evt := <-ch:
		if evt.Payload.(wire.ID) != "c1" {
			t.Errorf("payload = %v, want c1", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chat.updated event")
	}

	// Redelivery changes nothing and publishes nothing.
	s.ApplyPushIncrement(msg("m1", 1000))
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for no-op redelivery: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

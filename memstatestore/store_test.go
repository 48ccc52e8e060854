package memstatestore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/flexigpt/botdialogs-go/spec"
)

func testKey(conv string) spec.StateKey {
	return spec.StateKey{ChannelID: "test", ConversationID: conv, UserID: "u1"}
}

func testState(stackID string) spec.SessionState {
	return spec.SessionState{
		Callstack: []spec.DialogStackEntry{
			{ID: stackID, State: map[string]any{"step": 1}},
		},
		Version:          3,
		ConversationData: map[string]any{"topic": "orders"},
	}
}

func TestStore_SaveGetDelete(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	key := testKey("c1")

	if _, ok, err := st.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get on empty store = ok %v err %v, want miss", ok, err)
	}

	if err := st.Save(ctx, key, testState("root:greet")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := st.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get after Save = ok %v err %v", ok, err)
	}
	if len(got.Callstack) != 1 || got.Callstack[0].ID != "root:greet" {
		t.Fatalf("Callstack = %+v", got.Callstack)
	}
	if got.Version != 3 {
		t.Fatalf("Version = %d, want 3", got.Version)
	}

	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := st.Get(ctx, key); ok {
		t.Fatal("Get after Delete reported a hit")
	}
}

func TestStore_GetReturnsFreshCopy(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	key := testKey("c1")

	if err := st.Save(ctx, key, testState("root:greet")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, _, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	first.Callstack[0].State["step"] = 99
	first.ConversationData["topic"] = "mutated"

	second, _, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Numbers come back as float64 after the JSON round trip.
	if got := second.Callstack[0].State["step"]; got != float64(1) {
		t.Fatalf("step = %v, want 1", got)
	}
	if got := second.ConversationData["topic"]; got != "orders" {
		t.Fatalf("topic = %v, want orders", got)
	}
}

func TestStore_SaveCopiesInput(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	key := testKey("c1")

	in := testState("root:greet")
	if err := st.Save(ctx, key, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	in.ConversationData["topic"] = "mutated"

	got, _, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ConversationData["topic"] != "orders" {
		t.Fatalf("topic = %v, caller mutation leaked into store", got.ConversationData["topic"])
	}
}

func TestStore_TTLEviction(t *testing.T) {
	t.Parallel()

	st := New()
	st.SetTTL(10 * time.Millisecond)
	ctx := context.Background()
	key := testKey("c1")

	if err := st.Save(ctx, key, testState("root:greet")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok, _ := st.Get(ctx, key); ok {
		t.Fatal("entry survived past TTL")
	}
	if st.Len() != 0 {
		t.Fatalf("Len = %d after expiry, want 0", st.Len())
	}
}

func TestStore_MaxEntriesEvictsLRU(t *testing.T) {
	t.Parallel()

	st := New()
	st.SetMaxEntries(3)
	ctx := context.Background()

	for i := range 4 {
		key := testKey(fmt.Sprintf("c%d", i))
		if err := st.Save(ctx, key, testState("root:greet")); err != nil {
			t.Fatalf("Save c%d: %v", i, err)
		}
	}

	if st.Len() != 3 {
		t.Fatalf("Len = %d, want 3", st.Len())
	}
	if _, ok, _ := st.Get(ctx, testKey("c0")); ok {
		t.Fatal("oldest conversation survived over-limit eviction")
	}
	if _, ok, _ := st.Get(ctx, testKey("c3")); !ok {
		t.Fatal("newest conversation evicted")
	}
}

func TestStore_ContextCancelled(t *testing.T) {
	t.Parallel()

	st := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := st.Get(ctx, testKey("c1")); err == nil {
		t.Fatal("Get with cancelled context returned nil error")
	}
	if err := st.Save(ctx, testKey("c1"), spec.SessionState{}); err == nil {
		t.Fatal("Save with cancelled context returned nil error")
	}
}

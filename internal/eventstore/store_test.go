package eventstore

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndGetByRunID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "run-1", TypeRunStarted, []byte(`{"trigger":"tag_push"}`), nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "run-1", TypeRunCompleted, []byte(`{"failed":0}`), map[string]string{"k": "v"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "run-2", TypeRunStarted, []byte(`{}`), nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := store.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type() != TypeRunStarted {
		t.Errorf("first event type = %s, want RunStarted", events[0].Type())
	}
	if events[1].Metadata()["k"] != "v" {
		t.Error("metadata not round-tripped")
	}
}

func TestGetRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "run-1", TypeRunStarted, []byte(`{}`), nil); err != nil {
		t.Fatal(err)
	}

	events, err := store.GetRange(ctx, time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events in range, want 1", len(events))
	}

	events, err = store.GetRange(ctx, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events in empty range, want 0", len(events))
	}
}

func TestEmitterNilSafe(t *testing.T) {
	var emitter *Emitter
	if err := emitter.RunStarted(context.Background(), "run-1", RunStartedPayload{}); err != nil {
		t.Errorf("nil emitter must drop silently, got %v", err)
	}
	if NewEmitter(nil) != nil {
		t.Error("NewEmitter(nil) must return nil")
	}
}

func TestEmitterWritesTypedEvents(t *testing.T) {
	store := newTestStore(t)
	emitter := NewEmitter(store)
	ctx := context.Background()

	if err := emitter.RunStarted(ctx, "run-1", RunStartedPayload{Trigger: "tag_push", Ref: "refs/tags/v1.0.0", Eligible: true}); err != nil {
		t.Fatal(err)
	}
	if err := emitter.BranchFailed(ctx, "run-1", BranchFailedPayload{Platform: "windows", Step: "archive", Category: "archive", Error: "zip failed"}); err != nil {
		t.Fatal(err)
	}

	events, err := store.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Type() != TypeBranchFailed {
		t.Errorf("second event type = %s, want BranchFailed", events[1].Type())
	}
}

package artifact

import (
	"context"
	"testing"
	"time"
)

func TestFSStorePutAndGet(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	payload := []byte("zip payload bytes")

	record, err := store.Put(ctx, "chatifier-linux.zip", "run-1", payload)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if record.SHA256 == "" {
		t.Fatal("Put returned empty hash")
	}
	if record.Size != int64(len(payload)) {
		t.Errorf("Size = %d, want %d", record.Size, len(payload))
	}

	got, data, err := store.Get(ctx, "chatifier-linux.zip")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("payload mismatch: got %q", data)
	}
	if got.SHA256 != record.SHA256 {
		t.Errorf("hash mismatch: %s vs %s", got.SHA256, record.SHA256)
	}
	if got.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", got.RunID)
	}
}

func TestFSStorePutReplacesPriorUpload(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "a.zip", "run-1", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(ctx, "a.zip", "run-2", []byte("second")); err != nil {
		t.Fatal(err)
	}

	record, data, err := store.Get(ctx, "a.zip")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("payload = %q, want second upload", data)
	}
	if record.RunID != "run-2" {
		t.Errorf("RunID = %q, want run-2", record.RunID)
	}
}

func TestFSStoreGetMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = store.Get(context.Background(), "nope.zip")
	if !IsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFSStoreListAndDelete(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, name := range []string{"a.zip", "b.zip", "c.zip"} {
		if _, err := store.Put(ctx, name, "run-1", []byte(name)); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List returned %d records, want 3", len(records))
	}

	if err := store.Delete(ctx, "b.zip"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "b.zip"); !IsNotFound(err) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}

	records, _ = store.List(ctx)
	if len(records) != 2 {
		t.Errorf("List returned %d records after delete, want 2", len(records))
	}
}

func TestFSStoreSweepHonorsRetention(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "old.zip", "run-1", []byte("old")); err != nil {
		t.Fatal(err)
	}

	// Nothing is older than an hour ago.
	removed, err := store.Sweep(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Sweep removed %d, want 0", removed)
	}

	// Everything is older than one hour from now.
	removed, err = store.Sweep(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if _, _, err := store.Get(ctx, "old.zip"); !IsNotFound(err) {
		t.Error("swept artifact still retrievable")
	}
}

func TestValidateNameRejectsTraversal(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "../escape.zip", "a/b.zip", `a\b.zip`} {
		if _, err := store.Put(context.Background(), name, "run-1", []byte("x")); err == nil {
			t.Errorf("Put(%q) accepted invalid name", name)
		}
	}
}

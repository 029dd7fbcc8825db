package state

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreLoadMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load(context.Background(), 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	rec := Record{Watermark: "2025-01-01T00:00:01", SessionID: "sess-1"}
	if err := store.Save(context.Background(), 7, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != rec {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	rec.Watermark = "2025-01-01T00:00:09"
	if err := store.Save(context.Background(), 7, rec); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = store.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Watermark != "2025-01-01T00:00:09" {
		t.Fatalf("overwrite not applied: %s", got.Watermark)
	}
}

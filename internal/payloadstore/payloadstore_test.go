package payloadstore

import (
	"bytes"
	"context"
	"testing"

	"git.home.luguber.info/inful/chronicle/internal/cid"
	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	content := []byte(`{"title":"first post","body":"hello"}`)
	id, err := s.Put(ctx, content)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !id.Equal(cid.FromContent(content)) {
		t.Fatal("Put returned a different id than the content hash")
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Get returned %q, want %q", got, content)
	}
}

func TestDuplicateContentStoredOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	content := []byte("shared payload")
	first, err := s.Put(ctx, content)
	if err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	second, err := s.Put(ctx, content)
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if !first.Equal(second) {
		t.Fatal("same content produced different ids")
	}

	stats := s.Stats()
	if stats.Writes != 1 {
		t.Fatalf("expected 1 write, got %d", stats.Writes)
	}
	if stats.Deduplicated != 1 {
		t.Fatalf("expected 1 deduplicated write, got %d", stats.Deduplicated)
	}
}

func TestLargePayloadCompressedRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Highly repetitive content well above the compression threshold.
	content := bytes.Repeat([]byte("chronicle event payload "), 512)
	id, err := s.Put(ctx, content)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("compressed round trip corrupted payload")
	}
}

func TestGetMissingPayload(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), cid.FromContent([]byte("never stored")))
	if !errors.Is(err, ErrPayloadNotFound) {
		t.Fatalf("expected ErrPayloadNotFound, got %v", err)
	}
}

func TestHas(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Put(ctx, []byte("present"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	ok, err := s.Has(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Has(present) = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.Has(ctx, cid.FromContent([]byte("absent")))
	if err != nil || ok {
		t.Fatalf("Has(absent) = %v, %v; want false, nil", ok, err)
	}
}

func TestUseAfterClose(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, err := s.Put(context.Background(), []byte("late")); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

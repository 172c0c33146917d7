package memory

import (
	"context"
	"testing"

	"github.com/jamesmstone/ghostclaw-sub000/internal/embeddings"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Path: ":memory:", Dimension: 16}, embeddings.NewHashEmbedder(16))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Store(ctx, "k1", "the quick brown fox", protocol.MemoryCore); err != nil {
		t.Fatalf("Store: %v", err)
	}
	entry, ok, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected entry to exist")
	}
	if entry.Content != "the quick brown fox" || entry.Category != protocol.MemoryCore {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestGetMissingReturnsNotOK(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected not-ok for missing key")
	}
}

func TestForgetRemovesEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Store(ctx, "k1", "content", protocol.MemoryCore)

	existed, err := s.Forget(ctx, "k1")
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if !existed {
		t.Fatalf("expected Forget to report the entry existed")
	}
	_, ok, _ := s.Get(ctx, "k1")
	if ok {
		t.Fatalf("expected entry gone after Forget")
	}
}

func TestCountReflectsStoredEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Store(ctx, "k1", "a", protocol.MemoryCore)
	_ = s.Store(ctx, "k2", "b", protocol.MemoryCore)

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}

func TestRecallEmptyQueryReturnsMostRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Store(ctx, "k1", "first", protocol.MemoryCore)
	_ = s.Store(ctx, "k2", "second", protocol.MemoryCore)

	results, err := s.Recall(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestRecallFindsKeywordMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Store(ctx, "k1", "the rocket launched successfully", protocol.MemoryCore)
	_ = s.Store(ctx, "k2", "the cat sat on the mat", protocol.MemoryCore)

	results, err := s.Recall(ctx, "rocket", 10)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	found := false
	for _, r := range results {
		if r.Entry.Key == "k1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected k1 to be found by keyword recall: %+v", results)
	}
}

func TestStoreUpdatePreservesCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Store(ctx, "k1", "v1", protocol.MemoryCore)
	first, _, _ := s.Get(ctx, "k1")

	_ = s.Store(ctx, "k1", "v2", protocol.MemoryCore)
	second, _, _ := s.Get(ctx, "k1")

	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("expected created_at preserved across update: %v vs %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Content != "v2" {
		t.Fatalf("expected content updated, got %q", second.Content)
	}
}

func TestEmbeddingFailureToleratedByStore(t *testing.T) {
	s, err := Open(Config{Path: ":memory:", Dimension: 8}, embeddings.NewZeroEmbedder(8))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Store(ctx, "k1", "no embedding available", protocol.MemoryCore); err != nil {
		t.Fatalf("expected Store to tolerate embedder failure, got %v", err)
	}
	_, ok, err := s.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("expected entry to be stored despite embedding failure")
	}
}

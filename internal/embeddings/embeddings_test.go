package embeddings

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestHashEmbedderIsDeterministic(t *testing.T) {
	h := NewHashEmbedder(32)
	v1, err := h.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, err := h.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("expected deterministic output, differs at index %d: %v vs %v", i, v1[i], v2[i])
		}
	}
}

func TestHashEmbedderDiffersByInput(t *testing.T) {
	h := NewHashEmbedder(32)
	v1, _ := h.Embed(context.Background(), "alpha")
	v2, _ := h.Embed(context.Background(), "beta")
	same := true
	for i := range v1 {
		if v1[i] != v2[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected distinct inputs to produce distinct vectors")
	}
}

func TestHashEmbedderIsUnitNormalized(t *testing.T) {
	h := NewHashEmbedder(16)
	v, err := h.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm < 0.99 || norm > 1.01 {
		t.Fatalf("expected unit norm, got %v", norm)
	}
}

func TestHashEmbedderDefaultsDimension(t *testing.T) {
	h := NewHashEmbedder(0)
	if h.Dimension() != 64 {
		t.Fatalf("expected default dimension 64, got %d", h.Dimension())
	}
}

func TestZeroEmbedderAlwaysFails(t *testing.T) {
	z := NewZeroEmbedder(8)
	_, err := z.Embed(context.Background(), "anything")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if z.Dimension() != 8 {
		t.Fatalf("expected dimension 8, got %d", z.Dimension())
	}
}

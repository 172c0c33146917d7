// Package embeddings implements the embedder trait and its three built-in
// backends: OpenAI embeddings, a deterministic local hash-embedder for
// offline/test use, and a zero embedder that always fails (used to
// exercise the memory store's embedding-failure tolerance).
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
)

// Provider is the embedder trait.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// ErrEmbeddingUnavailable is returned by the zero embedder and may be
// returned by any backend that cannot currently produce a vector.
var ErrEmbeddingUnavailable = errors.New("embeddings: backend unavailable")

// ZeroEmbedder always fails. It exists to exercise the memory store's
// tolerance of embedding failure (store still succeeds with a NULL
// embedding; recall still works via the keyword fallback).
type ZeroEmbedder struct{ Dim int }

func NewZeroEmbedder(dim int) *ZeroEmbedder { return &ZeroEmbedder{Dim: dim} }

func (z *ZeroEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingUnavailable
}
func (z *ZeroEmbedder) Dimension() int { return z.Dim }
func (z *ZeroEmbedder) Name() string   { return "zero" }

// HashEmbedder is a deterministic, local, API-free embedder: it hashes the
// text with SHA-256, expands the digest into Dim float32 buckets via a
// simple counter-mode stretch, and L2-normalizes the result. Useful for
// offline development and for tests that need stable, reproducible
// vectors without network calls.
type HashEmbedder struct{ Dim int }

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{Dim: dim}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.Dim)
	seed := sha256.Sum256([]byte(text))
	counter := uint32(0)
	for i := 0; i < h.Dim; i++ {
		if i%8 == 0 {
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], counter)
			counter++
			mix := sha256.Sum256(append(seed[:], buf[:]...))
			seed = mix
		}
		b := seed[i%32]
		vec[i] = float32(int32(b)-128) / 128.0
	}
	normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) Dimension() int { return h.Dim }
func (h *HashEmbedder) Name() string   { return "hash" }

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}

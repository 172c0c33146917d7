// Package ranker implements the hybrid ranker: a weighted combination of
// vector similarity, keyword relevance, and recency.
package ranker

import (
	"math"
	"sort"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// Weights controls the linear combination final_score = wv*v + wk*k + wr*r.
type Weights struct {
	Vector     float64
	Keyword    float64
	Recency    float64
	HalfLife   time.Duration
}

// DefaultWeights matches the memory store's documented recall weighting.
func DefaultWeights() Weights {
	return Weights{Vector: 0.6, Keyword: 0.3, Recency: 0.1, HalfLife: 14 * 24 * time.Hour}
}

// RecencyScore computes an exponential-decay recency score in (0, 1],
// strictly decreasing in age for a positive half-life.
func RecencyScore(age time.Duration, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

// Candidate is one entry awaiting a final score.
type Candidate struct {
	Entry        protocol.MemoryEntry
	VectorScore  float64
	KeywordScore float64
}

// Rank combines candidates into RankedResults, sorted by final score
// descending, truncated to limit (limit<=0 means no truncation).
func Rank(candidates []Candidate, weights Weights, now time.Time, limit int) []protocol.RankedResult {
	out := make([]protocol.RankedResult, 0, len(candidates))
	for _, c := range candidates {
		age := now.Sub(c.Entry.UpdatedAt)
		recency := RecencyScore(age, weights.HalfLife)
		final := weights.Vector*c.VectorScore + weights.Keyword*c.KeywordScore + weights.Recency*recency
		out = append(out, protocol.RankedResult{
			Entry:        c.Entry,
			VectorScore:  c.VectorScore,
			KeywordScore: c.KeywordScore,
			Recency:      recency,
			FinalScore:   final,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

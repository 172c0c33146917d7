// Package memory implements the SQLite-backed memory store: CRUD, hybrid
// recall combining the vector index, FTS5 keyword search, and recency, and
// an embedding cache with LRU-by-created_at trimming. Vector similarity
// is computed in pure Go (no vec0 extension); recall combines that score
// with FTS5 keyword rank and recency decay under WAL journaling.
package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jamesmstone/ghostclaw-sub000/internal/embeddings"
	"github.com/jamesmstone/ghostclaw-sub000/internal/ranker"
	"github.com/jamesmstone/ghostclaw-sub000/internal/vectorindex"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// Config configures the store.
type Config struct {
	Path               string
	Dimension          int
	EmbeddingCacheSize int
	Weights            ranker.Weights
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = ":memory:"
	}
	if c.Dimension <= 0 {
		c.Dimension = 64
	}
	if c.EmbeddingCacheSize <= 0 {
		c.EmbeddingCacheSize = 10000
	}
	if c.Weights.Vector == 0 && c.Weights.Keyword == 0 && c.Weights.Recency == 0 {
		c.Weights = ranker.DefaultWeights()
	}
}

// Store is the SQLite-backed memory store.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	embedder embeddings.Provider
	index    *vectorindex.Index
	config   Config
}

// Open opens (creating if necessary) the SQLite memory store, in WAL mode,
// with an FTS5 mirror table kept in sync by triggers.
func Open(config Config, embedder embeddings.Provider) (*Store, error) {
	config.applyDefaults()

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("memory: open: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, fmt.Errorf("memory: enable WAL: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		index:    vectorindex.New(config.Dimension),
		config:   config,
	}
	if err := s.reindexLocked(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			key TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			embedding BLOB,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			key UNINDEXED, content, content='memories', content_rowid='rowid'
		);`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, key, content) VALUES (new.rowid, new.key, new.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, key, content) VALUES ('delete', old.rowid, old.key, old.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, key, content) VALUES ('delete', old.rowid, old.key, old.content);
			INSERT INTO memories_fts(rowid, key, content) VALUES (new.rowid, new.key, new.content);
		END;`,
		`CREATE TABLE IF NOT EXISTS embedding_cache (
			text_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			created_at DATETIME NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("memory: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[4*i] = byte(bits >> 24)
		buf[4*i+1] = byte(bits >> 16)
		buf[4*i+2] = byte(bits >> 8)
		buf[4*i+3] = byte(bits)
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	n := len(buf) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(buf[4*i])<<24 | uint32(buf[4*i+1])<<16 | uint32(buf[4*i+2])<<8 | uint32(buf[4*i+3])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// embedCached looks up the embedding cache by sha256(text); on miss, calls
// the embedder and stores the result. Returns (nil, nil) on embedder
// failure — callers must tolerate a nil vector rather than treat it as
// fatal.
func (s *Store) embedCached(ctx context.Context, text string) ([]float32, error) {
	h := hashText(text)

	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM embedding_cache WHERE text_hash = ?`, h).Scan(&blob)
	if err == nil {
		return decodeEmbedding(blob), nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	if s.embedder == nil {
		return nil, nil
	}
	vec, embedErr := s.embedder.Embed(ctx, text)
	if embedErr != nil {
		return nil, nil
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embedding_cache (text_hash, embedding, created_at) VALUES (?, ?, ?)`,
		h, encodeEmbedding(vec), now)
	if err != nil {
		return vec, nil // cache write failure is non-fatal
	}
	s.trimEmbeddingCache(ctx)
	return vec, nil
}

// trimEmbeddingCache deletes the oldest-by-created_at rows until the table
// is back under the configured limit.
func (s *Store) trimEmbeddingCache(ctx context.Context) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&count); err != nil {
		return
	}
	overflow := count - s.config.EmbeddingCacheSize
	if overflow <= 0 {
		return
	}
	_, _ = s.db.ExecContext(ctx,
		`DELETE FROM embedding_cache WHERE text_hash IN (
			SELECT text_hash FROM embedding_cache ORDER BY created_at ASC LIMIT ?
		)`, overflow)
}

// Store writes or updates a memory entry. created_at is preserved across
// upserts. Embedding failure is tolerated: the row is stored with a NULL
// embedding rather than failing the call.
func (s *Store) Store(ctx context.Context, key, content string, category protocol.MemoryCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM memories WHERE key = ?`, key).Scan(&createdAt)
	if err == sql.ErrNoRows {
		createdAt = now
	} else if err != nil {
		return fmt.Errorf("memory: store lookup: %w", err)
	}

	vec, _ := s.embedCached(ctx, content)

	var embeddingBlob any
	if vec != nil {
		embeddingBlob = encodeEmbedding(vec)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (key, content, category, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET content=excluded.content, category=excluded.category,
		   embedding=excluded.embedding, updated_at=excluded.updated_at`,
		key, content, string(category), embeddingBlob, createdAt, now)
	if err != nil {
		return fmt.Errorf("memory: store: %w", err)
	}

	if vec != nil {
		_ = s.index.Add(key, vec)
	} else {
		s.index.Remove(key)
	}
	return nil
}

// Get returns the entry for key, without a ranker score.
func (s *Store) Get(ctx context.Context, key string) (protocol.MemoryEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT key, content, category, created_at, updated_at FROM memories WHERE key = ?`, key)
	var e protocol.MemoryEntry
	var category string
	if err := row.Scan(&e.Key, &e.Content, &category, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return protocol.MemoryEntry{}, false, nil
		}
		return protocol.MemoryEntry{}, false, err
	}
	e.Category = protocol.MemoryCategory(category)
	return e, true, nil
}

// Forget removes key. Returns whether it existed.
func (s *Store) Forget(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE key = ?`, key)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	s.index.Remove(key)
	return n > 0, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// Recall performs hybrid vector+keyword+recency recall: empty query
// returns most-recent by updated_at; otherwise vector candidates
// (limit*3) are combined with FTS5 (LIKE fallback) keyword candidates and
// ranked.
func (s *Store) Recall(ctx context.Context, query string, limit int) ([]protocol.RankedResult, error) {
	if limit <= 0 {
		limit = 10
	}

	if strings.TrimSpace(query) == "" {
		rows, err := s.db.QueryContext(ctx,
			`SELECT key, content, category, created_at, updated_at FROM memories ORDER BY updated_at DESC LIMIT ?`, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []protocol.RankedResult
		for rows.Next() {
			var e protocol.MemoryEntry
			var category string
			if err := rows.Scan(&e.Key, &e.Content, &category, &e.CreatedAt, &e.UpdatedAt); err != nil {
				return nil, err
			}
			e.Category = protocol.MemoryCategory(category)
			out = append(out, protocol.RankedResult{Entry: e, FinalScore: 1})
		}
		return out, nil
	}

	vectorScores := map[string]float64{}
	if vec, _ := s.embedCached(ctx, query); vec != nil {
		if hits, err := s.index.Search(vec, limit*3); err == nil {
			for _, h := range hits {
				vectorScores[h.Key] = h.Score
			}
		}
	}

	keywordScores := s.keywordSearch(ctx, query, limit*3)

	keys := map[string]struct{}{}
	for k := range vectorScores {
		keys[k] = struct{}{}
	}
	for k := range keywordScores {
		keys[k] = struct{}{}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	candidates := make([]ranker.Candidate, 0, len(keys))
	for k := range keys {
		entry, ok, err := s.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		candidates = append(candidates, ranker.Candidate{
			Entry:        entry,
			VectorScore:  vectorScores[k],
			KeywordScore: keywordScores[k],
		})
	}

	ranked := ranker.Rank(candidates, s.config.Weights, time.Now().UTC(), limit)
	return ranked, nil
}

// keywordSearch tries FTS5 MATCH first; on no rows (or a query FTS5 can't
// parse), falls back to a LIKE scan. Score is 1/(1+bm25) or 1/(1+ordinal).
func (s *Store) keywordSearch(ctx context.Context, query string, limit int) map[string]float64 {
	scores := map[string]float64{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, bm25(memories_fts) FROM memories_fts WHERE memories_fts MATCH ? ORDER BY bm25(memories_fts) LIMIT ?`,
		ftsQuery(query), limit)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var key string
			var bm25 float64
			if err := rows.Scan(&key, &bm25); err != nil {
				continue
			}
			if bm25 < 0 {
				bm25 = -bm25
			}
			scores[key] = 1 / (1 + bm25)
		}
		if len(scores) > 0 {
			return scores
		}
	}

	like := "%" + query + "%"
	rows2, err := s.db.QueryContext(ctx, `SELECT key FROM memories WHERE content LIKE ? LIMIT ?`, like, limit)
	if err != nil {
		return scores
	}
	defer rows2.Close()
	ordinal := 1
	for rows2.Next() {
		var key string
		if err := rows2.Scan(&key); err != nil {
			continue
		}
		scores[key] = 1 / float64(1+ordinal)
		ordinal++
	}
	return scores
}

// ftsQuery wraps the raw query in double quotes so FTS5 treats it as a
// phrase rather than attempting operator parsing on arbitrary user text.
func ftsQuery(q string) string {
	escaped := strings.ReplaceAll(q, `"`, `""`)
	return `"` + escaped + `"`
}

// Reindex scans all rows and rebuilds the in-memory vector index. Rows
// with a mismatched embedding dimension are skipped.
func (s *Store) Reindex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reindexLocked(ctx)
}

func (s *Store) reindexLocked(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, embedding FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return err
	}
	defer rows.Close()

	newIndex := vectorindex.New(s.config.Dimension)
	for rows.Next() {
		var key string
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			continue
		}
		vec := decodeEmbedding(blob)
		if len(vec) != s.config.Dimension {
			continue
		}
		_ = newIndex.Add(key, vec)
	}
	s.index = newIndex
	return nil
}

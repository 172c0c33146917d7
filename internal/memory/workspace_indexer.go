package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// WorkspaceIndexer incrementally chunks .md/.txt files under a workspace
// directory into the memory store, skipping files whose mtime hasn't
// changed since the last pass.
type WorkspaceIndexer struct {
	memory    *Store
	workspace string

	mu         sync.Mutex
	fileMtimes map[string]time.Time
}

// NewWorkspaceIndexer builds an indexer over workspace, storing chunks in
// memory.
func NewWorkspaceIndexer(memory *Store, workspace string) *WorkspaceIndexer {
	return &WorkspaceIndexer{memory: memory, workspace: workspace, fileMtimes: map[string]time.Time{}}
}

// IndexFile chunks a single file and stores each chunk under
// "workspace:{filename}:{idx}". A no-op if the file's mtime hasn't changed
// since the last call.
func (w *WorkspaceIndexer) IndexFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("workspace indexer: stat %s: %w", path, err)
	}
	mtime := info.ModTime()

	w.mu.Lock()
	prev, seen := w.fileMtimes[path]
	w.mu.Unlock()
	if seen && prev.Equal(mtime) {
		return nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("workspace indexer: read %s: %w", path, err)
	}

	chunks := ChunkText(string(buf), defaultChunkSize, defaultOverlap)
	base := filepath.Base(path)
	for idx, chunk := range chunks {
		key := "workspace:" + base + ":" + strconv.Itoa(idx)
		if err := w.memory.Store(ctx, key, chunk.Content, protocol.MemoryCore); err != nil {
			return fmt.Errorf("workspace indexer: store %s: %w", key, err)
		}
	}

	w.mu.Lock()
	w.fileMtimes[path] = mtime
	w.mu.Unlock()
	return nil
}

// IndexWorkspace walks the workspace directory and indexes every .md/.txt
// file found.
func (w *WorkspaceIndexer) IndexWorkspace(ctx context.Context) error {
	info, err := os.Stat(w.workspace)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("workspace indexer: workspace missing: %s", w.workspace)
	}

	return filepath.Walk(w.workspace, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".md", ".txt":
		default:
			return nil
		}
		return w.IndexFile(ctx, path)
	})
}

// WatchForChanges runs a single incremental indexing pass. There is no
// filesystem-event watcher here: callers that want continuous indexing
// should invoke this on a timer.
func (w *WorkspaceIndexer) WatchForChanges(ctx context.Context) error {
	return w.IndexWorkspace(ctx)
}

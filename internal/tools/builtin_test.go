package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesmstone/ghostclaw-sub000/internal/security"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

func TestReadFileToolReadsWithinWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	policy := security.New(dir, nil, security.Full, 100, nil)
	tool := ReadFileTool{Policy: policy}

	out, err := tool.Execute(context.Background(), map[string]string{"path": "note.txt"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello" {
		t.Fatalf("got %q", out)
	}
}

func TestReadFileToolRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	policy := security.New(dir, nil, security.Full, 100, nil)
	tool := ReadFileTool{Policy: policy}

	_, err := tool.Execute(context.Background(), map[string]string{"path": "../../etc/passwd"})
	if !errors.Is(err, security.ErrPathEscape) {
		t.Fatalf("expected ErrPathEscape, got %v", err)
	}
}

func TestWriteFileToolRespectsAutonomy(t *testing.T) {
	dir := t.TempDir()
	policy := security.New(dir, nil, security.ReadOnly, 100, nil)
	tool := WriteFileTool{Policy: policy}

	_, err := tool.Execute(context.Background(), map[string]string{"path": "out.txt", "content": "x"})
	if !errors.Is(err, security.ErrAutonomyViolation) {
		t.Fatalf("expected ErrAutonomyViolation, got %v", err)
	}
}

func TestWriteFileToolWritesWhenAllowed(t *testing.T) {
	dir := t.TempDir()
	policy := security.New(dir, nil, security.Full, 100, nil)
	tool := WriteFileTool{Policy: policy}

	_, err := tool.Execute(context.Background(), map[string]string{"path": "out.txt", "content": "hi"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	buf, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if string(buf) != "hi" {
		t.Fatalf("got %q", string(buf))
	}
}

func TestExecToolRejectsDisallowedCommand(t *testing.T) {
	policy := security.New(".", []string{"ls"}, security.Full, 100, nil)
	tool := ExecTool{Policy: policy}

	_, err := tool.Execute(context.Background(), map[string]string{"command": "rm -rf /"})
	if !errors.Is(err, security.ErrCommandNotAllowed) {
		t.Fatalf("expected ErrCommandNotAllowed, got %v", err)
	}
}

func TestExecToolRunsAllowedCommand(t *testing.T) {
	policy := security.New(".", []string{"echo"}, security.Full, 100, nil)
	tool := ExecTool{Policy: policy}

	out, err := tool.Execute(context.Background(), map[string]string{"command": "echo hello"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello\n" {
		t.Fatalf("got %q", out)
	}
}

func TestEchoToolReturnsValueVerbatim(t *testing.T) {
	out, err := EchoTool{}.Execute(context.Background(), map[string]string{"value": "passthrough"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "passthrough" {
		t.Fatalf("got %q", out)
	}
}

func TestFileEditToolReplacesUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	policy := security.New(dir, nil, security.Full, 100, nil)
	tool := FileEditTool{Policy: policy}

	_, err := tool.Execute(context.Background(), map[string]string{
		"path": "note.txt", "old_text": "world", "new_text": "there",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if string(buf) != "hello there" {
		t.Fatalf("got %q", string(buf))
	}
}

func TestFileEditToolRejectsAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("aa bb aa"), 0600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	policy := security.New(dir, nil, security.Full, 100, nil)
	tool := FileEditTool{Policy: policy}

	_, err := tool.Execute(context.Background(), map[string]string{
		"path": "note.txt", "old_text": "aa", "new_text": "cc",
	})
	if !errors.Is(err, errEditMatchCount) {
		t.Fatalf("expected errEditMatchCount, got %v", err)
	}
}

func TestFileEditToolRespectsAutonomy(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hi"), 0600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	policy := security.New(dir, nil, security.ReadOnly, 100, nil)
	tool := FileEditTool{Policy: policy}

	_, err := tool.Execute(context.Background(), map[string]string{
		"path": "note.txt", "old_text": "hi", "new_text": "bye",
	})
	if !errors.Is(err, security.ErrAutonomyViolation) {
		t.Fatalf("expected ErrAutonomyViolation, got %v", err)
	}
}

func TestWebFetchToolStripsTagsAndTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	defer srv.Close()

	tool := WebFetchTool{}
	out, err := tool.Execute(context.Background(), map[string]string{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(out, "<") {
		t.Fatalf("expected tags stripped, got %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("expected content preserved, got %q", out)
	}

	big := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", webFetchMaxBytes+100)))
	}))
	defer big.Close()

	out, err = tool.Execute(context.Background(), map[string]string{"url": big.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasSuffix(out, "\n[truncated]") || len(out) != webFetchMaxBytes+len("\n[truncated]") {
		t.Fatalf("expected body truncated to %d bytes plus marker, got %d bytes", webFetchMaxBytes, len(out))
	}
}

func TestWebFetchToolSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tool := WebFetchTool{}
	_, err := tool.Execute(context.Background(), map[string]string{"url": srv.URL})
	if err == nil {
		t.Fatalf("expected error for 404 response")
	}
}

// fakeMemory is a test double for the memoryStore interface.
type fakeMemory struct {
	entries map[string]protocol.MemoryEntry
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{entries: map[string]protocol.MemoryEntry{}}
}

func (m *fakeMemory) Store(ctx context.Context, key, content string, category protocol.MemoryCategory) error {
	m.entries[key] = protocol.MemoryEntry{Key: key, Content: content, Category: category}
	return nil
}

func (m *fakeMemory) Recall(ctx context.Context, query string, limit int) ([]protocol.RankedResult, error) {
	var results []protocol.RankedResult
	for _, e := range m.entries {
		if query == "" || strings.Contains(e.Content, query) {
			results = append(results, protocol.RankedResult{Entry: e, FinalScore: 1})
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *fakeMemory) Forget(ctx context.Context, key string) (bool, error) {
	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func TestMemoryStoreToolStoresEntry(t *testing.T) {
	mem := newFakeMemory()
	tool := MemoryStoreTool{Memory: mem}

	out, err := tool.Execute(context.Background(), map[string]string{"key": "k1", "content": "some fact"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Memory stored" {
		t.Fatalf("got %q", out)
	}
	if mem.entries["k1"].Content != "some fact" {
		t.Fatalf("expected entry to be stored, got %+v", mem.entries["k1"])
	}
}

func TestMemoryRecallToolFormatsResults(t *testing.T) {
	mem := newFakeMemory()
	mem.entries["k1"] = protocol.MemoryEntry{Key: "k1", Content: "some fact"}
	tool := MemoryRecallTool{Memory: mem}

	out, err := tool.Execute(context.Background(), map[string]string{"query": "fact"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "k1") || !strings.Contains(out, "some fact") {
		t.Fatalf("got %q", out)
	}
}

func TestMemoryRecallToolReportsNoMatches(t *testing.T) {
	mem := newFakeMemory()
	tool := MemoryRecallTool{Memory: mem}

	out, err := tool.Execute(context.Background(), map[string]string{"query": "anything"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "No matching memories found" {
		t.Fatalf("got %q", out)
	}
}

func TestMemoryForgetToolReportsMissingKey(t *testing.T) {
	mem := newFakeMemory()
	tool := MemoryForgetTool{Memory: mem}

	out, err := tool.Execute(context.Background(), map[string]string{"key": "missing"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Memory not found" {
		t.Fatalf("got %q", out)
	}
}

func TestMemoryForgetToolDeletesExistingKey(t *testing.T) {
	mem := newFakeMemory()
	mem.entries["k1"] = protocol.MemoryEntry{Key: "k1", Content: "x"}
	tool := MemoryForgetTool{Memory: mem}

	out, err := tool.Execute(context.Background(), map[string]string{"key": "k1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Memory forgotten" {
		t.Fatalf("got %q", out)
	}
	if _, ok := mem.entries["k1"]; ok {
		t.Fatalf("expected key to be deleted")
	}
}

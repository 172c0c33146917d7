package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/internal/security"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// EchoTool is a trivial tool used for tests and the tool-loop scenario:
// it returns its "value" argument verbatim.
type EchoTool struct{}

func (EchoTool) Spec() Spec {
	return Spec{Name: "echo_tool", Description: "Echoes the value argument back.", Parameters: []string{"value"}, Group: "test", IsSafe: true}
}

func (EchoTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	return args["value"], nil
}

// ReadFileTool reads a workspace-relative file, enforcing containment via
// the shared security policy.
type ReadFileTool struct {
	Policy *security.Policy
}

func (ReadFileTool) Spec() Spec {
	return Spec{Name: "read", Description: "Reads a file from the workspace.", Parameters: []string{"path"}, Group: "fs", IsSafe: true}
}

func (t ReadFileTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	resolved, err := t.Policy.ResolveWorkspacePath(args["path"])
	if err != nil {
		return "", err
	}
	if t.Policy.IsForbiddenPath(resolved) {
		return "", security.ErrForbiddenPath
	}
	buf, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteFileTool writes a workspace-relative file, gated by autonomy and
// containment.
type WriteFileTool struct {
	Policy *security.Policy
}

func (WriteFileTool) Spec() Spec {
	return Spec{Name: "write", Description: "Writes a file in the workspace.", Parameters: []string{"path", "content"}, Group: "fs", IsSafe: false}
}

func (t WriteFileTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	if !t.Policy.AllowsWrite() {
		return "", security.ErrAutonomyViolation
	}
	resolved, err := t.Policy.ResolveWorkspacePath(args["path"])
	if err != nil {
		return "", err
	}
	if t.Policy.IsForbiddenPath(resolved) {
		return "", security.ErrForbiddenPath
	}
	if !t.Policy.RecordAction() {
		return "", security.ErrRateLimitExceeded
	}
	if err := os.WriteFile(resolved, []byte(args["content"]), 0600); err != nil {
		return "", err
	}
	return "ok", nil
}

// ExecTool runs an allowlisted shell command. Dangerous per the approval
// manager's criteria (group == "runtime").
type ExecTool struct {
	Policy *security.Policy
}

func (ExecTool) Spec() Spec {
	return Spec{Name: "exec", Description: "Runs an allowlisted shell command.", Parameters: []string{"command"}, Group: "runtime", IsSafe: false}
}

func (t ExecTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	cmdLine := args["command"]
	if !t.Policy.IsCommandAllowed(cmdLine) {
		return "", security.ErrCommandNotAllowed
	}
	if !t.Policy.AllowsWrite() {
		return "", security.ErrAutonomyViolation
	}
	fields := strings.Fields(cmdLine)
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = t.Policy.WorkspaceDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("exec: %w: %s", err, out)
	}
	return string(out), nil
}

// FileEditTool replaces a single, uniquely-matching substring of a
// workspace-relative file, writing the result atomically (temp file then
// rename) so a crash mid-write never leaves a half-edited file behind.
type FileEditTool struct {
	Policy *security.Policy
}

func (FileEditTool) Spec() Spec {
	return Spec{
		Name:        "file_edit",
		Description: "Replaces a unique substring in a workspace file.",
		Parameters:  []string{"path", "old_text", "new_text"},
		Group:       "fs",
		IsSafe:      false,
	}
}

var errEditMatchCount = errors.New("file_edit: old_text must match exactly once")

func (t FileEditTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	if !t.Policy.AllowsWrite() {
		return "", security.ErrAutonomyViolation
	}
	resolved, err := t.Policy.ResolveWorkspacePath(args["path"])
	if err != nil {
		return "", err
	}
	if t.Policy.IsForbiddenPath(resolved) {
		return "", security.ErrForbiddenPath
	}

	buf, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	original := string(buf)
	oldText := args["old_text"]
	if count := strings.Count(original, oldText); count != 1 {
		return "", errEditMatchCount
	}
	if !t.Policy.RecordAction() {
		return "", security.ErrRateLimitExceeded
	}

	updated := strings.Replace(original, oldText, args["new_text"], 1)
	tmp, err := os.CreateTemp(filepath.Dir(resolved), ".file_edit-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(updated); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, resolved); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return "ok", nil
}

// WebFetchTool fetches a URL over HTTP GET, strips HTML tags, and
// truncates the result to keep tool output bounded.
type WebFetchTool struct {
	Client *http.Client
}

const webFetchMaxBytes = 50 * 1024

func (WebFetchTool) Spec() Spec {
	return Spec{
		Name:        "web_fetch",
		Description: "Fetches a URL and returns its text content, truncated to 50KB.",
		Parameters:  []string{"url"},
		Group:       "web",
		IsSafe:      true,
	}
}

func (t WebFetchTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	url := args["url"]
	if url == "" {
		return "", fmt.Errorf("web_fetch: url is required")
	}
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("web_fetch: %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBytes+1))
	if err != nil {
		return "", err
	}
	truncated := len(body) > webFetchMaxBytes
	if truncated {
		body = body[:webFetchMaxBytes]
	}

	text := stripHTMLTags(string(body))
	if truncated {
		text += "\n[truncated]"
	}
	return text, nil
}

func stripHTMLTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// memoryStore is the subset of *memory.Store the memory builtin tools call
// against.
type memoryStore interface {
	Store(ctx context.Context, key, content string, category protocol.MemoryCategory) error
	Recall(ctx context.Context, query string, limit int) ([]protocol.RankedResult, error)
	Forget(ctx context.Context, key string) (bool, error)
}

// MemoryStoreTool exposes memory.Store.Store to the tool loop, so the
// model can save a memory explicitly instead of relying on auto-save.
type MemoryStoreTool struct {
	Memory memoryStore
}

func (MemoryStoreTool) Spec() Spec {
	return Spec{
		Name:        "memory_store",
		Description: "Stores a key/content pair in long-term memory.",
		Parameters:  []string{"key", "content", "category"},
		Group:       "memory",
		IsSafe:      true,
	}
}

func (t MemoryStoreTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	category := protocol.MemoryCategory(args["category"])
	if category == "" {
		category = protocol.MemoryCustom
	}
	if err := t.Memory.Store(ctx, args["key"], args["content"], category); err != nil {
		return "", err
	}
	return "Memory stored", nil
}

// MemoryRecallTool exposes memory.Store.Recall to the tool loop.
type MemoryRecallTool struct {
	Memory memoryStore
}

func (MemoryRecallTool) Spec() Spec {
	return Spec{
		Name:        "memory_recall",
		Description: "Searches long-term memory and returns the best-matching entries.",
		Parameters:  []string{"query", "limit"},
		Group:       "memory",
		IsSafe:      true,
	}
}

func (t MemoryRecallTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	limit := 5
	if raw := args["limit"]; raw != "" {
		if n, err := fmt.Sscanf(raw, "%d", &limit); err != nil || n != 1 {
			limit = 5
		}
	}
	results, err := t.Memory.Recall(ctx, args["query"], limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No matching memories found", nil
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s: %s (%.3f)\n", r.Entry.Key, r.Entry.Content, r.FinalScore)
	}
	return b.String(), nil
}

// MemoryForgetTool exposes memory.Store.Forget to the tool loop.
type MemoryForgetTool struct {
	Memory memoryStore
}

func (MemoryForgetTool) Spec() Spec {
	return Spec{
		Name:        "memory_forget",
		Description: "Deletes a memory entry by key.",
		Parameters:  []string{"key"},
		Group:       "memory",
		IsSafe:      false,
	}
}

func (t MemoryForgetTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	existed, err := t.Memory.Forget(ctx, args["key"])
	if err != nil {
		return "", err
	}
	if !existed {
		return "Memory not found", nil
	}
	return "Memory forgotten", nil
}

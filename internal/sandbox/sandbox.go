// Package sandbox implements the tool executor's sandbox gate: a per-key
// scratch workspace directory and a tool denylist, resolved by mode/scope
// through a resolve-runtime / is-tool-allowed / ensure-runtime contract,
// without a container or microVM backend behind it.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jamesmstone/ghostclaw-sub000/internal/executor"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// Mode determines which agents get sandboxed.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeAll     Mode = "all"
	ModeNonMain Mode = "non-main"
)

// Scope determines how runtimes are keyed and therefore shared.
type Scope string

const (
	ScopeAgent   Scope = "agent"
	ScopeSession Scope = "session"
	ScopeShared  Scope = "shared"
)

// Config controls mode, scope, the scratch-workspace root, and which tool
// names are refused while a call runs sandboxed.
type Config struct {
	Mode        Mode
	Scope       Scope
	Root        string
	DeniedTools []string
}

func (c Config) resolvedMode() Mode {
	switch c.Mode {
	case ModeAll, ModeNonMain:
		return c.Mode
	default:
		return ModeOff
	}
}

func (c Config) resolvedScope() Scope {
	switch c.Scope {
	case ScopeSession, ScopeShared:
		return c.Scope
	default:
		return ScopeAgent
	}
}

// ShouldSandbox decides, for the given mode, whether an agent should run
// sandboxed. The main agent is exempt under ModeNonMain.
func (c Config) ShouldSandbox(isMainAgent bool) bool {
	switch c.resolvedMode() {
	case ModeAll:
		return true
	case ModeNonMain:
		return !isMainAgent
	default:
		return false
	}
}

func (c Config) key(tc executor.ToolContext) string {
	switch c.resolvedScope() {
	case ScopeSession:
		return "session:" + tc.SessionID
	case ScopeShared:
		return "shared"
	default:
		return "agent:" + tc.AgentID
	}
}

// Sandbox is a minimal, real SandboxResolver: it hands each runtime key
// its own directory under Root (created on first use, reused afterward)
// and refuses any tool named in DeniedTools. It does not isolate CPU,
// memory, or network — those require a container or microVM backend this
// daemon doesn't carry.
type Sandbox struct {
	config Config
	denied map[string]bool

	mu       sync.Mutex
	runtimes map[string]string
}

// New builds a Sandbox. An empty Root defaults to a directory under the
// OS temp dir.
func New(config Config) *Sandbox {
	if config.Root == "" {
		config.Root = filepath.Join(os.TempDir(), "ghostclaw-sandbox")
	}
	denied := make(map[string]bool, len(config.DeniedTools))
	for _, name := range config.DeniedTools {
		denied[strings.ToLower(name)] = true
	}
	return &Sandbox{config: config, denied: denied, runtimes: map[string]string{}}
}

// IsToolAllowed reports whether name may run while sandboxed.
func (s *Sandbox) IsToolAllowed(name string) bool {
	return !s.denied[strings.ToLower(name)]
}

// EnsureRuntime creates (once per key) and returns the scratch directory
// backing this call's runtime. Subsequent calls for the same key are a
// no-op, so state accumulates across a session/agent/shared lifetime per
// Scope.
func (s *Sandbox) EnsureRuntime(ctx context.Context, call protocol.ToolCallRequest, tc executor.ToolContext) error {
	key := s.config.key(tc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runtimes[key]; ok {
		return nil
	}

	dir := filepath.Join(s.config.Root, sanitizeKey(key))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("sandbox: prepare runtime for %s: %w", key, err)
	}
	s.runtimes[key] = dir
	return nil
}

// RuntimeDir returns the prepared scratch directory for key, if any.
func (s *Sandbox) RuntimeDir(tc executor.ToolContext) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, ok := s.runtimes[s.config.key(tc)]
	return dir, ok
}

func sanitizeKey(key string) string {
	return strings.NewReplacer("/", "_", "..", "_", ":", "_").Replace(key)
}

// Package sessions implements the session store: append-only JSONL
// transcripts per session key, session override state, and a group
// index. Transcript files are opened in append mode with 0600
// permissions and receive one JSON line per entry.
package sessions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// Store owns per-session transcript files and in-memory session state.
type Store struct {
	mu        sync.Mutex
	dir       string
	states    map[string]protocol.SessionState
	groups    map[string]map[string]struct{} // group_id -> set of session keys
}

// New builds a Store rooted at dir (created if missing).
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("sessions: mkdir: %w", err)
	}
	return &Store{
		dir:    dir,
		states: map[string]protocol.SessionState{},
		groups: map[string]map[string]struct{}{},
	}, nil
}

func (s *Store) transcriptPath(sessionKey string) string {
	safe := strings.ReplaceAll(sessionKey, "/", "_")
	return filepath.Join(s.dir, safe+".jsonl")
}

// escapeJSONL escapes only '"', '\', and '\n'.
func escapeJSONL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

// Append writes one transcript entry to the session's JSONL file.
func (s *Store) Append(sessionKey string, entry protocol.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.transcriptPath(sessionKey), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("sessions: open transcript: %w", err)
	}
	defer f.Close()

	buf, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(buf, '\n')); err != nil {
		return err
	}
	return nil
}

// History reads every transcript entry for a session, in admission order.
func (s *Store) History(sessionKey string) ([]protocol.TranscriptEntry, error) {
	path := s.transcriptPath(sessionKey)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []protocol.TranscriptEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var entry protocol.TranscriptEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, scanner.Err()
}

// GetState returns the current override state for a session.
func (s *Store) GetState(sessionKey string) (protocol.SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[sessionKey]
	return st, ok
}

// SetState upserts the override state for a session and maintains the
// group index.
func (s *Store) SetState(sessionKey string, state protocol.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UpdatedAt = time.Now().UTC()
	state.ThinkingLevel = protocol.NormalizeThinkingLevel(string(state.ThinkingLevel))
	s.states[sessionKey] = state

	if state.GroupID != "" {
		set, ok := s.groups[state.GroupID]
		if !ok {
			set = map[string]struct{}{}
			s.groups[state.GroupID] = set
		}
		set[sessionKey] = struct{}{}
	}
}

// ListSessions returns every known session key.
func (s *Store) ListSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.states))
	for k := range s.states {
		out = append(out, k)
	}
	return out
}

// ListGroup returns every session key tagged with groupID.
func (s *Store) ListGroup(groupID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

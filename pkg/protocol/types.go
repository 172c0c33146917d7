// Package protocol holds the wire and storage types shared across the
// runtime core: session keys, transcript entries, memory entries, tool
// call requests/results, and ranked search results.
package protocol

import (
	"fmt"
	"strings"
	"time"
)

// ThinkingLevel is the reasoning-effort hint attached to session state.
type ThinkingLevel string

const (
	ThinkingMinimal  ThinkingLevel = "minimal"
	ThinkingLow      ThinkingLevel = "low"
	ThinkingStandard ThinkingLevel = "standard"
	ThinkingHigh     ThinkingLevel = "high"
	ThinkingCreative ThinkingLevel = "creative"
)

// NormalizeThinkingLevel collapses "medium" and unknown values to standard.
func NormalizeThinkingLevel(v string) ThinkingLevel {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "minimal":
		return ThinkingMinimal
	case "low":
		return ThinkingLow
	case "medium", "standard", "":
		return ThinkingStandard
	case "high":
		return ThinkingHigh
	case "creative":
		return ThinkingCreative
	default:
		return ThinkingStandard
	}
}

// SessionKey is the canonical triple (agent_id, channel_id, peer_id).
type SessionKey struct {
	AgentID   string
	ChannelID string
	PeerID    string
}

// String renders the canonical "agent:<a>:channel:<c>:peer:<p>" form.
func (k SessionKey) String() string {
	return fmt.Sprintf("agent:%s:channel:%s:peer:%s", k.AgentID, k.ChannelID, k.PeerID)
}

// MakeSessionKey normalizes raw input into the canonical session key string.
// A well-formed "agent:<a>:channel:<c>:peer:<p>" input is lowercased and
// trimmed segment by segment. Anything else is wrapped as the peer_id of
// the default agent/channel pair.
func MakeSessionKey(raw, defaultAgent, defaultChannel string) string {
	k, ok := ParseSessionKey(raw)
	if ok {
		return k.String()
	}
	return SessionKey{
		AgentID:   norm(defaultAgent),
		ChannelID: norm(defaultChannel),
		PeerID:    norm(raw),
	}.String()
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// ParseSessionKey parses a canonical session key string. ok is false if the
// input does not conform to the "agent:<a>:channel:<c>:peer:<p>" shape.
func ParseSessionKey(raw string) (SessionKey, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 6 {
		return SessionKey{}, false
	}
	if parts[0] != "agent" || parts[2] != "channel" || parts[4] != "peer" {
		return SessionKey{}, false
	}
	agent, channel, peer := norm(parts[1]), norm(parts[3]), norm(parts[5])
	if agent == "" || channel == "" || peer == "" {
		return SessionKey{}, false
	}
	return SessionKey{AgentID: agent, ChannelID: channel, PeerID: peer}, true
}

// InputProvenance traces a bridged transcript entry back to its origin.
type InputProvenance struct {
	Kind            string `json:"kind"`
	SourceSessionID string `json:"source_session_id,omitempty"`
	SourceChannel   string `json:"source_channel,omitempty"`
	SourceTool      string `json:"source_tool,omitempty"`
	SourceMessageID string `json:"source_message_id,omitempty"`
}

// Role is the speaker of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// TranscriptEntry is one append-only line of a session's conversation.
type TranscriptEntry struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	Timestamp  time.Time         `json:"timestamp"`
	Model      string            `json:"model,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Provenance *InputProvenance  `json:"input_provenance,omitempty"`
}

// SessionState is the per-session overridable configuration.
type SessionState struct {
	Model           string        `json:"model"`
	ThinkingLevel   ThinkingLevel `json:"thinking_level"`
	DeliveryContext string        `json:"delivery_context"`
	GroupID         string        `json:"group_id,omitempty"`
	AgentID         string        `json:"agent_id"`
	ChannelID       string        `json:"channel_id"`
	PeerID          string        `json:"peer_id"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// MemoryCategory classifies a stored memory entry.
type MemoryCategory string

const (
	MemoryCore         MemoryCategory = "core"
	MemoryDaily        MemoryCategory = "daily"
	MemoryConversation MemoryCategory = "conversation"
	MemoryCustom       MemoryCategory = "custom"
)

// MemoryEntry is a single stored memory row.
type MemoryEntry struct {
	Key       string         `json:"key"`
	Content   string         `json:"content"`
	Category  MemoryCategory `json:"category"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Score     float64        `json:"score,omitempty"`
	SourceFile string        `json:"source_file,omitempty"`
	Heading    string        `json:"heading,omitempty"`
}

// RankedResult is a memory entry scored by the hybrid ranker.
type RankedResult struct {
	Entry        MemoryEntry `json:"entry"`
	VectorScore  float64     `json:"vector_score"`
	KeywordScore float64     `json:"keyword_score"`
	Recency      float64     `json:"recency"`
	FinalScore   float64     `json:"final_score"`
}

// ToolCallRequest is a structured tool invocation emitted by an LLM.
type ToolCallRequest struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

// ToolCallResult is the outcome of executing a ToolCallRequest.
type ToolCallResult struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Success bool              `json:"success"`
	Output  string            `json:"output"`
	Truncated bool            `json:"truncated"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PairingState tracks a single outstanding or completed pairing code.
type PairingState struct {
	PlaintextCode     string
	MaxAttempts       int
	BearerTokenHashes map[string]struct{}
}

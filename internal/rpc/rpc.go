// Package rpc implements the method dispatch table shared by the
// WebSocket hub's "rpc" envelope and any other in-process caller:
// agent.run, config.get, session.* and health.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jamesmstone/ghostclaw-sub000/internal/agent"
	"github.com/jamesmstone/ghostclaw-sub000/internal/config"
	"github.com/jamesmstone/ghostclaw-sub000/internal/sessions"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// configAllowList is the set of keys config.get may read; everything
// else is refused to avoid leaking secrets like api_key.
var configAllowList = map[string]func(*config.Config) any{
	"default_provider": func(c *config.Config) any { return c.DefaultProvider },
	"default_model":     func(c *config.Config) any { return c.DefaultModel },
	"memory.backend":    func(c *config.Config) any { return c.Memory.Backend },
	"gateway.host":      func(c *config.Config) any { return c.Gateway.Host },
}

// Lane matches the gateway's per-session serialization lane; agent.run
// acquires it exactly like a webhook call does.
type Lane interface {
	Acquire(key string) func()
}

// Handler owns the dependencies every RPC method needs.
type Handler struct {
	Engine       *agent.Engine
	Sessions     *sessions.Store
	Config       *config.Config
	Lanes        Lane
	MemoryHealth func(ctx context.Context) (string, error)
	ProviderName string
	DefaultAgent string
	DefaultChan  string
}

// Dispatch routes method to its handler. params carries the envelope's
// inlined fields (already stripped of type/id/session by the transport).
func (h *Handler) Dispatch(ctx context.Context, method, session string, params map[string]any) (any, error) {
	switch method {
	case "agent.run":
		return h.agentRun(ctx, session, params)
	case "config.get":
		return h.configGet(params)
	case "session.list":
		return h.sessionList(), nil
	case "session.history":
		return h.sessionHistory(session)
	case "session.override.set":
		return h.sessionOverrideSet(session, params)
	case "session.override.get":
		return h.sessionOverrideGet(session)
	case "session.group.list":
		return h.sessionGroupList(params)
	case "health":
		return h.health(ctx), nil
	default:
		return nil, fmt.Errorf("rpc: unknown method %q", method)
	}
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func (h *Handler) resolveSession(raw string) string {
	defaultAgent := h.DefaultAgent
	if defaultAgent == "" {
		defaultAgent = "ghostclaw"
	}
	defaultChan := h.DefaultChan
	if defaultChan == "" {
		defaultChan = "rpc"
	}
	return protocol.MakeSessionKey(raw, defaultAgent, defaultChan)
}

func (h *Handler) agentRun(ctx context.Context, session string, params map[string]any) (any, error) {
	message := stringParam(params, "message")
	if message == "" {
		return nil, fmt.Errorf("rpc: agent.run requires message")
	}
	raw := session
	if s := stringParam(params, "session_id"); s != "" {
		raw = s
	}
	sessionKey := h.resolveSession(raw)

	release := func() {}
	if h.Lanes != nil {
		release = h.Lanes.Acquire(sessionKey)
	}
	defer release()

	groupID := stringParam(params, "group_id")
	thinkingLevel := protocol.NormalizeThinkingLevel(stringParam(params, "thinking_level"))
	messageID := uuid.New().String()

	if h.Sessions != nil {
		_ = h.Sessions.Append(sessionKey, protocol.TranscriptEntry{
			Role: protocol.RoleUser, Content: message, Timestamp: time.Now().UTC(),
			Provenance: &protocol.InputProvenance{
				Kind:            "rpc",
				SourceSessionID: sessionKey,
				SourceMessageID: messageID,
			},
		})
		h.Sessions.SetState(sessionKey, protocol.SessionState{
			Model: stringParam(params, "model"), ThinkingLevel: thinkingLevel, GroupID: groupID,
			DeliveryContext: "rpc",
		})
	}

	opts := agent.DefaultOptions()
	opts.SessionID = sessionKey
	opts.GroupID = groupID
	if h.Config != nil {
		opts.SandboxEnabled = h.Config.Sandbox.Enabled
		opts.WorkspacePath = h.Config.Autonomy.WorkspaceDir
	}
	if model := stringParam(params, "model"); model != "" {
		opts.ModelOverride = model
	}
	if tempRaw, ok := params["temperature"].(float64); ok {
		opts.TemperatureOverride = &tempRaw
	}

	resp, err := h.Engine.Run(ctx, message, opts)
	if err != nil {
		return nil, err
	}

	if h.Sessions != nil {
		_ = h.Sessions.Append(sessionKey, protocol.TranscriptEntry{
			Role: protocol.RoleAssistant, Content: resp.Content, Timestamp: time.Now().UTC(), Model: stringParam(params, "model"),
			Provenance: &protocol.InputProvenance{
				Kind:            "rpc",
				SourceSessionID: sessionKey,
				SourceMessageID: messageID,
			},
		})
	}

	return map[string]any{
		"content":        resp.Content,
		"duration_ms":    resp.DurationMillis,
		"message_id":     messageID,
		"tool_calls":     len(resp.ToolResults),
		"session_id":     sessionKey,
		"model":          stringParam(params, "model"),
		"thinking_level": string(thinkingLevel),
		"group_id":       groupID,
	}, nil
}

func (h *Handler) configGet(params map[string]any) (any, error) {
	key := stringParam(params, "key")
	accessor, ok := configAllowList[key]
	if !ok {
		return nil, fmt.Errorf("rpc: config key %q is not allowed", key)
	}
	if h.Config == nil {
		return nil, fmt.Errorf("rpc: no config loaded")
	}
	return map[string]any{"key": key, "value": accessor(h.Config)}, nil
}

func (h *Handler) sessionList() any {
	ids := h.Sessions.ListSessions()
	out := map[string]any{"count": len(ids)}
	for i, id := range ids {
		out[fmt.Sprintf("session_%d", i)] = id
	}
	return out
}

func (h *Handler) sessionHistory(session string) (any, error) {
	sessionKey := h.resolveSession(session)
	entries, err := h.Sessions.History(sessionKey)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"session_id":  sessionKey,
		"entries_json": string(buf),
		"count":       len(entries),
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		out["last_role"] = string(last.Role)
		out["last_content"] = last.Content
	}
	return out, nil
}

func (h *Handler) sessionOverrideSet(session string, params map[string]any) (any, error) {
	sessionKey := h.resolveSession(session)
	state := protocol.SessionState{
		Model:           stringParam(params, "model"),
		ThinkingLevel:   protocol.NormalizeThinkingLevel(stringParam(params, "thinking_level")),
		DeliveryContext: stringParam(params, "delivery_context"),
		GroupID:         stringParam(params, "group_id"),
	}
	h.Sessions.SetState(sessionKey, state)
	return map[string]any{"session_id": sessionKey, "status": "ok"}, nil
}

func (h *Handler) sessionOverrideGet(session string) (any, error) {
	sessionKey := h.resolveSession(session)
	state, ok := h.Sessions.GetState(sessionKey)
	if !ok {
		return map[string]any{"session_id": sessionKey, "found": false}, nil
	}
	return map[string]any{
		"session_id":       sessionKey,
		"found":            true,
		"model":            state.Model,
		"thinking_level":   string(state.ThinkingLevel),
		"delivery_context": state.DeliveryContext,
		"group_id":         state.GroupID,
	}, nil
}

func (h *Handler) sessionGroupList(params map[string]any) (any, error) {
	groupID := stringParam(params, "group_id")
	ids := h.Sessions.ListGroup(groupID)
	return map[string]any{"group_id": groupID, "count": len(ids), "sessions": ids}, nil
}

func (h *Handler) health(ctx context.Context) any {
	memStatus := "ok"
	if h.MemoryHealth != nil {
		if status, err := h.MemoryHealth(ctx); err == nil {
			memStatus = status
		} else {
			memStatus = "degraded"
		}
	}
	return map[string]any{
		"status":   "ok",
		"provider": h.ProviderName,
		"memory":   memStatus,
	}
}

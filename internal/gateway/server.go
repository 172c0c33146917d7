// Package gateway implements the HTTP front door: health, pairing,
// webhook ingestion, and a WhatsApp-shaped webhook variant, all funneling
// into the agent engine through a per-session serialization lane.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jamesmstone/ghostclaw-sub000/internal/agent"
	"github.com/jamesmstone/ghostclaw-sub000/internal/observability"
	"github.com/jamesmstone/ghostclaw-sub000/internal/pairing"
	"github.com/jamesmstone/ghostclaw-sub000/internal/sendpolicy"
	"github.com/jamesmstone/ghostclaw-sub000/internal/sessions"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// maxBodyBytes caps request bodies at 64 KiB; larger bodies are rejected
// with 413 before JSON decoding is attempted.
const maxBodyBytes = 64 * 1024

// MemoryHealth is the narrow, non-owning view the gateway needs of the
// agent's memory store for /health reporting. The agent engine owns the
// memory instance for its lifetime; the gateway only borrows this
// interface, it never holds a second strong reference.
type MemoryHealth interface {
	Count(ctx context.Context) (int, error)
}

// EventPublisher fans an event out to every WebSocket client subscribed
// to a session. The WS hub implements this; it is optional (nil is valid
// when the WebSocket server is disabled).
type EventPublisher interface {
	PublishSessionEvent(session string, payload map[string]any)
}

// Config controls bind address and feature toggles.
type Config struct {
	Host                string
	Port                int
	AllowPublicBind     bool
	TunnelActive        bool
	RequirePairing      bool
	WebSocketPort       int
	Version             string
	ProviderName        string
	WhatsAppVerifyToken string
	DefaultAgentID      string
	DefaultChannelID    string
	SandboxEnabled      bool
	WorkspaceDir        string
}

// ErrBindRefused is returned by ValidateBindAddress.
var ErrBindRefused = errors.New("gateway: refusing to bind non-loopback address without allow_public_bind or an active tunnel")

// ValidateBindAddress enforces the bind-address invariant: a
// non-loopback host requires either AllowPublicBind or an active tunnel.
func ValidateBindAddress(host string, allowPublicBind, tunnelActive bool) error {
	if isLoopback(host) {
		return nil
	}
	if allowPublicBind || tunnelActive {
		return nil
	}
	return ErrBindRefused
}

func isLoopback(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

// Server is the HTTP gateway.
type Server struct {
	Config     Config
	Engine     *agent.Engine
	Sessions   *sessions.Store
	SendPolicy *sendpolicy.Policy
	Pairing    *pairing.State
	Lanes      *Lanes
	Memory     MemoryHealth
	Publisher  EventPublisher
	Logger     *slog.Logger

	httpServer *http.Server
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return observability.DefaultLogger()
}

// Mux builds the HTTP dispatch table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pair", s.handlePair)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/whatsapp", s.handleWhatsApp)
	return mux
}

// ListenAndServe validates the bind address, then serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := ValidateBindAddress(s.Config.Host, s.Config.AllowPublicBind, s.Config.TunnelActive); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Mux(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Connection", "close")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBoundedBody(r *http.Request) ([]byte, error) {
	limited := io.LimitReader(r.Body, maxBodyBytes+1)
	buf, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(buf) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	return buf, nil
}

var errBodyTooLarge = errors.New("gateway: request body too large")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	memStatus := "ok"
	if s.Memory != nil {
		if _, err := s.Memory.Count(r.Context()); err != nil {
			memStatus = "degraded"
		}
	}
	wsStatus := "disabled"
	if s.Config.WebSocketPort != 0 {
		wsStatus = "ok"
	}
	body := map[string]any{
		"status":   "ok",
		"version":  s.Config.Version,
		"provider": s.Config.ProviderName,
		"components": map[string]any{
			"gateway":   "ok",
			"websocket": wsStatus,
			"memory":    memStatus,
		},
	}
	if s.Config.WebSocketPort != 0 {
		body["websocket_port"] = s.Config.WebSocketPort
	}
	writeJSON(w, http.StatusOK, body)
}

type pairRequest struct {
	Code string `json:"code"`
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	code := r.Header.Get("X-Pairing-Code")
	if code == "" {
		buf, err := readBoundedBody(r)
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body_too_large"})
			return
		}
		var req pairRequest
		_ = json.Unmarshal(buf, &req)
		code = req.Code
	}

	token, err := s.Pairing.Verify(code)
	if err != nil {
		var locked *pairing.LockedOutError
		if errors.As(err, &locked) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(locked.RetryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "locked_out"})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_code"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paired", "token": token})
}

type webhookRequest struct {
	Message            string  `json:"message"`
	Session            string  `json:"session"`
	SessionID          string  `json:"session_id"`
	Model              string  `json:"model"`
	ThinkingLevel      string  `json:"thinking_level"`
	GroupID            string  `json:"group_id"`
	Temperature        *float64 `json:"temperature"`
	InputProvenanceKind string  `json:"input_provenance_kind"`
}

func (s *Server) requireBearer(r *http.Request) bool {
	if !s.Config.RequirePairing {
		return true
	}
	return s.Pairing.ValidateBearer(r.Header.Get("Authorization"))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}
	if !s.requireBearer(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	buf, err := readBoundedBody(r)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body_too_large"})
		return
	}
	var req webhookRequest
	if err := json.Unmarshal(buf, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json"})
		return
	}

	raw := req.SessionID
	if raw == "" {
		raw = req.Session
	}
	sessionKey, err := s.resolveSessionKey(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_session"})
		return
	}

	if s.SendPolicy != nil && !s.SendPolicy.Allow(sessionKey) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "session_rate_limited"})
		return
	}

	resp, err := s.runAgent(r.Context(), sessionKey, req.Message, req.Model, req.ThinkingLevel, req.GroupID, req.Temperature, "webhook")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "agent_error"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mode := r.URL.Query().Get("hub.mode")
		token := r.URL.Query().Get("hub.verify_token")
		challenge := r.URL.Query().Get("hub.challenge")
		if mode == "subscribe" && token == s.Config.WhatsAppVerifyToken {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(challenge))
			return
		}
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "verification_failed"})
	case http.MethodPost:
		buf, err := readBoundedBody(r)
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body_too_large"})
			return
		}
		var req struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(buf, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json"})
			return
		}
		sessionKey, _ := s.resolveSessionKey("")
		resp, err := s.runAgent(r.Context(), sessionKey, req.Message, "", "", "", nil, "whatsapp")
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "agent_error"})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	}
}

func (s *Server) resolveSessionKey(raw string) (string, error) {
	defaultAgent := s.Config.DefaultAgentID
	if defaultAgent == "" {
		defaultAgent = "ghostclaw"
	}
	defaultChannel := s.Config.DefaultChannelID
	if defaultChannel == "" {
		defaultChannel = "webhook"
	}
	key := protocol.MakeSessionKey(raw, defaultAgent, defaultChannel)
	return strings.ToLower(key), nil
}

// runAgent acquires the session's lane (publishing assistant.queued if
// it was already held), runs the agent engine, and appends both turns to
// the transcript. The lane covers both the user-turn write and the
// assistant-turn write, so transcript append order matches admission
// order within a session.
func (s *Server) runAgent(ctx context.Context, sessionKey, message, model, thinkingLevel, groupID string, temperature *float64, deliveryContext string) (map[string]any, error) {
	if s.Lanes.Held(sessionKey) && s.Publisher != nil {
		s.Publisher.PublishSessionEvent(sessionKey, map[string]any{"type": "assistant.queued"})
	}
	release := s.Lanes.Acquire(sessionKey)
	defer release()

	messageID := uuid.New().String()

	if s.Sessions != nil {
		_ = s.Sessions.Append(sessionKey, protocol.TranscriptEntry{
			Role:      protocol.RoleUser,
			Content:   message,
			Timestamp: time.Now().UTC(),
			Provenance: &protocol.InputProvenance{
				Kind:            deliveryContext,
				SourceSessionID: sessionKey,
				SourceMessageID: messageID,
			},
		})
	}

	opts := agent.DefaultOptions()
	opts.SessionID = sessionKey
	opts.GroupID = groupID
	opts.SandboxEnabled = s.Config.SandboxEnabled
	opts.WorkspacePath = s.Config.WorkspaceDir
	if model != "" {
		opts.ModelOverride = model
	}
	if temperature != nil {
		opts.TemperatureOverride = temperature
	}
	_ = thinkingLevel // not applied on this path: no session state is written and no temperature is derived from it

	resp, err := s.Engine.Run(ctx, message, opts)
	if err != nil {
		return nil, err
	}

	if s.Sessions != nil {
		_ = s.Sessions.Append(sessionKey, protocol.TranscriptEntry{
			Role:      protocol.RoleAssistant,
			Content:   resp.Content,
			Timestamp: time.Now().UTC(),
			Provenance: &protocol.InputProvenance{
				Kind:            deliveryContext,
				SourceSessionID: sessionKey,
				SourceMessageID: messageID,
			},
		})
	}

	return map[string]any{
		"content":     resp.Content,
		"duration_ms": resp.DurationMillis,
		"tool_calls":  len(resp.ToolResults),
		"session_id":  sessionKey,
		"message_id":  messageID,
	}, nil
}

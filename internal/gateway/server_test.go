package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/internal/agent"
	"github.com/jamesmstone/ghostclaw-sub000/internal/executor"
	"github.com/jamesmstone/ghostclaw-sub000/internal/pairing"
	"github.com/jamesmstone/ghostclaw-sub000/internal/providers"
	"github.com/jamesmstone/ghostclaw-sub000/internal/sendpolicy"
	"github.com/jamesmstone/ghostclaw-sub000/internal/sessions"
	"github.com/jamesmstone/ghostclaw-sub000/internal/tools"
)

type stubProvider struct {
	providers.BaseProvider
	reply string
}

func (s *stubProvider) Name() string { return "stub" }
func (s *stubProvider) Chat(ctx context.Context, message, model string, temperature float64) (string, error) {
	return s.reply, nil
}
func (s *stubProvider) ChatWithSystem(ctx context.Context, system, message, model string, temperature float64) (string, error) {
	return s.reply, nil
}
func (s *stubProvider) ChatWithSystemTools(ctx context.Context, system, message, model string, temperature float64, tools []providers.Tool) (string, error) {
	return s.reply, nil
}
func (s *stubProvider) ChatWithSystemStream(ctx context.Context, system, message, model string, temperature float64, onChunk providers.OnChunk) (string, error) {
	return s.reply, nil
}
func (s *stubProvider) Warmup(ctx context.Context) error { return nil }

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	reg := tools.NewRegistry()
	ex := executor.New(reg, nil, nil, nil, executor.DefaultConfig())
	p := &stubProvider{reply: "hello from engine"}
	p.Self = p
	eng := &agent.Engine{Provider: p, Executor: ex}

	store, err := sessions.New(t.TempDir())
	if err != nil {
		t.Fatalf("sessions.New: %v", err)
	}

	pairingState, err := pairing.New(3, filepath.Join(t.TempDir(), "pairing.json"))
	if err != nil {
		t.Fatalf("pairing.New: %v", err)
	}

	return &Server{
		Config:   cfg,
		Engine:   eng,
		Sessions: store,
		Pairing:  pairingState,
		Lanes:    NewLanes(),
	}
}

func TestHandleHealthReportsOK(t *testing.T) {
	s := newTestServer(t, Config{Version: "v1", ProviderName: "openai"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ok" || body["provider"] != "openai" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestHandlePairSucceedsWithValidCode(t *testing.T) {
	s := newTestServer(t, Config{})
	code := s.Pairing.Code()

	payload, _ := json.Marshal(map[string]string{"code": code})
	req := httptest.NewRequest(http.MethodPost, "/pair", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "paired" || body["token"] == "" {
		t.Fatalf("unexpected pair body: %+v", body)
	}
}

func TestHandlePairRejectsWrongCode(t *testing.T) {
	s := newTestServer(t, Config{})

	payload, _ := json.Marshal(map[string]string{"code": "WRONG1"})
	req := httptest.NewRequest(http.MethodPost, "/pair", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHandlePairRejectsGet(t *testing.T) {
	s := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/pair", nil)
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleWebhookRunsAgentAndReturnsContent(t *testing.T) {
	s := newTestServer(t, Config{})

	payload, _ := json.Marshal(map[string]string{"message": "hi", "session_id": "u1"})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["content"] != "hello from engine" {
		t.Fatalf("unexpected webhook body: %+v", body)
	}
	if body["message_id"] == "" || body["message_id"] == nil {
		t.Fatalf("expected a generated message_id, got %+v", body)
	}
}

func TestHandleWebhookRequiresBearerWhenPairingRequired(t *testing.T) {
	s := newTestServer(t, Config{RequirePairing: true})

	payload, _ := json.Marshal(map[string]string{"message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHandleWebhookRejectsInvalidJSON(t *testing.T) {
	s := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleWebhookEnforcesRateLimit(t *testing.T) {
	s := newTestServer(t, Config{})
	s.SendPolicy = sendpolicy.New(sendpolicy.Config{Enabled: true, MaxPerWindow: 1, Window: time.Minute})

	payload, _ := json.Marshal(map[string]string{"message": "hi", "session_id": "u1"})

	req1 := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	w1 := httptest.NewRecorder()
	s.Mux().ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", w1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	w2 := httptest.NewRecorder()
	s.Mux().ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", w2.Code)
	}
}

func TestHandleWhatsAppVerificationChallenge(t *testing.T) {
	s := newTestServer(t, Config{WhatsAppVerifyToken: "secret-token"})
	req := httptest.NewRequest(http.MethodGet, "/whatsapp?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=123456", nil)
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "123456" {
		t.Fatalf("expected challenge echoed back, got %d %q", w.Code, w.Body.String())
	}
}

func TestHandleWhatsAppVerificationRejectsWrongToken(t *testing.T) {
	s := newTestServer(t, Config{WhatsAppVerifyToken: "secret-token"})
	req := httptest.NewRequest(http.MethodGet, "/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=123456", nil)
	w := httptest.NewRecorder()

	s.Mux().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestValidateBindAddressAllowsLoopback(t *testing.T) {
	if err := ValidateBindAddress("127.0.0.1", false, false); err != nil {
		t.Fatalf("expected loopback to be allowed, got %v", err)
	}
	if err := ValidateBindAddress("localhost", false, false); err != nil {
		t.Fatalf("expected localhost to be allowed, got %v", err)
	}
}

func TestValidateBindAddressRejectsPublicWithoutOverride(t *testing.T) {
	if err := ValidateBindAddress("0.0.0.0", false, false); err != ErrBindRefused {
		t.Fatalf("expected ErrBindRefused, got %v", err)
	}
}

func TestValidateBindAddressAllowsPublicWithOverride(t *testing.T) {
	if err := ValidateBindAddress("0.0.0.0", true, false); err != nil {
		t.Fatalf("expected allowed with AllowPublicBind, got %v", err)
	}
	if err := ValidateBindAddress("0.0.0.0", false, true); err != nil {
		t.Fatalf("expected allowed with active tunnel, got %v", err)
	}
}

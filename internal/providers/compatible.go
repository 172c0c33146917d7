package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/internal/httpclient"
)

// chatMessage is the OpenAI-compatible wire message shape.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type compatibleRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

// CompatibleProvider speaks the OpenAI-compatible chat completions wire
// format over raw HTTP, including a hand-rolled SSE reader for streaming
// responses (no SDK streaming client is used, so the SSE parsing path is
// exercised directly by tests rather than mocked away).
type CompatibleProvider struct {
	BaseProvider
	ProviderName  string
	BaseURL       string // e.g. "https://api.openai.com/v1/chat/completions"
	APIKey        string
	ExtraHeaders  map[string]string
	Client        httpclient.Client
}

// NewCompatibleProvider builds a CompatibleProvider. client may be nil, in
// which case a default 60s-timeout client is created.
func NewCompatibleProvider(name, baseURL, apiKey string, extraHeaders map[string]string, client httpclient.Client) *CompatibleProvider {
	if client == nil {
		client = httpclient.New(60 * time.Second)
	}
	p := &CompatibleProvider{
		ProviderName: name,
		BaseURL:      baseURL,
		APIKey:       apiKey,
		ExtraHeaders: extraHeaders,
		Client:       client,
	}
	p.Self = p
	return p
}

func (p *CompatibleProvider) Name() string { return p.ProviderName }

func (p *CompatibleProvider) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if p.APIKey != "" {
		h["Authorization"] = "Bearer " + p.APIKey
	}
	for k, v := range p.ExtraHeaders {
		h[k] = v
	}
	return h
}

func (p *CompatibleProvider) buildMessages(system, message string) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: message})
	return msgs
}

func (p *CompatibleProvider) Chat(ctx context.Context, message, model string, temperature float64) (string, error) {
	return p.ChatWithSystem(ctx, "", message, model, temperature)
}

func (p *CompatibleProvider) ChatWithSystem(ctx context.Context, system, message, model string, temperature float64) (string, error) {
	req := compatibleRequest{
		Model:       model,
		Messages:    p.buildMessages(system, message),
		Temperature: temperature,
	}
	resp, err := p.Client.PostJSON(ctx, p.BaseURL, p.headers(), req)
	if err != nil {
		return "", classifyTransportErr(p.ProviderName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errFromStatus(p.ProviderName, resp.StatusCode, resp.Header.Get("Retry-After"), resp.Body)
	}
	text, err := ParseOpenAIContent(resp.Body)
	if err != nil {
		return "", New(InvalidResponse, p.ProviderName, "parse failure on 2xx body").WithCause(err)
	}
	return text, nil
}

func (p *CompatibleProvider) ChatWithSystemTools(ctx context.Context, system, message, model string, temperature float64, tools []Tool) (string, error) {
	if len(tools) == 0 {
		return p.ChatWithSystem(ctx, system, message, model, temperature)
	}
	wire := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		wire = append(wire, wireTool{Type: "function", Function: toolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters}})
	}
	req := compatibleRequest{
		Model:       model,
		Messages:    p.buildMessages(system, message),
		Tools:       wire,
		ToolChoice:  "auto",
		Temperature: temperature,
	}
	resp, err := p.Client.PostJSON(ctx, p.BaseURL, p.headers(), req)
	if err != nil {
		return "", classifyTransportErr(p.ProviderName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errFromStatus(p.ProviderName, resp.StatusCode, resp.Header.Get("Retry-After"), resp.Body)
	}
	text, err := ParseOpenAIContent(resp.Body)
	if err != nil {
		return "", New(InvalidResponse, p.ProviderName, "parse failure on 2xx body").WithCause(err)
	}
	return text, nil
}

func (p *CompatibleProvider) ChatWithSystemStream(ctx context.Context, system, message, model string, temperature float64, onChunk OnChunk) (string, error) {
	req := compatibleRequest{
		Model:       model,
		Messages:    p.buildMessages(system, message),
		Temperature: temperature,
		Stream:      true,
	}
	resp, err := p.Client.PostJSONStream(ctx, p.BaseURL, p.headers(), req)
	if err != nil {
		return "", classifyTransportErr(p.ProviderName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := drain(resp.Body)
		return "", errFromStatus(p.ProviderName, resp.StatusCode, resp.Header.Get("Retry-After"), buf)
	}

	reader := newSSEReader(resp.Body)
	var full []byte
	for {
		ev, err := reader.Next()
		if err != nil {
			break
		}
		if ev.Done {
			break
		}
		delta := ExtractOpenAIDelta(ev.Data)
		if delta == "" {
			continue
		}
		full = append(full, delta...)
		if onChunk != nil {
			onChunk(delta)
		}
	}
	return string(full), nil
}

func (p *CompatibleProvider) Warmup(ctx context.Context) error {
	_, _ = p.Client.Head(ctx, p.BaseURL, p.headers())
	return nil
}

func classifyTransportErr(provider string, err error) error {
	if pe, ok := AsProviderError(err); ok {
		return pe
	}
	kind := NetworkError
	if errors.Is(err, httpclient.ErrTimeout) {
		kind = Timeout
	}
	return New(kind, provider, "transport failure").WithCause(err)
}

func errFromStatus(provider string, status int, retryAfterHeader string, body []byte) error {
	kind := ClassifyStatusCode(status)
	pe := New(kind, provider, fmt.Sprintf("http %d", status)).WithStatus(status).WithCause(fmt.Errorf("body: %s", truncate(body, 500)))
	if kind == RateLimitError {
		if secs, err := strconv.Atoi(retryAfterHeader); err == nil {
			pe = pe.WithRetryAfter(secs)
		}
	}
	return pe
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...[truncated]"
}

func drain(r io.Reader) []byte {
	buf, _ := io.ReadAll(r)
	return buf
}

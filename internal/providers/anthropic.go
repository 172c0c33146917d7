package providers

import (
	"context"

	"github.com/jamesmstone/ghostclaw-sub000/internal/httpclient"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

// AnthropicProvider speaks the Anthropic Messages wire format over raw
// HTTP with a hand-rolled SSE reader for streaming.
type AnthropicProvider struct {
	BaseProvider
	ProviderName string
	BaseURL      string // e.g. "https://api.anthropic.com/v1/messages"
	APIKey       string
	UseBearer    bool // false: x-api-key header; true: Authorization: Bearer
	ExtraHeaders map[string]string
	Client       httpclient.Client
}

func NewAnthropicProvider(name, baseURL, apiKey string, useBearer bool, extraHeaders map[string]string, client httpclient.Client) *AnthropicProvider {
	p := &AnthropicProvider{
		ProviderName: name,
		BaseURL:      baseURL,
		APIKey:       apiKey,
		UseBearer:    useBearer,
		ExtraHeaders: extraHeaders,
		Client:       client,
	}
	p.Self = p
	return p
}

func (p *AnthropicProvider) Name() string { return p.ProviderName }

func (p *AnthropicProvider) headers() map[string]string {
	h := map[string]string{
		"Content-Type":      "application/json",
		"anthropic-version": "2023-06-01",
	}
	if p.UseBearer {
		h["Authorization"] = "Bearer " + p.APIKey
	} else {
		h["x-api-key"] = p.APIKey
	}
	for k, v := range p.ExtraHeaders {
		h[k] = v
	}
	return h
}

func (p *AnthropicProvider) Chat(ctx context.Context, message, model string, temperature float64) (string, error) {
	return p.ChatWithSystem(ctx, "", message, model, temperature)
}

func (p *AnthropicProvider) ChatWithSystem(ctx context.Context, system, message, model string, temperature float64) (string, error) {
	req := anthropicRequest{
		Model:       model,
		MaxTokens:   4096,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: message}},
		Temperature: temperature,
	}
	resp, err := p.Client.PostJSON(ctx, p.BaseURL, p.headers(), req)
	if err != nil {
		return "", classifyTransportErr(p.ProviderName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errFromStatus(p.ProviderName, resp.StatusCode, resp.Header.Get("Retry-After"), resp.Body)
	}
	text, err := ParseAnthropicContent(resp.Body)
	if err != nil {
		return "", New(InvalidResponse, p.ProviderName, "parse failure on 2xx body").WithCause(err)
	}
	return text, nil
}

// ChatWithSystemTools has no native Anthropic tool_use wiring in this
// provider yet; it falls back to ChatWithSystem per the trait's default.
func (p *AnthropicProvider) ChatWithSystemTools(ctx context.Context, system, message, model string, temperature float64, tools []Tool) (string, error) {
	return p.ChatWithSystemToolsDefault(ctx, system, message, model, temperature, tools)
}

func (p *AnthropicProvider) ChatWithSystemStream(ctx context.Context, system, message, model string, temperature float64, onChunk OnChunk) (string, error) {
	req := anthropicRequest{
		Model:       model,
		MaxTokens:   4096,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: message}},
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
		delta := ExtractAnthropicDelta(ev.Data)
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

func (p *AnthropicProvider) Warmup(ctx context.Context) error {
	_, _ = p.Client.Head(ctx, p.BaseURL, p.headers())
	return nil
}

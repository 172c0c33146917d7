package providers

import (
	"context"
	"encoding/json"
	"strings"
)

// Tool is the OpenAI-style function-tool description passed to providers
// that support tool calling.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// OnChunk is invoked once per streamed text delta.
type OnChunk func(chunk string)

// Provider is the trait every built-in and pluggable LLM backend satisfies.
type Provider interface {
	Chat(ctx context.Context, message, model string, temperature float64) (string, error)
	ChatWithSystem(ctx context.Context, system, message, model string, temperature float64) (string, error)
	ChatWithSystemTools(ctx context.Context, system, message, model string, temperature float64, tools []Tool) (string, error)
	ChatWithSystemStream(ctx context.Context, system, message, model string, temperature float64, onChunk OnChunk) (string, error)
	Warmup(ctx context.Context) error
	Name() string
}

// BaseProvider supplies the default-implementation fallbacks shared across
// providers: ChatWithSystemToolsDefault degrades to ChatWithSystem, and
// ChatWithSystemStreamDefault degrades to a whitespace-tokenized replay of
// the non-streaming result.
//
// Concrete providers embed BaseProvider and implement every Provider
// method themselves; a provider without a native tools or streaming path
// calls the matching *Default helper from that method.
type BaseProvider struct {
	// Self must be set to the embedding provider so the default methods
	// can call back into whichever ChatWithSystem override is active.
	Self Provider
}

// ChatWithSystemToolsDefault falls back to ChatWithSystem, ignoring tools.
func (b *BaseProvider) ChatWithSystemToolsDefault(ctx context.Context, system, message, model string, temperature float64, tools []Tool) (string, error) {
	return b.Self.ChatWithSystem(ctx, system, message, model, temperature)
}

// ChatWithSystemStreamDefault tokenizes the final string by whitespace and
// emits chunks so callers observe a uniform streaming contract even when
// the provider has no native SSE path. This is a UX smoothing shim only:
// it must never be used to derive provider-level correctness properties.
func (b *BaseProvider) ChatWithSystemStreamDefault(ctx context.Context, system, message, model string, temperature float64, onChunk OnChunk) (string, error) {
	text, err := b.Self.ChatWithSystem(ctx, system, message, model, temperature)
	if err != nil {
		return "", err
	}
	if onChunk != nil {
		words := strings.Fields(text)
		for i, w := range words {
			chunk := w
			if i < len(words)-1 {
				chunk += " "
			}
			onChunk(chunk)
		}
	}
	return text, nil
}

// ParseOpenAIContent extracts choices[0].message.content from a buffered
// OpenAI-compatible chat completion body. If tool_calls is present,
// content (possibly empty) is concatenated with a serialized
// {"tool_calls": [...]} envelope so downstream parsers see one string.
func ParseOpenAIContent(body []byte) (string, error) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content   string          `json:"content"`
				ToolCalls json.RawMessage `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errNoChoices
	}
	msg := parsed.Choices[0].Message
	if len(msg.ToolCalls) > 0 && string(msg.ToolCalls) != "null" {
		envelope := struct {
			ToolCalls json.RawMessage `json:"tool_calls"`
		}{ToolCalls: msg.ToolCalls}
		buf, err := json.Marshal(envelope)
		if err != nil {
			return "", err
		}
		return msg.Content + string(buf), nil
	}
	return msg.Content, nil
}

// ParseAnthropicContent extracts content[0].text from a buffered Anthropic
// message body.
func ParseAnthropicContent(body []byte) (string, error) {
	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Content) == 0 {
		return "", errNoChoices
	}
	return parsed.Content[0].Text, nil
}

// ExtractOpenAIDelta returns the content delta from one SSE event payload,
// or "" if the event carries no content delta (role announcements, etc).
func ExtractOpenAIDelta(payload string) string {
	var parsed struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return ""
	}
	if len(parsed.Choices) == 0 {
		return ""
	}
	return parsed.Choices[0].Delta.Content
}

// ExtractAnthropicDelta returns the text delta from one Anthropic SSE
// event payload, or "" for non-text deltas (e.g. content_block_start,
// message_delta with no text).
func ExtractAnthropicDelta(payload string) string {
	var parsed struct {
		Type  string `json:"type"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return ""
	}
	if parsed.Type != "content_block_delta" {
		return ""
	}
	if parsed.Delta.Type != "text_delta" {
		return ""
	}
	return parsed.Delta.Text
}

var errNoChoices = &ProviderError{Kind: InvalidResponse, Message: "no choices/content in response"}

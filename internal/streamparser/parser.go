// Package streamparser detects tool calls in partial streamed text. It
// accepts three shapes: the OpenAI-compatible JSON tool_calls envelope,
// the Anthropic tool_use object, and a tolerant <tool>NAME</tool>
// <args>JSON</args> XML form that may be split across feed() calls.
package streamparser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// OnToolCall fires exactly once per logical detected tool call.
type OnToolCall func(call protocol.ToolCallRequest)

// Parser maintains a running buffer across feed() calls and emits detected
// tool calls idempotently: a call whose text is split across chunks fires
// its callback exactly once.
type Parser struct {
	buffer  strings.Builder
	onCall  OnToolCall
	fired   map[string]struct{}
	calls   []protocol.ToolCallRequest
	counter int
}

func New(onCall OnToolCall) *Parser {
	return &Parser{onCall: onCall, fired: map[string]struct{}{}}
}

var xmlToolRe = regexp.MustCompile(`(?s)<tool>(.*?)</tool>\s*<args>(.*?)</args>`)

// Feed appends chunk to the running buffer and re-attempts detection.
func (p *Parser) Feed(chunk string) {
	p.buffer.WriteString(chunk)
	p.detect()
}

// Finish signals no more input; callers should call this once streaming
// ends so any final buffered call is still parsed.
func (p *Parser) Finish() {
	p.detect()
}

// ToolCalls returns every tool call detected so far, in order.
func (p *Parser) ToolCalls() []protocol.ToolCallRequest {
	return p.calls
}

func (p *Parser) nextID() string {
	p.counter++
	return "call_" + itoa(p.counter)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func (p *Parser) emit(call protocol.ToolCallRequest, fingerprint string) {
	if _, ok := p.fired[fingerprint]; ok {
		return
	}
	p.fired[fingerprint] = struct{}{}
	p.calls = append(p.calls, call)
	if p.onCall != nil {
		p.onCall(call)
	}
}

func (p *Parser) detect() {
	text := p.buffer.String()

	// XML form, tolerant to being split across chunks.
	for _, m := range xmlToolRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		argsJSON := strings.TrimSpace(m[2])
		args := parseFlatArgs(argsJSON)
		fingerprint := "xml:" + name + ":" + argsJSON
		p.emit(protocol.ToolCallRequest{ID: p.nextID(), Name: name, Arguments: args}, fingerprint)
	}

	// JSON / Anthropic forms require a complete top-level object; attempt
	// to parse the whole buffer as JSON and give up silently otherwise
	// (the text may still be mid-stream).
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		p.detectJSON(trimmed)
	}
}

func parseFlatArgs(argsJSON string) map[string]string {
	var raw map[string]json.RawMessage
	out := map[string]string{}
	if err := json.Unmarshal([]byte(argsJSON), &raw); err != nil {
		return out
	}
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out
}

type openAIEnvelope struct {
	ToolCalls []struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"tool_calls"`
}

type anthropicToolUse struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (p *Parser) detectJSON(text string) {
	var env openAIEnvelope
	if err := json.Unmarshal([]byte(text), &env); err == nil && len(env.ToolCalls) > 0 {
		for _, tc := range env.ToolCalls {
			name := tc.Function.Name
			argsStr := tc.Function.Arguments
			if name == "" {
				name = tc.Name
				argsStr = tc.Arguments
			}
			args := parseFlatArgs(argsStr)
			id := tc.ID
			if id == "" {
				id = p.nextID()
			}
			fingerprint := "oa:" + id + ":" + name + ":" + argsStr
			p.emit(protocol.ToolCallRequest{ID: id, Name: name, Arguments: args}, fingerprint)
		}
		return
	}

	var use anthropicToolUse
	if err := json.Unmarshal([]byte(text), &use); err == nil && use.Type == "tool_use" && use.Name != "" {
		args := parseFlatArgs(string(use.Input))
		fingerprint := "an:" + use.Name + ":" + string(use.Input)
		p.emit(protocol.ToolCallRequest{ID: p.nextID(), Name: use.Name, Arguments: args}, fingerprint)
	}
}

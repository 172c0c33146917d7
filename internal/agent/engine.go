// Package agent implements the agent engine: prompt assembly, memory
// recall, the tool loop, and streaming orchestration. Control flow is
// Init -> Stream -> Execute Tools -> Complete, looping back to Stream
// whenever the parser detected tool calls.
//
//	  Init
//	   |
//	   v
//	Stream  <---------------+
//	   |                     |
//	   | tool_calls detected |
//	   v                     |
//	Execute Tools ----------+
//	   |
//	   | no tool_calls, or max_tool_iterations reached
//	   v
//	Complete
package agent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/internal/contextbuilder"
	"github.com/jamesmstone/ghostclaw-sub000/internal/executor"
	"github.com/jamesmstone/ghostclaw-sub000/internal/observability"
	"github.com/jamesmstone/ghostclaw-sub000/internal/providers"
	"github.com/jamesmstone/ghostclaw-sub000/internal/streamparser"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// MemoryRecall is the narrow memory contract the engine needs: recall top
// candidates and optionally auto-save the assistant turn.
type MemoryRecall interface {
	Recall(ctx context.Context, query string, limit int) ([]protocol.RankedResult, error)
	Store(ctx context.Context, key, content string, category protocol.MemoryCategory) error
}

const minMemoryScore = 0.3
const recallLimit = 5

// injectionPatterns is a non-blocking heuristic: on match, a warning
// metric is recorded but the request is never rejected.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all|any|previous|prior) instructions`),
	regexp.MustCompile(`(?i)disregard (all|any|previous|prior) (instructions|prompt)`),
	regexp.MustCompile(`(?i)you are now\b`),
	regexp.MustCompile(`(?i)reveal (your|the) system prompt`),
}

// Engine is the agent engine.
type Engine struct {
	Provider        providers.Provider
	Executor        *executor.Executor
	ContextBuilder  *contextbuilder.Builder
	Memory          MemoryRecall
	AutoSaveMemory  bool
	Logger          *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return observability.DefaultLogger()
}

func scanPromptInjection(text string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Run executes one non-streaming agent turn.
func (e *Engine) Run(ctx context.Context, message string, opts Options) (Response, error) {
	return e.run(ctx, message, nil, opts)
}

// RunStream executes one agent turn, forwarding streamed chunks to
// callbacks.OnToken.
func (e *Engine) RunStream(ctx context.Context, message string, callbacks Callbacks, opts Options) (Response, error) {
	resp, err := e.run(ctx, message, &callbacks, opts)
	if err != nil {
		if callbacks.OnError != nil {
			callbacks.OnError(err)
		}
		return resp, err
	}
	if callbacks.OnDone != nil {
		callbacks.OnDone(resp)
	}
	return resp, nil
}

func (e *Engine) run(ctx context.Context, message string, callbacks *Callbacks, opts Options) (Response, error) {
	opts.sanitize()
	start := time.Now()
	e.logger().Info("agent.start", "session_id", opts.SessionID, "agent_id", opts.AgentID)

	if scanPromptInjection(message) {
		observability.IncrementCounter("agent.prompt_injection_suspected", 1, map[string]string{"session_id": opts.SessionID})
	}

	system := ""
	if e.ContextBuilder != nil {
		system = e.ContextBuilder.Build()
	}

	conversation := message
	if e.Memory != nil && strings.TrimSpace(message) != "" {
		if block := e.recallBlock(ctx, message); block != "" {
			conversation = block + "\n\n" + message
		}
	}

	var allToolResults []protocol.ToolCallResult
	var finalText string
	var lastText string
	loopExhausted := true

	model := opts.ModelOverride
	temperature := 0.7
	if opts.TemperatureOverride != nil {
		temperature = *opts.TemperatureOverride
	}

	for iteration := 0; iteration < opts.MaxToolIterations; iteration++ {
		parser := streamparser.New(nil)

		var text string
		var err error
		if callbacks != nil && callbacks.OnToken != nil {
			text, err = e.Provider.ChatWithSystemStream(ctx, system, conversation, model, temperature, func(chunk string) {
				parser.Feed(chunk)
				callbacks.OnToken(chunk)
			})
		} else {
			text, err = e.Provider.ChatWithSystem(ctx, system, conversation, model, temperature)
			parser.Feed(text)
		}
		if err != nil {
			return Response{}, err
		}
		parser.Finish()
		lastText = text

		calls := parser.ToolCalls()
		if len(calls) == 0 {
			finalText = text
			loopExhausted = false
			break
		}

		tc := executor.ToolContext{
			SessionID: opts.SessionID, AgentID: opts.AgentID, ChannelID: opts.ChannelID,
			GroupID: opts.GroupID, ToolProfile: opts.ToolProfile,
			WorkspacePath: opts.WorkspacePath, SandboxEnabled: opts.SandboxEnabled,
		}
		results := e.Executor.ExecuteConcurrently(ctx, calls, tc)
		allToolResults = append(allToolResults, results...)

		conversation = conversation + "\n\n" + formatToolResults(results)
	}

	if loopExhausted {
		// Last assistant text stands even without a terminating
		// tool-free turn; this is a guard, not a failure.
		finalText = lastText
	}

	scanOutputForLeak(finalText)

	if e.AutoSaveMemory && e.Memory != nil {
		key := "turn:" + time.Now().UTC().Format(time.RFC3339Nano)
		_ = e.Memory.Store(ctx, key, finalText, protocol.MemoryConversation)
	}

	elapsed := time.Since(start)
	e.logger().Info("agent.end", "session_id", opts.SessionID, "duration_ms", elapsed.Milliseconds())

	return Response{
		Content:        finalText,
		ToolResults:    allToolResults,
		LoopExhausted:  loopExhausted,
		DurationMillis: elapsed.Milliseconds(),
	}, nil
}

func (e *Engine) recallBlock(ctx context.Context, query string) string {
	results, err := e.Memory.Recall(ctx, query, recallLimit)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	any := false
	for _, r := range results {
		if r.FinalScore < minMemoryScore {
			continue
		}
		if !any {
			sb.WriteString("## Relevant memory\n")
			any = true
		}
		sb.WriteString("- " + r.Entry.Content + "\n")
	}
	if !any {
		return ""
	}
	return sb.String()
}

var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)here is (my|the) system prompt`),
}

func scanOutputForLeak(text string) {
	for _, re := range leakPatterns {
		if re.MatchString(text) {
			observability.IncrementCounter("agent.prompt_leak_suspected", 1, nil)
			return
		}
	}
}

func formatToolResults(results []protocol.ToolCallResult) string {
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString("[tool:" + r.Name + "] ")
		if r.Success {
			sb.WriteString(r.Output)
		} else {
			sb.WriteString("error: " + r.Output)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

package agent

import (
	"math"

	"github.com/jamesmstone/ghostclaw-sub000/internal/toolpolicy"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// Options configures a single agent.Run / agent.RunStream call.
type Options struct {
	ProviderOverride    string
	ModelOverride       string
	TemperatureOverride *float64
	SessionID           string
	AgentID             string
	ChannelID           string
	GroupID             string
	ToolProfile         toolpolicy.Profile
	MaxToolIterations   int
	WorkspacePath       string
	SandboxEnabled      bool
}

// DefaultOptions returns the engine's baseline tuning (max_tool_iterations = 10).
func DefaultOptions() Options {
	return Options{MaxToolIterations: 10}
}

func (o *Options) sanitize() {
	if o.MaxToolIterations <= 0 {
		o.MaxToolIterations = 10
	}
}

// TemperatureForThinkingLevel maps a thinking level to a temperature,
// given the caller's default temperature. minimal/low clamp to at most
// 0.2; high clamps to at least 0.9; creative clamps to at least 0.95;
// standard leaves the default unchanged.
func TemperatureForThinkingLevel(level protocol.ThinkingLevel, defaultTemp float64) float64 {
	switch level {
	case protocol.ThinkingMinimal, protocol.ThinkingLow:
		return math.Min(defaultTemp, 0.2)
	case protocol.ThinkingHigh:
		return math.Max(defaultTemp, 0.9)
	case protocol.ThinkingCreative:
		return math.Max(defaultTemp, 0.95)
	default:
		return defaultTemp
	}
}

// Callbacks are invoked during RunStream.
type Callbacks struct {
	OnToken func(chunk string)
	OnDone  func(resp Response)
	OnError func(err error)
}

// Response is the outcome of a Run/RunStream call.
type Response struct {
	Content         string
	ToolResults     []protocol.ToolCallResult
	LoopExhausted   bool
	DurationMillis  int64
}

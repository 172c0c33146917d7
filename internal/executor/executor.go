// Package executor implements the tool executor: parallel dispatch of
// tool calls, each gated in order by tool policy, tool existence, sandbox
// resolution, a per-tool cooldown circuit breaker, and approval, before
// executing.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/internal/tools"
	"github.com/jamesmstone/ghostclaw-sub000/internal/toolpolicy"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

// Config controls concurrency and per-call timeout.
type Config struct {
	Concurrency    int
	PerToolTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Concurrency: 4, PerToolTimeout: 30 * time.Second}
}

// ToolContext carries the request-scoped identity the scheduling gates
// (policy, sandbox, approval) need.
type ToolContext struct {
	SessionID      string
	MainSessionID  string
	AgentID        string
	ChannelID      string
	GroupID        string
	ToolProfile    toolpolicy.Profile
	WorkspacePath  string
	SandboxEnabled bool
	Provider       string
}

const cooldownThreshold = 3
const cooldownDuration = 30 * time.Second

// circuitState is one tool's failure-streak/cooldown tracking.
type circuitState struct {
	consecutiveFailures int
	cooldownUntil       time.Time
}

// SandboxResolver gates and resolves a runtime for a tool call when
// sandboxing is enabled. A nil resolver means sandboxing is never engaged.
type SandboxResolver interface {
	IsToolAllowed(name string) bool
	EnsureRuntime(ctx context.Context, call protocol.ToolCallRequest, tc ToolContext) error
}

// Executor dispatches tool calls under policy/approval/sandbox/circuit
// gates.
type Executor struct {
	registry *tools.Registry
	policy   *toolpolicy.Policy
	approval *toolpolicy.ApprovalManager
	sandbox  SandboxResolver
	config   Config

	mu     sync.Mutex
	states map[string]*circuitState
}

// New builds an Executor. policy, approval, and sandbox may be nil, in
// which case that gate is skipped.
func New(registry *tools.Registry, policy *toolpolicy.Policy, approval *toolpolicy.ApprovalManager, sandbox SandboxResolver, config Config) *Executor {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = DefaultConfig().PerToolTimeout
	}
	return &Executor{
		registry: registry,
		policy:   policy,
		approval: approval,
		sandbox:  sandbox,
		config:   config,
		states:   map[string]*circuitState{},
	}
}

// ExecuteConcurrently runs every call as its own task, bounded by a
// semaphore, and returns results in the same order as the input.
func (e *Executor) ExecuteConcurrently(ctx context.Context, calls []protocol.ToolCallRequest, tc ToolContext) []protocol.ToolCallResult {
	results := make([]protocol.ToolCallResult, len(calls))
	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call protocol.ToolCallRequest) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = protocol.ToolCallResult{ID: call.ID, Name: call.Name, Success: false, Output: "context canceled"}
				return
			}
			results[idx] = e.executeOne(ctx, call, tc)
		}(i, call)
	}

	wg.Wait()
	return results
}

func (e *Executor) executeOne(ctx context.Context, call protocol.ToolCallRequest, tc ToolContext) protocol.ToolCallResult {
	fail := func(msg string) protocol.ToolCallResult {
		e.recordFailure(call.Name)
		return protocol.ToolCallResult{ID: call.ID, Name: call.Name, Success: false, Output: msg}
	}

	// 1. Tool policy.
	if e.policy != nil {
		decision := e.policy.Evaluate(toolpolicy.Request{ToolName: call.Name, Provider: tc.Provider})
		if !decision.Allowed {
			return protocol.ToolCallResult{ID: call.ID, Name: call.Name, Success: false,
				Output: fmt.Sprintf("Tool blocked by policy (%s): %s", decision.Blocker, decision.Reason)}
		}
	}

	// 2. Tool existence.
	t, ok := e.registry.Lookup(call.Name)
	if !ok {
		return protocol.ToolCallResult{ID: call.ID, Name: call.Name, Success: false, Output: "Unknown tool: " + call.Name}
	}
	spec := t.Spec()

	// 3. Sandbox resolution.
	if tc.SandboxEnabled && e.sandbox != nil {
		if !e.sandbox.IsToolAllowed(call.Name) {
			return protocol.ToolCallResult{ID: call.ID, Name: call.Name, Success: false, Output: "Tool blocked by sandbox policy: " + call.Name}
		}
		if err := e.sandbox.EnsureRuntime(ctx, call, tc); err != nil {
			return fail(err.Error())
		}
	}

	// 4. Cooldown check.
	if blocked, remaining := e.checkCooldown(call.Name); blocked {
		_ = remaining
		return protocol.ToolCallResult{ID: call.ID, Name: call.Name, Success: false, Output: "Tool in cooldown: " + call.Name}
	}

	// 5. Approval.
	if e.approval != nil {
		info := toolpolicy.ToolInfo{Name: call.Name, Group: spec.Group, IsSafe: spec.IsSafe}
		if toolpolicy.IsDangerous(info) {
			id := call.ID
			e.approval.RequestApproval(id, call.Name, tc.SessionID)
			status, err := e.approval.Await(id)
			if err != nil {
				return fail(err.Error())
			}
			if status != toolpolicy.ApprovalApproved {
				return protocol.ToolCallResult{ID: call.ID, Name: call.Name, Success: false, Output: "Tool execution denied by approval policy"}
			}
		}
	}

	// 6. Execute, with per-call timeout.
	callCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
	defer cancel()

	type execOutcome struct {
		out string
		err error
	}
	ch := make(chan execOutcome, 1)
	go func() {
		out, err := t.Execute(callCtx, call.Arguments)
		select {
		case ch <- execOutcome{out, err}:
		default:
		}
	}()

	select {
	case <-callCtx.Done():
		return fail(fmt.Sprintf("tool execution timed out after %v", e.config.PerToolTimeout))
	case res := <-ch:
		if res.err != nil {
			return fail(res.err.Error())
		}
		e.recordSuccess(call.Name)
		return protocol.ToolCallResult{ID: call.ID, Name: call.Name, Success: true, Output: res.out}
	}
}

func (e *Executor) checkCooldown(name string) (bool, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[name]
	if !ok {
		return false, 0
	}
	if st.cooldownUntil.IsZero() {
		return false, 0
	}
	now := time.Now()
	if now.Before(st.cooldownUntil) {
		return true, st.cooldownUntil.Sub(now)
	}
	return false, 0
}

func (e *Executor) recordFailure(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[name]
	if !ok {
		st = &circuitState{}
		e.states[name] = st
	}
	st.consecutiveFailures++
	if st.consecutiveFailures >= cooldownThreshold {
		st.cooldownUntil = time.Now().Add(cooldownDuration)
	}
}

func (e *Executor) recordSuccess(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[name]
	if !ok {
		return
	}
	st.consecutiveFailures = 0
	st.cooldownUntil = time.Time{}
}

package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/internal/security"
	"github.com/jamesmstone/ghostclaw-sub000/internal/tools"
	"github.com/jamesmstone/ghostclaw-sub000/internal/toolpolicy"
	"github.com/jamesmstone/ghostclaw-sub000/pkg/protocol"
)

type failingTool struct{}

func (failingTool) Spec() tools.Spec {
	return tools.Spec{Name: "failing", Group: "test", IsSafe: true}
}
func (failingTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	return "", errors.New("boom")
}

type slowTool struct{ delay time.Duration }

func (slowTool) Spec() tools.Spec {
	return tools.Spec{Name: "slow", Group: "test", IsSafe: true}
}
func (s slowTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	select {
	case <-time.After(s.delay):
		return "done", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newRegistry(t ...tools.Tool) *tools.Registry {
	r := tools.NewRegistry()
	for _, tt := range t {
		r.Register(tt)
	}
	return r
}

func TestExecuteConcurrentlyRunsEachCall(t *testing.T) {
	reg := newRegistry(tools.EchoTool{})
	ex := New(reg, nil, nil, nil, DefaultConfig())

	calls := []protocol.ToolCallRequest{
		{ID: "1", Name: "echo_tool", Arguments: map[string]string{"value": "a"}},
		{ID: "2", Name: "echo_tool", Arguments: map[string]string{"value": "b"}},
	}
	results := ex.ExecuteConcurrently(context.Background(), calls, ToolContext{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success || results[0].Output != "a" {
		t.Fatalf("unexpected result[0]: %+v", results[0])
	}
	if !results[1].Success || results[1].Output != "b" {
		t.Fatalf("unexpected result[1]: %+v", results[1])
	}
}

func TestExecuteUnknownToolFails(t *testing.T) {
	ex := New(newRegistry(), nil, nil, nil, DefaultConfig())
	results := ex.ExecuteConcurrently(context.Background(), []protocol.ToolCallRequest{{ID: "1", Name: "ghost"}}, ToolContext{})
	if results[0].Success {
		t.Fatalf("expected failure for unknown tool")
	}
}

func TestPolicyBlocksDisallowedTool(t *testing.T) {
	reg := newRegistry(tools.EchoTool{})
	policy := toolpolicy.NewBuilder().WithProfile(toolpolicy.ProfileMinimal).Build()
	ex := New(reg, policy, nil, nil, DefaultConfig())

	results := ex.ExecuteConcurrently(context.Background(), []protocol.ToolCallRequest{{ID: "1", Name: "echo_tool"}}, ToolContext{})
	if results[0].Success {
		t.Fatalf("expected policy to block echo_tool under minimal profile")
	}
}

func TestCircuitBreakerEntersCooldownAfterConsecutiveFailures(t *testing.T) {
	reg := newRegistry(failingTool{})
	ex := New(reg, nil, nil, nil, DefaultConfig())

	for i := 0; i < cooldownThreshold; i++ {
		results := ex.ExecuteConcurrently(context.Background(), []protocol.ToolCallRequest{{ID: "x", Name: "failing"}}, ToolContext{})
		if results[0].Success {
			t.Fatalf("expected failure on attempt %d", i)
		}
	}

	results := ex.ExecuteConcurrently(context.Background(), []protocol.ToolCallRequest{{ID: "x", Name: "failing"}}, ToolContext{})
	if results[0].Output != "Tool in cooldown: failing" {
		t.Fatalf("expected cooldown message, got %q", results[0].Output)
	}
}

func TestPerCallTimeout(t *testing.T) {
	reg := newRegistry(slowTool{delay: 100 * time.Millisecond})
	cfg := Config{Concurrency: 1, PerToolTimeout: 10 * time.Millisecond}
	ex := New(reg, nil, nil, nil, cfg)

	results := ex.ExecuteConcurrently(context.Background(), []protocol.ToolCallRequest{{ID: "1", Name: "slow"}}, ToolContext{})
	if results[0].Success {
		t.Fatalf("expected timeout failure")
	}
}

type fakeSandbox struct {
	deniedTools map[string]bool
	ensured     []string
}

func (f *fakeSandbox) IsToolAllowed(name string) bool {
	return !f.deniedTools[name]
}

func (f *fakeSandbox) EnsureRuntime(ctx context.Context, call protocol.ToolCallRequest, tc ToolContext) error {
	f.ensured = append(f.ensured, call.Name)
	return nil
}

func TestSandboxBlocksDeniedToolWhenEnabled(t *testing.T) {
	reg := newRegistry(tools.EchoTool{})
	sb := &fakeSandbox{deniedTools: map[string]bool{"echo_tool": true}}
	ex := New(reg, nil, nil, sb, DefaultConfig())

	results := ex.ExecuteConcurrently(context.Background(), []protocol.ToolCallRequest{{ID: "1", Name: "echo_tool"}}, ToolContext{SandboxEnabled: true})
	if results[0].Success {
		t.Fatalf("expected sandbox to block denied tool")
	}
	if len(sb.ensured) != 0 {
		t.Fatalf("expected EnsureRuntime not to run for a blocked tool")
	}
}

func TestSandboxEnsuresRuntimeForAllowedTool(t *testing.T) {
	reg := newRegistry(tools.EchoTool{})
	sb := &fakeSandbox{deniedTools: map[string]bool{}}
	ex := New(reg, nil, nil, sb, DefaultConfig())

	results := ex.ExecuteConcurrently(context.Background(), []protocol.ToolCallRequest{{ID: "1", Name: "echo_tool", Arguments: map[string]string{"value": "x"}}}, ToolContext{SandboxEnabled: true})
	if !results[0].Success {
		t.Fatalf("expected allowed tool to succeed, got %+v", results[0])
	}
	if len(sb.ensured) != 1 || sb.ensured[0] != "echo_tool" {
		t.Fatalf("expected EnsureRuntime to run once for echo_tool, got %v", sb.ensured)
	}
}

func TestSandboxSkippedWhenNotEnabled(t *testing.T) {
	reg := newRegistry(tools.EchoTool{})
	sb := &fakeSandbox{deniedTools: map[string]bool{"echo_tool": true}}
	ex := New(reg, nil, nil, sb, DefaultConfig())

	results := ex.ExecuteConcurrently(context.Background(), []protocol.ToolCallRequest{{ID: "1", Name: "echo_tool", Arguments: map[string]string{"value": "x"}}}, ToolContext{SandboxEnabled: false})
	if !results[0].Success {
		t.Fatalf("expected tool to run when sandbox is not enabled for this call, got %+v", results[0])
	}
	if len(sb.ensured) != 0 {
		t.Fatalf("expected EnsureRuntime not to run when sandboxing is disabled")
	}
}

func TestApprovalRequiredForDangerousTool(t *testing.T) {
	policy := security.New(".", []string{"echo"}, security.Full, 100, nil)
	reg := newRegistry(tools.ExecTool{Policy: policy})
	approval := toolpolicy.NewApprovalManager(50 * time.Millisecond)
	ex := New(reg, nil, approval, nil, DefaultConfig())

	results := ex.ExecuteConcurrently(context.Background(), []protocol.ToolCallRequest{{ID: "1", Name: "exec", Arguments: map[string]string{"command": "echo hi"}}}, ToolContext{})
	if results[0].Success {
		t.Fatalf("expected denial when approval expires unanswered")
	}
}

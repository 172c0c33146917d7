package toolpolicy

import "testing"

func TestNormalizeToolResolvesAliases(t *testing.T) {
	if got := NormalizeTool("bash"); got != "exec" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeTool("unknown_tool"); got != "unknown_tool" {
		t.Fatalf("expected passthrough for unknown tool, got %q", got)
	}
}

func TestEvaluateProfileDefaultAllowsGroupMembers(t *testing.T) {
	p := NewBuilder().WithProfile(ProfileCoding).Build()
	d := p.Evaluate(Request{ToolName: "read"})
	if !d.Allowed {
		t.Fatalf("expected read allowed under coding profile: %+v", d)
	}
	d = p.Evaluate(Request{ToolName: "web_search"})
	if d.Allowed {
		t.Fatalf("expected web_search denied under coding profile: %+v", d)
	}
}

func TestEvaluateDenyOverridesAllow(t *testing.T) {
	p := NewBuilder().WithProfile(ProfileFull).Deny("exec").Build()
	d := p.Evaluate(Request{ToolName: "exec"})
	if d.Allowed {
		t.Fatalf("expected deny to win over profile-full allow")
	}
	if d.Blocker != "policy" {
		t.Fatalf("expected blocker=policy, got %q", d.Blocker)
	}
}

func TestEvaluateExplicitAllowOverridesProfile(t *testing.T) {
	p := NewBuilder().WithProfile(ProfileMinimal).Allow("exec").Build()
	d := p.Evaluate(Request{ToolName: "exec"})
	if !d.Allowed {
		t.Fatalf("expected explicit allow to override minimal profile default: %+v", d)
	}
}

func TestEvaluateAliasRespectsPolicyOnCanonicalName(t *testing.T) {
	p := NewBuilder().WithProfile(ProfileFull).Deny("exec").Build()
	d := p.Evaluate(Request{ToolName: "bash"})
	if d.Allowed {
		t.Fatalf("expected alias 'bash' to be denied via its canonical name 'exec'")
	}
}

func TestEvaluateProviderOverrideCanDeny(t *testing.T) {
	override := NewBuilder().WithProfile(ProfileMinimal).Build()
	p := NewBuilder().WithProfile(ProfileFull).WithProviderPolicy("restricted", override).Build()

	d := p.Evaluate(Request{ToolName: "exec", Provider: "restricted"})
	if d.Allowed {
		t.Fatalf("expected provider override to deny exec under minimal profile")
	}

	d = p.Evaluate(Request{ToolName: "exec", Provider: "other"})
	if !d.Allowed {
		t.Fatalf("expected non-overridden provider to fall back to base policy: %+v", d)
	}
}

func TestIsMCPTool(t *testing.T) {
	if !IsMCPTool("mcp:server.tool") || !IsMCPTool("mcp.server.tool") {
		t.Fatalf("expected both mcp prefixes recognized")
	}
	if IsMCPTool("read") {
		t.Fatalf("expected plain tool name rejected")
	}
}

func TestIsDangerous(t *testing.T) {
	if !IsDangerous(ToolInfo{Name: "write", IsSafe: false}) {
		t.Fatalf("expected unsafe tool to be dangerous")
	}
	if !IsDangerous(ToolInfo{Name: "anything", IsSafe: true, Group: "runtime"}) {
		t.Fatalf("expected runtime-group tool to be dangerous")
	}
	if !IsDangerous(ToolInfo{Name: "bash", IsSafe: true, Group: "fs"}) {
		t.Fatalf("expected bash (aliases to exec) to be dangerous")
	}
	if IsDangerous(ToolInfo{Name: "read", IsSafe: true, Group: "fs"}) {
		t.Fatalf("expected safe non-runtime read to not be dangerous")
	}
}

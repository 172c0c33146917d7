// Package toolpolicy implements the per-tool allow/deny pipeline and the
// interactive approval manager for dangerous tool calls.
package toolpolicy

import "strings"

// Profile names a coarse default tool-access posture.
type Profile string

const (
	ProfileMinimal   Profile = "minimal"
	ProfileCoding    Profile = "coding"
	ProfileMessaging Profile = "messaging"
	ProfileFull      Profile = "full"
)

// ToolAliases canonicalizes a handful of historical/alternate tool names.
var ToolAliases = map[string]string{
	"bash":         "exec",
	"shell":        "exec",
	"apply-patch":  "edit",
	"apply_patch":  "edit",
	"sandbox":      "execute_code",
	"websearch":    "web_search",
	"webfetch":     "web_fetch",
}

// NormalizeTool resolves a tool name through ToolAliases.
func NormalizeTool(name string) string {
	if canon, ok := ToolAliases[name]; ok {
		return canon
	}
	return name
}

// ToolGroup is a named bundle of tool names.
type ToolGroup struct {
	Name  string
	Tools []string
}

// DefaultGroups is the default tool-group taxonomy.
var DefaultGroups = map[string]ToolGroup{
	"group:fs":      {Name: "group:fs", Tools: []string{"read", "write", "edit", "exec"}},
	"group:web":     {Name: "group:web", Tools: []string{"web_search", "web_fetch"}},
	"group:runtime": {Name: "group:runtime", Tools: []string{"execute_code"}},
	"group:memory":  {Name: "group:memory", Tools: []string{"memory_search"}},
}

// ProfileDefaults assigns a default Allow list per profile.
var ProfileDefaults = map[Profile][]string{
	ProfileMinimal:   {"group:memory"},
	ProfileCoding:     {"group:fs", "group:memory"},
	ProfileMessaging: {"group:memory"},
	ProfileFull:      {"group:fs", "group:web", "group:runtime", "group:memory"},
}

// Policy is a layered allow/deny rule set. Deny overrides allow.
type Policy struct {
	Profile    Profile
	Allow      []string
	Deny       []string
	ByProvider map[string]*Policy
}

func expand(names []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, n := range names {
		if group, ok := DefaultGroups[n]; ok {
			for _, t := range group.Tools {
				out[t] = struct{}{}
			}
			continue
		}
		out[n] = struct{}{}
	}
	return out
}

// Decision is the outcome of evaluating a tool against a policy.
type Decision struct {
	Allowed bool
	Blocker string // which layer produced a deny, e.g. "policy", "profile"
	Reason  string
}

// Request identifies the tool and context being checked.
type Request struct {
	ToolName string
	Group    string
	Provider string
}

// Evaluate applies profile defaults, then Allow, then Deny (deny wins),
// then any provider-specific override.
func (p *Policy) Evaluate(req Request) Decision {
	tool := NormalizeTool(req.ToolName)

	allow := expand(p.Allow)
	if len(p.Allow) == 0 {
		allow = expand(ProfileDefaults[p.Profile])
	}
	deny := expand(p.Deny)

	_, allowed := allow[tool]
	if _, denied := deny[tool]; denied {
		return Decision{Allowed: false, Blocker: "policy", Reason: "tool denied by policy: " + tool}
	}
	if !allowed {
		return Decision{Allowed: false, Blocker: "policy", Reason: "tool not in allowed set: " + tool}
	}

	if p.ByProvider != nil {
		if override, ok := p.ByProvider[req.Provider]; ok {
			d := override.Evaluate(req)
			if !d.Allowed {
				return d
			}
		}
	}

	return Decision{Allowed: true}
}

// Builder provides a fluent construction path for a Policy.
type Builder struct {
	policy Policy
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) WithProfile(p Profile) *Builder {
	b.policy.Profile = p
	return b
}

func (b *Builder) Allow(names ...string) *Builder {
	b.policy.Allow = append(b.policy.Allow, names...)
	return b
}

func (b *Builder) Deny(names ...string) *Builder {
	b.policy.Deny = append(b.policy.Deny, names...)
	return b
}

func (b *Builder) WithProviderPolicy(provider string, p *Policy) *Builder {
	if b.policy.ByProvider == nil {
		b.policy.ByProvider = map[string]*Policy{}
	}
	b.policy.ByProvider[provider] = p
	return b
}

func (b *Builder) Build() *Policy {
	built := b.policy
	return &built
}

// IsMCPTool reports whether a tool name uses the "mcp:server.tool" or
// "mcp.server.tool" external-tool naming convention.
func IsMCPTool(name string) bool {
	return strings.HasPrefix(name, "mcp:") || strings.HasPrefix(name, "mcp.")
}

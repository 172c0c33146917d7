package providers

import (
	"fmt"
	"os"
	"strings"

	"github.com/jamesmstone/ghostclaw-sub000/internal/httpclient"
)

// RouteKind distinguishes the two wire families a named provider resolves
// to.
type RouteKind int

const (
	RouteCompatible RouteKind = iota
	RouteAnthropic
)

// Route describes how a provider name is turned into a live Provider.
type Route struct {
	Kind          RouteKind
	BaseURL       string
	RequireAPIKey bool
	UseBearerAuth bool // Anthropic routes only
	ExtraHeaders  map[string]string
}

// nameAliases canonicalizes a handful of provider names to their resolved
// route key.
var nameAliases = map[string]string{
	"opencode-zen": "opencode",
	"kimi-code":    "kimi-coding",
	"z.ai":         "zai",
}

// Registry resolves a provider name to a Route and constructs Providers.
type Registry struct {
	routes map[string]Route
	client httpclient.Client
}

// NewRegistry builds a registry pre-seeded with the built-in routes.
func NewRegistry(client httpclient.Client) *Registry {
	if client == nil {
		client = httpclient.New(0)
	}
	r := &Registry{routes: map[string]Route{}, client: client}
	r.routes["openai"] = Route{Kind: RouteCompatible, BaseURL: "https://api.openai.com/v1/chat/completions", RequireAPIKey: true}
	r.routes["anthropic"] = Route{Kind: RouteAnthropic, BaseURL: "https://api.anthropic.com/v1/messages", RequireAPIKey: true, UseBearerAuth: false}
	r.routes["openrouter"] = Route{Kind: RouteCompatible, BaseURL: "https://openrouter.ai/api/v1/chat/completions", RequireAPIKey: true,
		ExtraHeaders: map[string]string{"HTTP-Referer": "https://ghostclaw.local", "X-Title": "GhostClaw"}}
	r.routes["opencode"] = Route{Kind: RouteCompatible, BaseURL: "https://opencode.zen/v1/chat/completions", RequireAPIKey: true}
	r.routes["kimi-coding"] = Route{Kind: RouteCompatible, BaseURL: "https://api.moonshot.ai/v1/chat/completions", RequireAPIKey: true}
	r.routes["zai"] = Route{Kind: RouteCompatible, BaseURL: "https://open.bigmodel.cn/api/paas/v4/chat/completions", RequireAPIKey: true}
	r.routes["cloudflare-ai-gateway"] = Route{Kind: RouteCompatible, BaseURL: "https://gateway.ai.cloudflare.com/v1/<account_id>/<gateway_id>/openai/chat/completions", RequireAPIKey: true}
	return r
}

// RegisterRoute adds or overrides a named route.
func (r *Registry) RegisterRoute(name string, route Route) {
	r.routes[name] = route
}

func canonicalName(name string) string {
	if alias, ok := nameAliases[name]; ok {
		return alias
	}
	return name
}

// resolveAPIKey applies env-var precedence: explicit arg, then
// <PROVIDER>_API_KEY, then GHOSTCLAW_API_KEY.
func resolveAPIKey(name, explicit string) string {
	if explicit != "" {
		return explicit
	}
	envName := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_API_KEY"
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return os.Getenv("GHOSTCLAW_API_KEY")
}

// resolveBaseURL applies override precedence: <PROVIDER>_BASE_URL then
// GHOSTCLAW_<PROVIDER>_BASE_URL.
func resolveBaseURL(name, fallback string) string {
	envName := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_BASE_URL"
	if v := os.Getenv(envName); v != "" {
		return v
	}
	ghostEnv := "GHOSTCLAW_" + envName
	if v := os.Getenv(ghostEnv); v != "" {
		return v
	}
	return fallback
}

// Build constructs a live Provider for the given provider name. explicitKey
// may be empty to defer entirely to environment resolution.
func (r *Registry) Build(name, explicitKey string) (Provider, error) {
	canon := canonicalName(name)
	route, ok := r.routes[canon]
	if !ok {
		return nil, fmt.Errorf("providers: unknown provider %q", name)
	}

	baseURL := resolveBaseURL(canon, route.BaseURL)
	if strings.Contains(baseURL, "<account_id>") || strings.Contains(baseURL, "<gateway_id>") {
		return nil, fmt.Errorf("providers: %q base URL still contains a placeholder, refusing to start: %s", name, baseURL)
	}

	apiKey := resolveAPIKey(canon, explicitKey)
	if route.RequireAPIKey && apiKey == "" {
		return nil, fmt.Errorf("providers: %q requires an API key", name)
	}

	switch route.Kind {
	case RouteAnthropic:
		return NewAnthropicProvider(canon, baseURL, apiKey, route.UseBearerAuth, route.ExtraHeaders, r.client), nil
	default:
		return NewCompatibleProvider(canon, baseURL, apiKey, route.ExtraHeaders, r.client), nil
	}
}

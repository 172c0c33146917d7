// Package reliable implements the retry-plus-fallback composition over the
// provider trait: exponential backoff against the primary, then a single
// attempt per ordered fallback (no circuit breaker here — that lives
// per-tool in the executor, not per-provider).
package reliable

import (
	"context"
	"time"

	"github.com/jamesmstone/ghostclaw-sub000/internal/providers"
)

// Config controls retry/backoff behavior.
type Config struct {
	MaxRetries int           // retries against the primary before trying fallbacks
	BackoffMs  time.Duration // base backoff; doubled per attempt, no jitter
}

// DefaultConfig returns conservative retry defaults.
func DefaultConfig() Config {
	return Config{MaxRetries: 2, BackoffMs: 200 * time.Millisecond}
}

// Provider wraps a primary provider and an ordered list of fallbacks.
type Provider struct {
	primary   providers.Provider
	fallbacks []providers.Provider
	config    Config
}

// New builds a reliable provider. Its Name() is always the literal string
// "reliable", regardless of which underlying provider actually served the
// call.
func New(primary providers.Provider, fallbacks []providers.Provider, config Config) *Provider {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	if config.BackoffMs <= 0 {
		config.BackoffMs = DefaultConfig().BackoffMs
	}
	return &Provider{primary: primary, fallbacks: fallbacks, config: config}
}

func (p *Provider) Name() string { return "reliable" }

// call is the shape of any provider operation so the retry loop can be
// generic across Chat/ChatWithSystem/etc.
type call func(ctx context.Context, prov providers.Provider) (string, error)

func (p *Provider) run(ctx context.Context, op call) (string, error) {
	var lastErr error

	backoff := p.config.BackoffMs
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		text, err := op(ctx, p.primary)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !providers.IsRetryable(err) {
			break
		}
		if attempt < p.config.MaxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}
	}

	for _, fb := range p.fallbacks {
		text, err := op(ctx, fb)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}

	return "", lastErr
}

func (p *Provider) Chat(ctx context.Context, message, model string, temperature float64) (string, error) {
	return p.run(ctx, func(ctx context.Context, prov providers.Provider) (string, error) {
		return prov.Chat(ctx, message, model, temperature)
	})
}

func (p *Provider) ChatWithSystem(ctx context.Context, system, message, model string, temperature float64) (string, error) {
	return p.run(ctx, func(ctx context.Context, prov providers.Provider) (string, error) {
		return prov.ChatWithSystem(ctx, system, message, model, temperature)
	})
}

func (p *Provider) ChatWithSystemTools(ctx context.Context, system, message, model string, temperature float64, tools []providers.Tool) (string, error) {
	return p.run(ctx, func(ctx context.Context, prov providers.Provider) (string, error) {
		return prov.ChatWithSystemTools(ctx, system, message, model, temperature, tools)
	})
}

func (p *Provider) ChatWithSystemStream(ctx context.Context, system, message, model string, temperature float64, onChunk providers.OnChunk) (string, error) {
	return p.run(ctx, func(ctx context.Context, prov providers.Provider) (string, error) {
		return prov.ChatWithSystemStream(ctx, system, message, model, temperature, onChunk)
	})
}

// Warmup iterates every provider; fallback warmup failures are swallowed
// since a cold fallback is still usable, just slower on first call.
func (p *Provider) Warmup(ctx context.Context) error {
	err := p.primary.Warmup(ctx)
	for _, fb := range p.fallbacks {
		_ = fb.Warmup(ctx)
	}
	return err
}

var _ providers.Provider = (*Provider)(nil)

// Package sendpolicy implements the per-session ingress rate limiter: a
// sliding window admitting at most max_per_window requests within
// window_seconds, keyed by normalized session key.
package sendpolicy

import (
	"sync"
	"time"
)

// Config controls the sliding window.
type Config struct {
	Enabled      bool
	MaxPerWindow int
	Window       time.Duration
}

// Policy tracks admission timestamps per session.
type Policy struct {
	mu      sync.Mutex
	config  Config
	history map[string][]time.Time
}

func New(config Config) *Policy {
	return &Policy{config: config, history: map[string][]time.Time{}}
}

// Allow reports whether a new request for sessionKey is admissible right
// now, and records the admission if so.
func (p *Policy) Allow(sessionKey string) bool {
	if !p.config.Enabled {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-p.config.Window)

	hist := p.history[sessionKey]
	i := 0
	for ; i < len(hist); i++ {
		if hist[i].After(cutoff) {
			break
		}
	}
	hist = hist[i:]

	if len(hist) >= p.config.MaxPerWindow {
		p.history[sessionKey] = hist
		return false
	}
	hist = append(hist, now)
	p.history[sessionKey] = hist
	return true
}

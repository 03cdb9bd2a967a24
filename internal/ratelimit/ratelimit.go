// Package ratelimit throttles chat turns per session and per client address.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ent0n29/bravurbot/internal/observability"
)

// Rule allows Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) enabled() bool { return r.Limit > 0 && r.Window > 0 }

var (
	DefaultSessionRule = Rule{Limit: 50, Window: time.Hour}
	DefaultIPRule      = Rule{Limit: 100, Window: time.Minute}
)

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts hits against key under rule.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}

// Guard applies the session and client-address rules before a chat turn.
type Guard struct {
	limiter Limiter
	session Rule
	ip      Rule
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewGuard(limiter Limiter, session, ip Rule, metrics *observability.Metrics, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{limiter: limiter, session: session, ip: ip, metrics: metrics, logger: logger}
}

// Check returns the first denying decision and its scope ("session" or "ip").
// Limiter failures are logged and the request is let through.
func (g *Guard) Check(ctx context.Context, sessionID, clientIP string) (Decision, string) {
	if g == nil || g.limiter == nil {
		return Decision{Allowed: true}, ""
	}
	checks := []struct {
		scope string
		id    string
		rule  Rule
	}{
		{"session", sessionID, g.session},
		{"ip", clientIP, g.ip},
	}
	for _, c := range checks {
		if c.id == "" || !c.rule.enabled() {
			continue
		}
		d, err := g.limiter.Allow(ctx, fmt.Sprintf("ratelimit:%s:%s", c.scope, c.id), c.rule)
		if err != nil {
			g.logger.Warn("rate limiter unavailable", "scope", c.scope, "error", err)
			continue
		}
		if !d.Allowed {
			g.metrics.IncRateLimited(c.scope)
			return d, c.scope
		}
	}
	return Decision{Allowed: true}, ""
}

// Package ratelimit implements the request gateway: a fixed-window counter
// keyed by (client identity, route class), backed by a shared atomic counter
// store, with fail-open semantics on store outages.
package ratelimit

import (
	"time"

	"github.com/fixflowhq/fixflow/internal/config"
)

// Class is the policy bucket a request falls into.
type Class string

const (
	ClassRead    Class = "read"
	ClassWrite   Class = "write"
	ClassAuth    Class = "auth"
	ClassWebhook Class = "webhook"
	// ClassExempt skips the limiter entirely.
	ClassExempt Class = "exempt"
)

// Policy is the request budget for one route class.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Policies maps each gated class to its budget.
type Policies map[Class]Policy

// PoliciesFromConfig builds the policy table, applying class defaults for
// unset values.
func PoliciesFromConfig(cfg config.RateLimitConfig) Policies {
	return Policies{
		ClassRead:    policyFrom(cfg.Read, 60, time.Minute),
		ClassWrite:   policyFrom(cfg.Write, 30, time.Minute),
		ClassAuth:    policyFrom(cfg.Auth, 5, time.Minute),
		ClassWebhook: policyFrom(cfg.Webhook, 100, time.Minute),
	}
}

func policyFrom(c config.RatePolicyConfig, defaultLimit int, defaultWindow time.Duration) Policy {
	p := Policy{
		Limit:  c.Limit,
		Window: time.Duration(c.WindowSeconds) * time.Second,
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Window <= 0 {
		p.Window = defaultWindow
	}
	return p
}

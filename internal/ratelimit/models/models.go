package models

import (
	"strings"
	"time"
)

// KeyPrefix namespaces every bucket key.
const KeyPrefix = "fishtank:rl"

// Scope groups routes that share one bucket per client.
type Scope string

const (
	ScopeSubmit Scope = "submit"
)

// Key builds the bucket key for a scope and client identifier.
func Key(scope Scope, identifier string) string {
	return strings.Join([]string{KeyPrefix, string(scope), identifier}, ":")
}

type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

type RateLimitExceededResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RetryAfter       int    `json:"retry_after"`
}

// Package ratelimit bounds how many updates one chat may produce per window.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter evaluates a sliding-window rate limit for a key.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

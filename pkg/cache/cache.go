// Package cache wraps Redis for the short-lived counters the API needs.
package cache

import (
	"context"
	"time"
)

// WindowCounter counts events in fixed windows.
type WindowCounter interface {
	// IncrWindow increments key, starting a window of the given length on
	// the first hit, and returns the count and the time left in the window.
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Package cache holds short-lived read models: the latest decision per gate,
// the recent access-event list, guest session lookups by plate and the
// per-gate throttle counters. Nothing here is authoritative.
package cache

import (
	"context"
	"strings"
	"time"
)

type Cache interface {
	// SetJSON stores v encoded as JSON. ttl <= 0 means no expiry.
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	// GetJSON decodes the value at key into dst and reports whether it existed.
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	Delete(ctx context.Context, key string) error
	// PushJSON prepends v to the list at key, keeping at most maxLen items.
	PushJSON(ctx context.Context, key string, v any, maxLen int) error
	// ListJSON hands up to limit list items, newest first, to decode.
	ListJSON(ctx context.Context, key string, limit int, decode func([]byte) error) error
	// Incr bumps a fixed-window counter; the window starts on first increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

const prefix = "smartgate:"

func AccessEventsKey() string { return prefix + "access_events" }

func GuestSessionKey(plate string) string {
	return prefix + "guest_session:" + strings.ToUpper(plate)
}

func InferenceKey(gate string) string { return prefix + "inference:" + gate }

func RateLimitKey(gate string) string { return prefix + "ratelimit:" + gate }

// Package cache holds the short-lived key/value layer in front of the
// persistent store. Entries are opaque byte payloads with a per-entry TTL.
//
// Implementations report failures to the caller; deciding that a failure is
// harmless is the caller's job.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get returns the value for key. A missing or expired key is reported
	// as ok=false with a nil error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Nop is a Cache that stores nothing. Every Get is a miss.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Package storage provides the key/value tiers the token store persists into.
//
// A session tier holds values scoped to one running client (an open tab in the
// browser original); a persistent tier survives restarts. Both share one
// interface so the token store never knows which backend it talks to.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by tiers used after Close.
var ErrClosed = errors.New("storage tier closed")

// Tier is a string key/value store. Get reports whether the key was present.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Closer is implemented by tiers holding external resources.
type Closer interface {
	Close() error
}

// Close releases the tier if it holds resources.
func Close(t Tier) error {
	if c, ok := t.(Closer); ok {
		return c.Close()
	}
	return nil
}

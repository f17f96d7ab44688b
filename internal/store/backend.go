// Package store provides the persistence backends for connection records:
// the node's own datastore, a Redis instance, or process memory for tests.
// Keys are hierarchical paths, matching the datastore's key model.
package store

import (
	"context"
	"errors"
)

// ErrExists is returned by PutNew when the key is already present.
var ErrExists = errors.New("key already exists")

// ErrNotFound is returned by Delete when the key is absent.
var ErrNotFound = errors.New("key not found")

// Entry is one stored value with its full key path.
type Entry struct {
	Key   []string
	Value string
}

// Backend stores string values under hierarchical keys. Implementations do
// not synchronize; callers serialize access.
type Backend interface {
	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key []string) (string, bool, error)
	// Put writes the value at key, creating or replacing it.
	Put(ctx context.Context, key []string, value string) error
	// PutNew writes the value at key, failing with ErrExists when the key
	// is already present.
	PutNew(ctx context.Context, key []string, value string) error
	// Delete removes the entry at key, failing with ErrNotFound when
	// absent.
	Delete(ctx context.Context, key []string) error
	// List returns all entries strictly below the given key prefix.
	List(ctx context.Context, prefix []string) ([]Entry, error)
}

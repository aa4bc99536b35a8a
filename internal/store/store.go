// Package store provides cache storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/aria/internal/domain"
)

var (
	// ErrNoCache is returned when an operation names a cache that was never opened.
	ErrNoCache = errors.New("cache does not exist")

	// ErrBusy is returned when the underlying database is locked by another writer.
	ErrBusy = errors.New("storage busy")
)

// CacheStorage defines named caches of stored responses, one per cache generation.
type CacheStorage interface {
	// Open creates the named cache if it does not exist yet.
	// created reports whether this call created it.
	Open(ctx context.Context, name string) (created bool, err error)

	// Keys returns the names of all caches, oldest first.
	Keys(ctx context.Context) ([]string, error)

	// Delete removes a cache and every asset in it.
	// Returns false if no cache had that name.
	Delete(ctx context.Context, name string) (bool, error)

	// PutAll replaces the contents of a cache with assets in one transaction.
	// Either every asset is stored or none is.
	PutAll(ctx context.Context, name string, assets []*domain.CachedAsset) error

	// Match returns the asset stored under the exact URL.
	// Returns nil and no error on a miss.
	Match(ctx context.Context, name, url string) (*domain.CachedAsset, error)

	// URLs lists the URLs stored in a cache in insertion order.
	URLs(ctx context.Context, name string) ([]string, error)

	// Ping verifies storage connectivity.
	Ping(ctx context.Context) error

	// Close releases the storage.
	Close() error
}

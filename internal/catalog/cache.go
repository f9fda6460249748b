// Package catalog caches the upstream model catalog so /models does not hit
// the provider on every request. The catalog is opaque bytes to us; clients
// get it exactly as the provider sent it.
package catalog

import (
	"context"
	"time"
)

// Key under which the catalog body is stored.
const Key = "models:catalog"

// Cache is the storage interface behind the /models passthrough. Implemented
// by an in-memory map (dev) and Redis (prod, shared across replicas).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

package storage

import (
	"context"
	"time"
)

// ObjectInfo is a read-only snapshot of a remote object.
type ObjectInfo struct {
	Key      string
	Size     int64
	Modified time.Time
	ETag     string
}

// Gateway is the object-level contract over one bucket. Implementations never
// retry and never touch local state other than the destination of Fetch.
type Gateway interface {
	// Info returns false with a nil error when the object does not exist.
	Info(ctx context.Context, key string) (ObjectInfo, bool, error)
	// Fetch downloads key into dest and returns false when the object is missing.
	Fetch(ctx context.Context, key, dest string) (bool, error)
	// Put uploads src to key. An empty src uploads a zero-byte marker.
	Put(ctx context.Context, key, src string) error
	// List returns every object below prefix, excluding the prefix marker itself.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Buckets lists the storage units visible to the configured credentials.
	Buckets(ctx context.Context) ([]string, error)
	Bucket() string
}

package domain

import (
	"context"
	"time"
)

// Cache memoizes listing and breadcrumb results. It is purely derived
// state: every method may fail without affecting correctness, and
// callers fall back to the uncached path on any error.
//
// Invalidation uses per-owner generation counters instead of wildcard
// key deletion: every mutation bumps the owner's generation, and cached
// keys embed it, so stale entries become unreachable and age out by TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	OwnerGeneration(ctx context.Context, ownerID int64) (int64, error)
	BumpOwnerGeneration(ctx context.Context, ownerID int64) error
}

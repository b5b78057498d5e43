package lock

import "context"

// Handle is an acquired cluster lock. Release is best-effort: a crashed
// holder is recovered by the lock's maximum hold time.
type Handle interface {
	Release(ctx context.Context) error
}

// ClusterLock serializes named work across all running instances of the
// service. TryAcquire never blocks: a false result means another instance
// holds the lock, or held it less than the minimum hold time ago.
type ClusterLock interface {
	TryAcquire(ctx context.Context, name string) (Handle, bool, error)
}

// DedupGuard claims a short-TTL per-item key so overlapping ticks never
// start the same unit of work twice.
type DedupGuard interface {
	TryClaim(ctx context.Context, key string) (bool, error)
}

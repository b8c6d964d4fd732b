// Package coordinator provides an optional cross-process run lease backed by
// Redis, for deployments that run swarmkit on more than one node against a
// shared MongoStore checkpoint (spec.md §4.8, §6 "multi-process
// resumability"). A single process is always correct without this package;
// RunLease exists to stop a second process from driving the same run id
// concurrently after a crash-and-restart on another node.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned by Acquire when another process already holds the
// lease for a run id.
var ErrLeaseHeld = errors.New("coordinator: run lease held by another process")

// releaseScript deletes key only if it still holds this holder's token,
// preventing a process from releasing a lease it no longer owns after its
// TTL expired and a different process acquired it (grounded on the
// teacher's Redis mapping-TTL pattern in registry/result_stream.go, extended
// with a compare-and-delete since a lease additionally needs safe release).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RunLease is a held or releasable distributed lease on one run id.
type RunLease struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func runKey(runID string) string {
	return fmt.Sprintf("swarmkit:run-lease:%s", runID)
}

// Acquire attempts to take the run lease for runID, valid for ttl. Returns
// ErrLeaseHeld if another process currently holds it.
func Acquire(ctx context.Context, rdb *redis.Client, runID string, ttl time.Duration) (*RunLease, error) {
	key := runKey(runID)
	token := uuid.New().String()
	ok, err := rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("coordinator: acquire run lease: %w", err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &RunLease{rdb: rdb, key: key, token: token, ttl: ttl}, nil
}

// Renew extends the lease's TTL, as long as this process still holds it.
// Nothing in this module calls it: cmd/swarmkit sets the TTL once, at
// Acquire, and the orchestrator never renews the lease.
func (l *RunLease) Renew(ctx context.Context) error {
	res, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("coordinator: renew run lease: %w", err)
	}
	if res == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// Release gives up the lease if this process still holds it. Safe to call
// even if the lease already expired; never returns an error for that case.
func (l *RunLease) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int(); err != nil {
		return fmt.Errorf("coordinator: release run lease: %w", err)
	}
	return nil
}

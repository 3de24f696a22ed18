package node

import (
	"context"
	"time"
)

// Node is one independent key-value store taking part in the quorum. It only
// has to offer the two primitives below and must not be replicated with the
// other nodes.
type Node interface {
	// Name identifies the node in logs and metrics, usually its address.
	Name() string
	// SetIfAbsent atomically sets key=value with the given expiry only if key
	// does not exist. It returns true only when the value was newly set.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete atomically deletes key if and only if its current value
	// equals value. It must never delete a value written by someone else, so
	// the check and the delete have to be atomic on the node.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

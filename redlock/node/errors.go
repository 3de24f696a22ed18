package node

import "errors"

var (
	ErrNodeUnreachable = errors.New("node unreachable")
	ErrInvalidTTL      = errors.New("ttl must be at least one millisecond")
)

package redlock

import "errors"

var (
	ErrCannotObtainLock     = errors.New("cannot obtain lock")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrReleaseUnreachable   = errors.New("release could not reach any node")

	ErrLockHeld      = errors.New("lock is already held")
	ErrNotLockHolder = errors.New("you're not lock holder")
)

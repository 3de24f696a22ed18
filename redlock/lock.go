package redlock

import "time"

// Lock is a lock held on a quorum of nodes. It is returned by Acquire and is
// read-only afterwards.
type Lock struct {
	resource   string
	token      string
	validity   time.Duration
	acquiredAt time.Time
}

// Resource returns the locked resource name.
func (l *Lock) Resource() string {
	return l.resource
}

// Token returns the random value that proves ownership on the nodes.
func (l *Lock) Token() string {
	return l.token
}

// Validity returns how long the lock can be trusted, counted from AcquiredAt.
func (l *Lock) Validity() time.Duration {
	return l.validity
}

// AcquiredAt returns the time the winning attempt started.
func (l *Lock) AcquiredAt() time.Time {
	return l.acquiredAt
}

// Until returns the end of the validity window.
func (l *Lock) Until() time.Time {
	return l.acquiredAt.Add(l.validity)
}

// Expired reports whether the validity window is over at now.
func (l *Lock) Expired(now time.Time) bool {
	return !now.Before(l.Until())
}

package redlock

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"
)

const (
	DefaultRetryCount  = 3
	DefaultRetryDelay  = 200 * time.Millisecond
	DefaultDriftFactor = 0.01
	DefaultDriftFloor  = 2 * time.Millisecond
	DefaultNodeTimeout = 50 * time.Millisecond
)

// Options tunes a Manager. Zero values are replaced by the defaults, use
// NoRetry / NoRetryDelay to really ask for zero.
type Options struct {
	// RetryCount is the number of attempts made after the first one.
	RetryCount int
	// RetryDelay is the upper bound of the random sleep between attempts.
	RetryDelay time.Duration
	// DriftFactor is the fraction of the ttl reserved for clock drift.
	DriftFactor float64
	// DriftFloor is added to the drift to cover clock granularity.
	DriftFloor time.Duration
	// NodeTimeout bounds every single node operation. It is clamped to half
	// the ttl when it is not shorter than it.
	NodeTimeout time.Duration

	Random         io.Reader
	Jitter         Jitter
	Clock          clock.PassiveClock
	TracerProvider trace.TracerProvider
}

// NoRetry and NoRetryDelay can be set in Options to disable retries or the
// wait between them, since zero means "use the default".
const (
	NoRetry      = -1
	NoRetryDelay = time.Duration(-1)
)

func (o *Options) withDefaults() (*Options, error) {
	opts := Options{}
	if o != nil {
		opts = *o
	}

	switch {
	case opts.RetryCount == NoRetry:
		opts.RetryCount = 0
	case opts.RetryCount == 0:
		opts.RetryCount = DefaultRetryCount
	case opts.RetryCount < 0:
		return nil, fmt.Errorf("%w: negative retry count %d", ErrInvalidConfiguration, opts.RetryCount)
	}
	switch {
	case opts.RetryDelay == NoRetryDelay:
		opts.RetryDelay = 0
	case opts.RetryDelay == 0:
		opts.RetryDelay = DefaultRetryDelay
	case opts.RetryDelay < 0:
		return nil, fmt.Errorf("%w: negative retry delay %s", ErrInvalidConfiguration, opts.RetryDelay)
	}
	if opts.DriftFactor == 0 {
		opts.DriftFactor = DefaultDriftFactor
	}
	if opts.DriftFactor < 0 || opts.DriftFactor >= 1 {
		return nil, fmt.Errorf("%w: drift factor %v out of [0, 1)", ErrInvalidConfiguration, opts.DriftFactor)
	}
	if opts.DriftFloor == 0 {
		opts.DriftFloor = DefaultDriftFloor
	}
	if opts.DriftFloor < 0 {
		return nil, fmt.Errorf("%w: negative drift floor %s", ErrInvalidConfiguration, opts.DriftFloor)
	}
	if opts.NodeTimeout == 0 {
		opts.NodeTimeout = DefaultNodeTimeout
	}
	if opts.NodeTimeout < 0 {
		return nil, fmt.Errorf("%w: negative node timeout %s", ErrInvalidConfiguration, opts.NodeTimeout)
	}

	if opts.Random == nil {
		opts.Random = rand.Reader
	}
	if opts.Jitter == nil {
		opts.Jitter = NewJitter(time.Now().UnixNano())
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	return &opts, nil
}

// drift is the safety margin subtracted from the validity of a lock.
func (o *Options) drift(ttl time.Duration) time.Duration {
	return time.Duration(float64(ttl)*o.DriftFactor) + o.DriftFloor
}

// nodeTimeout returns a per-node timeout strictly shorter than ttl.
func (o *Options) nodeTimeout(ttl time.Duration) time.Duration {
	if o.NodeTimeout < ttl {
		return o.NodeTimeout
	}
	return ttl / 2
}

// maxAcquireTime bounds Acquire when the caller gave no deadline: each attempt
// is one fan-out plus one cleanup fan-out plus the backoff, with one attempt
// worth of slack.
func (o *Options) maxAcquireTime(ttl time.Duration) time.Duration {
	nodeTimeout := o.nodeTimeout(ttl)
	attempts := time.Duration(o.RetryCount + 2)
	return attempts * (2*nodeTimeout + o.RetryDelay)
}

package redlock

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewToken returns a random UUID read from r. Each acquisition attempt gets
// its own token, it is the only proof of ownership on the nodes.
func NewToken(r io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Jitter is the random source used to spread retries.
type Jitter interface {
	// Int63n returns a number in [0, n).
	Int63n(n int64) int64
}

type lockedJitter struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewJitter returns a Jitter safe for concurrent use seeded with seed.
func NewJitter(seed int64) Jitter {
	return &lockedJitter{r: rand.New(rand.NewSource(seed))}
}

func (j *lockedJitter) Int63n(n int64) int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.r.Int63n(n)
}

// backoff draws a delay uniformly from [0, max].
func backoff(j Jitter, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(j.Int63n(int64(max) + 1))
}

package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// HostThrottle caps the number of concurrent downloads per origin host.
// Each host gets its own weighted semaphore, created on first use and kept
// for the lifetime of the throttle. Waiters are admitted in FIFO order.
type HostThrottle struct {
	// limit is the default number of permits per host.
	limit int64

	// overrides holds per-host limits that replace the default.
	overrides map[string]int64

	mu    sync.Mutex
	hosts map[string]*semaphore.Weighted
}

// NewHostThrottle creates a throttle that admits up to limit concurrent
// holders per host. Entries in overrides with a positive value replace the
// limit for that host; host names are matched case-insensitively.
func NewHostThrottle(limit int, overrides map[string]int) *HostThrottle {
	t := &HostThrottle{
		limit:     int64(limit),
		overrides: make(map[string]int64, len(overrides)),
		hosts:     make(map[string]*semaphore.Weighted),
	}
	for host, n := range overrides {
		if n > 0 {
			t.overrides[strings.ToLower(host)] = int64(n)
		}
	}
	return t
}

// Limit returns the number of permits configured for host.
func (t *HostThrottle) Limit(host string) int {
	if n, ok := t.overrides[strings.ToLower(host)]; ok {
		return int(n)
	}
	return int(t.limit)
}

// WithPermit runs fn while holding one permit for host. The permit is
// released on every exit path of fn, including a panic, before WithPermit
// returns. If ctx is done before a permit becomes available, fn is not run
// and an error wrapping ErrInterrupted is returned.
func (t *HostThrottle) WithPermit(ctx context.Context, host string, fn func() error) error {
	sem := t.semaphore(host)
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: waiting for a permit on host %q: %w", ErrInterrupted, host, err)
	}
	defer sem.Release(1)
	return fn()
}

// Hosts returns the number of hosts seen so far.
func (t *HostThrottle) Hosts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hosts)
}

func (t *HostThrottle) semaphore(host string) *semaphore.Weighted {
	key := strings.ToLower(host)

	t.mu.Lock()
	defer t.mu.Unlock()

	sem, ok := t.hosts[key]
	if !ok {
		sem = semaphore.NewWeighted(int64(t.Limit(key)))
		t.hosts[key] = sem
	}
	return sem
}

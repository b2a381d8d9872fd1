package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
)

// ComputeFunc produces the value for a fingerprint on a miss. It runs at
// most once per fingerprint at a time, on a context detached from the
// caller so a cancelled caller does not abort work other waiters share.
type ComputeFunc func(ctx context.Context) (*types.SimplificationResult, error)

type entry struct {
	fingerprint string
	done        chan struct{}
	value       *types.SimplificationResult
	err         error
	// elem is non-nil once the entry is resident in the LRU list.
	elem *list.Element
}

// ResultCache is a bounded LRU keyed by request fingerprint with in-flight
// reservation: concurrent callers for the same fingerprint share one
// computation. Failed computations are not cached; their waiters all get
// the error and the next caller computes fresh.
type ResultCache struct {
	log      *logger.Logger
	capacity int

	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List
}

func NewResultCache(log *logger.Logger, capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = 512
	}
	return &ResultCache{
		log:      log.With("service", "ResultCache"),
		capacity: capacity,
		entries:  make(map[string]*entry),
		order:    list.New(),
	}
}

// Do returns the cached value for fingerprint, or computes it. The bool
// reports whether this call was served from cache (resident or by joining
// an in-flight computation started by another caller).
func (c *ResultCache) Do(ctx context.Context, fingerprint string, compute ComputeFunc) (*types.SimplificationResult, bool, error) {
	c.mu.Lock()
	if e, ok := c.entries[fingerprint]; ok {
		if e.elem != nil {
			c.order.MoveToFront(e.elem)
			v := e.value
			c.mu.Unlock()
			return v, true, nil
		}
		// In flight: wait alongside the caller that reserved it.
		c.mu.Unlock()
		return c.wait(ctx, e)
	}

	e := &entry{fingerprint: fingerprint, done: make(chan struct{})}
	c.entries[fingerprint] = e
	c.mu.Unlock()

	// Detach from the reserving caller's cancellation so waiters still get
	// a result if that caller goes away mid-computation.
	go c.populate(context.WithoutCancel(ctx), e, compute)

	v, _, err := c.wait(ctx, e)
	return v, false, err
}

func (c *ResultCache) populate(ctx context.Context, e *entry, compute ComputeFunc) {
	value, err := compute(ctx)

	c.mu.Lock()
	if err != nil {
		e.err = err
		delete(c.entries, e.fingerprint)
	} else {
		e.value = value
		e.elem = c.order.PushFront(e)
		for c.order.Len() > c.capacity {
			back := c.order.Back()
			evicted := back.Value.(*entry)
			c.order.Remove(back)
			delete(c.entries, evicted.fingerprint)
		}
	}
	close(e.done)
	c.mu.Unlock()
}

func (c *ResultCache) wait(ctx context.Context, e *entry) (*types.SimplificationResult, bool, error) {
	select {
	case <-e.done:
		if e.err != nil {
			return nil, true, e.err
		}
		return e.value, true, nil
	case <-ctx.Done():
		return nil, true, ctx.Err()
	}
}

// Len reports resident entries only; in-flight reservations don't count
// against capacity.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// PermitPool bounds the number of concurrently running handlers of a class.
type PermitPool struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64

	closeCtx  context.Context
	closeFunc context.CancelFunc
}

// Permit is one unit of permission to run. It must be released exactly once;
// extra calls to Release are no-ops.
type Permit struct {
	pool *PermitPool
	once sync.Once
}

// NewPermitPool creates a pool with size permits.
func NewPermitPool(size int) *PermitPool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PermitPool{
		sem:       semaphore.NewWeighted(int64(size)),
		size:      size,
		closeCtx:  ctx,
		closeFunc: cancel,
	}
}

// Acquire blocks until a permit is free, ctx is done or the pool is closed.
func (p *PermitPool) Acquire(ctx context.Context) (*Permit, error) {
	if p.closeCtx.Err() != nil {
		return nil, ErrPoolClosed
	}

	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.closeCtx, cancel)
	defer stop()

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if p.closeCtx.Err() != nil {
			return nil, ErrPoolClosed
		}
		return nil, err
	}

	if p.closeCtx.Err() != nil {
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}

	p.inFlight.Add(1)
	return &Permit{pool: p}, nil
}

// Release returns the permit to its pool.
func (pm *Permit) Release() {
	pm.once.Do(func() {
		pm.pool.inFlight.Add(-1)
		pm.pool.sem.Release(1)
	})
}

// Close stops the pool from admitting work. Permits already held stay valid.
func (p *PermitPool) Close() {
	p.closeFunc()
}

// InFlight returns the number of permits currently held.
func (p *PermitPool) InFlight() int {
	return int(p.inFlight.Load())
}

// Size returns the configured number of permits.
func (p *PermitPool) Size() int {
	return p.size
}

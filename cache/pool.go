package cache

import (
	"context"

	"github.com/tubelens/tubecache/types"
)

const defaultFetchWorkers = 8

// WorkerPool bounds the number of concurrently running fetch functions so a
// burst of cold reads cannot spawn unbounded network calls.
type WorkerPool struct {
	slots chan struct{}
}

func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = defaultFetchWorkers
	}
	return &WorkerPool{slots: make(chan struct{}, size)}
}

// Do submits fn to the pool and awaits completion. It blocks until a slot
// is free or ctx is cancelled.
func (p *WorkerPool) Do(ctx context.Context, fn types.FetchFunc) (interface{}, error) {
	if fn == nil {
		return nil, types.ErrFetchFuncIsNil
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slots }()

	return fn(ctx)
}

func (p *WorkerPool) Size() int {
	return cap(p.slots)
}

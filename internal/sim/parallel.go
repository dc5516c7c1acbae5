package sim

import (
	"context"
	"sync"
)

// Ensemble fans one configuration across many initial states. Every run
// gets its own runner from the build function, so detector cooldown state
// and metrics stay private to the goroutine.
type Ensemble[T any] struct {
	build func() (*Runner[T], error)
}

func NewEnsemble[T any](build func() (*Runner[T], error)) *Ensemble[T] {
	return &Ensemble[T]{build: build}
}

func (e *Ensemble[T]) Run(ctx context.Context, starts [][]T, cfg Config) ([]*Result, error) {
	results := make([]*Result, len(starts))
	errs := make([]error, len(starts))

	var wg sync.WaitGroup
	for i := range starts {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			r, err := e.build()
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = r.Run(ctx, starts[idx], cfg)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Package workpool provides a bounded worker pool used for parallel
// batch dispatch. Results arrive in completion order; items are
// independent, so ordering is not a correctness concern.
package workpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Config configures the pool.
type Config struct {
	MaxConcurrent int // Maximum concurrent work items (default: 4)
}

// Pool manages concurrent execution with bounded parallelism. A
// semaphore limits outstanding work while completed results are drained
// immediately so new work can start.
type Pool struct {
	config Config
	logger *zap.Logger
}

// New creates a worker pool.
func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 4
	}
	return &Pool{
		config: config,
		logger: logger.Named("workpool"),
	}
}

// Item represents a unit of work.
type Item[T any] struct {
	ID      string                               // For logging/tracking
	Execute func(ctx context.Context) (T, error) // The work to be executed
}

// Result represents the outcome of one item.
type Result[T any] struct {
	ID     string
	Value  T
	Err    error
}

// Run executes all items with bounded parallelism and returns results in
// completion order. Processing continues even if some items fail; a
// cancelled context surfaces as an error result per unstarted item.
func Run[T any](ctx context.Context, pool *Pool, items []Item[T]) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[T], 0, len(items))
	resultsChan := make(chan Result[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		go func(item Item[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				var zero T
				resultsChan <- Result[T]{ID: item.ID, Value: zero, Err: ctx.Err()}
				return
			}

			value, err := item.Execute(ctx)
			resultsChan <- Result[T]{ID: item.ID, Value: value, Err: err}
		}(item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for result := range resultsChan {
		results = append(results, result)
	}

	pool.logger.Debug("pool run complete", zap.Int("items", len(items)))
	return results
}

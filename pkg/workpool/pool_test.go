package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunEmptyInput(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())
	results := Run[int](context.Background(), pool, nil)
	assert.Nil(t, results)
}

func TestRunAllItemsComplete(t *testing.T) {
	pool := New(Config{MaxConcurrent: 3}, zap.NewNop())

	items := make([]Item[int], 10)
	for i := range items {
		i := i
		items[i] = Item[int]{
			ID:      string(rune('a' + i)),
			Execute: func(ctx context.Context) (int, error) { return i * 2, nil },
		}
	}

	results := Run(context.Background(), pool, items)
	require.Len(t, results, 10)

	seen := map[string]bool{}
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.False(t, seen[r.ID], "duplicate result for %s", r.ID)
		seen[r.ID] = true
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	var current, peak int64
	var mu sync.Mutex

	items := make([]Item[struct{}], 8)
	for i := range items {
		items[i] = Item[struct{}]{
			ID: "item",
			Execute: func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt64(&current, 1)
				mu.Lock()
				if n > peak {
					peak = n
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return struct{}{}, nil
			},
		}
	}

	Run(context.Background(), pool, items)
	assert.LessOrEqual(t, peak, int64(2))
}

func TestRunContinuesAfterFailures(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	items := []Item[string]{
		{ID: "ok", Execute: func(ctx context.Context) (string, error) { return "fine", nil }},
		{ID: "bad", Execute: func(ctx context.Context) (string, error) { return "", errors.New("boom") }},
		{ID: "also-ok", Execute: func(ctx context.Context) (string, error) { return "fine", nil }},
	}

	results := Run(context.Background(), pool, items)
	require.Len(t, results, 3)

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			assert.Equal(t, "bad", r.ID)
		}
	}
	assert.Equal(t, 1, failures)
}

func TestRunCancelledContext(t *testing.T) {
	pool := New(Config{MaxConcurrent: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []Item[int]{
		{ID: "a", Execute: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "b", Execute: func(ctx context.Context) (int, error) { return 2, nil }},
	}

	results := Run(ctx, pool, items)
	// Every item still yields a result, completed or cancelled.
	assert.Len(t, results, 2)
}

package embedding

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"
)

// Dispatcher fans embedding requests out over a fixed-size goroutine pool
// (C1), bounding concurrent calls into Backend regardless of how many
// requests the adapter accepts concurrently.
type Dispatcher struct {
	backend Backend
	pool    *ants.Pool
}

// NewDispatcher builds a Dispatcher with workerCount goroutines. The pool
// holds no queue of its own: once all workerCount workers are busy, Submit
// blocks until one is free. queueCapacity is not used.
func NewDispatcher(backend Backend, workerCount, queueCapacity int) (*Dispatcher, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedding: backend is required")
	}
	if workerCount <= 0 {
		workerCount = 4
	}
	pool, err := ants.NewPool(workerCount, ants.WithNonblocking(false), ants.WithPreAlloc(true))
	if err != nil {
		return nil, fmt.Errorf("embedding: create worker pool: %w", err)
	}
	return &Dispatcher{backend: backend, pool: pool}, nil
}

// result is the outcome of one queued embedding job.
type result struct {
	vec []float32
	err error
}

// Submit hands text to a pool worker and returns a future resolved once the
// worker runs it. Submit blocks only until a worker is free to take the job;
// the returned function blocks until the job completes or ctx is cancelled.
func (d *Dispatcher) Submit(ctx context.Context, text string) (func() ([]float32, error), error) {
	done := make(chan result, 1)

	err := d.pool.Submit(func() {
		vec, err := d.backend.Embed(ctx, text)
		done <- result{vec: vec, err: err}
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: submit job: %w", err)
	}

	return func() ([]float32, error) {
		select {
		case r := <-done:
			return r.vec, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil
}

// Embed is the synchronous convenience wrapper most callers use: submit and
// immediately await.
func (d *Dispatcher) Embed(ctx context.Context, text string) ([]float32, error) {
	future, err := d.Submit(ctx, text)
	if err != nil {
		return nil, err
	}
	return future()
}

// EmbedBatch embeds each text concurrently across the pool and returns
// results in the same order as the input, stopping at the first error.
func (d *Dispatcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	futures := make([]func() ([]float32, error), len(texts))
	for i, t := range texts {
		f, err := d.Submit(ctx, t)
		if err != nil {
			return nil, err
		}
		futures[i] = f
	}

	out := make([][]float32, len(texts))
	for i, f := range futures {
		vec, err := f()
		if err != nil {
			return nil, fmt.Errorf("embedding: batch item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dim exposes the underlying backend's embedding dimension.
func (d *Dispatcher) Dim() int { return d.backend.Dim() }

// Close releases the worker pool's goroutines.
func (d *Dispatcher) Close() {
	d.pool.Release()
}

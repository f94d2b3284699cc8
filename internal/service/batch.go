package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gradebook-api/pkg/config"
)

// BatchOptions bounds the fan-out of bulk assignment passes.
type BatchOptions struct {
	Concurrency  int
	ChunkSize    int
	WriteRetries int
}

// BatchOptionsFromConfig maps the batch config section.
func BatchOptionsFromConfig(cfg config.BatchConfig) BatchOptions {
	return BatchOptions{Concurrency: cfg.Concurrency, ChunkSize: cfg.ChunkSize, WriteRetries: cfg.WriteRetries}
}

func (o BatchOptions) normalized() BatchOptions {
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.ChunkSize < 1 {
		o.ChunkSize = 200
	}
	if o.WriteRetries < 1 {
		o.WriteRetries = 1
	}
	return o
}

// forEachChunk splits [0, n) into chunks and runs fn on up to Concurrency chunks
// at once. Chunks are disjoint, so fn may write results by index without
// locking. fn returns an error only to abort the whole pass.
func forEachChunk(ctx context.Context, n int, opts BatchOptions, fn func(ctx context.Context, start, end int) error) error {
	opts = opts.normalized()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < n; start += opts.ChunkSize {
		start := start
		end := start + opts.ChunkSize
		if end > n {
			end = n
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, start, end)
		})
	}
	return g.Wait()
}

// withRetries runs fn until it succeeds, returns a non-retryable error, or attempts run out.
func withRetries(ctx context.Context, attempts int, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

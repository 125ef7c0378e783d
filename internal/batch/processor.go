package batch

import (
	"context"
	"sync"
	"time"

	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
)

// Processor fans independent items out to a bounded pool of workers. It is
// used for work whose items have no ordering relation, such as creating the
// blobs of a single commit.
type Processor struct {
	workers int

	// delay holds a worker slot after each item, keeping bursts under
	// secondary rate limits
	delay time.Duration
}

// NewProcessor creates a new batch processor
func NewProcessor(cfg *config.ProvisionConfig) *Processor {
	workers := cfg.BlobWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Processor{workers: workers, delay: cfg.BlobDelay}
}

// Workers returns the concurrency bound.
func (p *Processor) Workers() int {
	return p.workers
}

// ProcessItems calls processFn for every index in [0, count) with at most
// Workers calls in flight. Failures do not stop the remaining items; the
// returned slice holds the error of each index (nil on success). Indexes that
// never started because ctx was cancelled carry ctx.Err().
func (p *Processor) ProcessItems(ctx context.Context, count int, processFn func(ctx context.Context, index int) error) []error {
	errs := make([]error, count)
	if count == 0 {
		return errs
	}

	workerChan := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	cancelRest := func(from int) []error {
		for j := from; j < count; j++ {
			errs[j] = ctx.Err()
		}
		wg.Wait()
		return errs
	}

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return cancelRest(i)
		}
		select {
		case <-ctx.Done():
			return cancelRest(i)
		case workerChan <- struct{}{}:
			wg.Add(1)
			go func(index int) {
				defer wg.Done()
				defer func() { <-workerChan }()

				// each goroutine owns errs[index]
				errs[index] = processFn(ctx, index)

				if p.delay > 0 {
					time.Sleep(p.delay)
				}
			}(i)
		}
	}

	wg.Wait()
	return errs
}

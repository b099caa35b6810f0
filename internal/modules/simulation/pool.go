package simulation

import (
	"context"
	"sync"
)

// workerPool runs batches on a fixed number of goroutines
type workerPool struct {
	numWorkers int
}

// newWorkerPool creates a worker pool with the specified number of workers
func newWorkerPool(numWorkers int) *workerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &workerPool{numWorkers: numWorkers}
}

// batchFunc evaluates one batch
type batchFunc func(index int) *batchResult

// run distributes batch indices across the workers and delivers results to
// collect on the calling goroutine, in completion order. A worker checks ctx
// before it starts each batch, so cancellation stops the run at the next
// batch boundary and batches already in flight still finish.
func (wp *workerPool) run(ctx context.Context, numBatches int, fn batchFunc, collect func(*batchResult)) {
	if numBatches == 0 {
		return
	}

	jobs := make(chan int, numBatches)
	results := make(chan *batchResult, numBatches)

	numActualWorkers := wp.numWorkers
	if numBatches < numActualWorkers {
		numActualWorkers = numBatches
	}

	var wg sync.WaitGroup
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results <- fn(index)
			}
		}()
	}

	for i := 0; i < numBatches; i++ {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		collect(result)
	}
}

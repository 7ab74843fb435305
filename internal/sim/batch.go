package sim

import (
	"context"
	"sync"

	"github.com/tmolteno/openEMS/internal/config"
)

// Batch runs several simulation documents concurrently, one full
// simulation per worker. Results and errors are indexed like the input.
type Batch struct {
	configure func(*Simulation)
	workers   int
}

// NewBatch creates a batch runner. configure is applied to every
// simulation before setup and may be nil; workers<=0 runs everything at
// once.
func NewBatch(configure func(*Simulation), workers int) *Batch {
	return &Batch{configure: configure, workers: workers}
}

// BatchResult pairs one document's outcome with its setup/run error.
type BatchResult struct {
	Path   string
	Result *Result
	Err    error
}

// Run executes every document and blocks until all finish or the context
// is cancelled. Cancellation stops each run at its next burst boundary.
func (b *Batch) Run(ctx context.Context, paths []string) []BatchResult {
	results := make([]BatchResult, len(paths))

	sem := make(chan struct{}, len(paths))
	if b.workers > 0 && b.workers < len(paths) {
		sem = make(chan struct{}, b.workers)
	}

	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(idx int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = BatchResult{Path: path}
			doc, err := config.Load(path)
			if err != nil {
				results[idx].Err = err
				return
			}

			s := New()
			if b.configure != nil {
				b.configure(s)
			}
			if _, err := s.Setup(doc); err != nil {
				results[idx].Err = err
				return
			}
			results[idx].Result, results[idx].Err = s.Run(ctx)
		}(i, path)
	}
	wg.Wait()
	return results
}

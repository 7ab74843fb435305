package fdtd

import (
	"runtime"
	"sync"
)

// threadedKernel splits the grid along x into per-worker chunks. The
// voltage half-step only reads currents and the current half-step only
// reads voltages, so the chunks never race; each half-step joins before
// the next begins.
type threadedKernel struct {
	op      *Operator
	strides [3]int
	workers int
}

func newThreadedKernel(op *Operator, numThreads int) *threadedKernel {
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	if numThreads > op.NumLines(0) {
		numThreads = op.NumLines(0)
	}
	return &threadedKernel{
		op:      op,
		strides: [3]int{op.Stride(0), op.Stride(1), op.Stride(2)},
		workers: numThreads,
	}
}

func (t *threadedKernel) Workers() int { return t.workers }

func (t *threadedKernel) updateVoltages(e *Engine) {
	t.parallelRange(e, updateVoltageCell)
}

func (t *threadedKernel) updateCurrents(e *Engine) {
	t.parallelRange(e, updateCurrentCell)
}

func (t *threadedKernel) parallelRange(e *Engine, fn func(*Engine, int, [3]int, [3]int)) {
	op := t.op
	nx := op.numLines[0]
	chunk := (nx + t.workers - 1) / t.workers

	var wg sync.WaitGroup
	for w := 0; w < t.workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > nx {
			end = nx
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				for j := 0; j < op.numLines[1]; j++ {
					idx := op.Index(i, j, 0)
					for k := 0; k < op.numLines[2]; k++ {
						fn(e, idx, [3]int{i, j, k}, t.strides)
						idx++
					}
				}
			}
		}(start, end)
	}
	wg.Wait()
}

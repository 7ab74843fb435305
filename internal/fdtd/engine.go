package fdtd

// Engine is the time-marching state for a finished operator. It advances
// its timestep counter monotonically and presents every advance as a
// single blocking call; internal parallelism is the kernel's concern.
type Engine struct {
	op   *Operator
	volt [3][]float64
	curr [3][]float64

	numTS uint
	exts  []EngineExtension
	k     kernel
}

// kernel is the variant-specific field update implementation.
type kernel interface {
	updateVoltages(e *Engine)
	updateCurrents(e *Engine)
}

func newEngine(op *Operator, k kernel) *Engine {
	e := &Engine{op: op, k: k}
	size := int(op.NumberOfCells())
	for n := 0; n < 3; n++ {
		e.volt[n] = make([]float64, size)
		e.curr[n] = make([]float64, size)
	}
	return e
}

func (e *Engine) addExtension(ext EngineExtension) { e.exts = append(e.exts, ext) }

func (e *Engine) Operator() *Operator { return e.op }

// NumberOfTimesteps returns the cumulative timestep count.
func (e *Engine) NumberOfTimesteps() uint { return e.numTS }

// IterateTimesteps advances the engine by n timesteps as one indivisible
// burst.
func (e *Engine) IterateTimesteps(n uint) {
	for t := uint(0); t < n; t++ {
		e.k.updateVoltages(e)
		for _, ext := range e.exts {
			ext.Apply2Voltages()
		}
		e.applyExcitation()
		e.k.updateCurrents(e)
		for _, ext := range e.exts {
			ext.Apply2Current()
		}
		e.numTS++
	}
}

func (e *Engine) applyExcitation() {
	exc := e.op.exc
	for i := range exc.Sources {
		v := exc.valueAt(i, e.numTS)
		if v == 0 {
			continue
		}
		src := exc.Sources[i]
		idx := e.op.Index(src.Pos[0], src.Pos[1], src.Pos[2])
		e.volt[src.Direction][idx] += v
	}
}

// updateVoltageCell applies the E update for one cell. Missing neighbors
// below the grid count as zero magnetic field.
func updateVoltageCell(e *Engine, idx int, pos [3]int, strides [3]int) {
	op := e.op
	for n := 0; n < 3; n++ {
		np1 := (n + 1) % 3
		np2 := (n + 2) % 3
		dH1 := e.curr[np2][idx]
		if pos[np1] > 0 {
			dH1 -= e.curr[np2][idx-strides[np1]]
		}
		dH2 := e.curr[np1][idx]
		if pos[np2] > 0 {
			dH2 -= e.curr[np1][idx-strides[np2]]
		}
		e.volt[n][idx] = op.vv[n][idx]*e.volt[n][idx] + op.viA[n][idx]*dH1 - op.viB[n][idx]*dH2
	}
}

// updateCurrentCell applies the H update for one cell. Missing neighbors
// above the grid yield a zero difference.
func updateCurrentCell(e *Engine, idx int, pos [3]int, strides [3]int) {
	op := e.op
	for n := 0; n < 3; n++ {
		np1 := (n + 1) % 3
		np2 := (n + 2) % 3
		var dE1, dE2 float64
		if pos[np1] < op.numLines[np1]-1 {
			dE1 = e.volt[np2][idx+strides[np1]] - e.volt[np2][idx]
		}
		if pos[np2] < op.numLines[np2]-1 {
			dE2 = e.volt[np1][idx+strides[np2]] - e.volt[np1][idx]
		}
		e.curr[n][idx] = e.curr[n][idx] - op.ivA[n][idx]*dE1 + op.ivB[n][idx]*dE2
	}
}

// serialKernel is the reference per-cell implementation.
type serialKernel struct {
	op      *Operator
	strides [3]int
}

func newSerialKernel(op *Operator) *serialKernel {
	return &serialKernel{op: op, strides: [3]int{op.Stride(0), op.Stride(1), op.Stride(2)}}
}

func (s *serialKernel) updateVoltages(e *Engine) {
	s.rangeCells(e, updateVoltageCell)
}

func (s *serialKernel) updateCurrents(e *Engine) {
	s.rangeCells(e, updateCurrentCell)
}

func (s *serialKernel) rangeCells(e *Engine, fn func(*Engine, int, [3]int, [3]int)) {
	op := s.op
	for i := 0; i < op.numLines[0]; i++ {
		for j := 0; j < op.numLines[1]; j++ {
			idx := op.Index(i, j, 0)
			for k := 0; k < op.numLines[2]; k++ {
				fn(e, idx, [3]int{i, j, k}, s.strides)
				idx++
			}
		}
	}
}

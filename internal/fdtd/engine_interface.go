package fdtd

// InterpolationType selects how field values are sampled from the
// staggered grid.
type InterpolationType int

const (
	NoInterpolation InterpolationType = iota
	NodeInterpolate
	CellInterpolate
)

// EngineInterface is a non-owning read handle onto an operator/engine
// pair. Processors hold one to sample field state without owning the
// simulation; it must never outlive the pair.
type EngineInterface struct {
	op     *Operator
	eng    *Engine
	interp InterpolationType
}

func NewEngineInterface(op *Operator, eng *Engine) *EngineInterface {
	return &EngineInterface{op: op, eng: eng}
}

func (ei *EngineInterface) SetInterpolationType(t InterpolationType) { ei.interp = t }

func (ei *EngineInterface) Operator() *Operator { return ei.op }

func (ei *EngineInterface) NumberOfTimesteps() uint { return ei.eng.NumberOfTimesteps() }

func (ei *EngineInterface) Time() float64 {
	return float64(ei.eng.NumberOfTimesteps()) * ei.op.Timestep()
}

// Voltage returns the integrated edge voltage of component n at pos.
func (ei *EngineInterface) Voltage(n int, pos [3]int) float64 {
	return ei.eng.volt[n][ei.op.Index(pos[0], pos[1], pos[2])]
}

// Current returns the integrated loop current of component n at pos.
func (ei *EngineInterface) Current(n int, pos [3]int) float64 {
	return ei.eng.curr[n][ei.op.Index(pos[0], pos[1], pos[2])]
}

// EField converts the edge voltage at pos into a field strength.
func (ei *EngineInterface) EField(pos [3]int) [3]float64 {
	var f [3]float64
	for n := 0; n < 3; n++ {
		d := ei.op.edgeLength(n, pos)
		if ei.interp == NodeInterpolate && pos[n] > 0 {
			f[n] = 0.5 * (ei.Voltage(n, pos) + ei.Voltage(n, prevPos(pos, n))) / d
		} else {
			f[n] = ei.Voltage(n, pos) / d
		}
	}
	return f
}

// HField converts the loop current at pos into a field strength.
func (ei *EngineInterface) HField(pos [3]int) [3]float64 {
	var f [3]float64
	for n := 0; n < 3; n++ {
		d := ei.op.edgeLength(n, pos)
		if ei.interp == NodeInterpolate && pos[n] > 0 {
			f[n] = 0.5 * (ei.Current(n, pos) + ei.Current(n, prevPos(pos, n))) / d
		} else {
			f[n] = ei.Current(n, pos) / d
		}
	}
	return f
}

func prevPos(pos [3]int, n int) [3]int {
	pos[n]--
	return pos
}

// CalcFastEnergy estimates the total field energy. The absolute scale is
// approximate; the convergence criterion only consumes ratios of it.
func (ei *EngineInterface) CalcFastEnergy() float64 {
	var eE, eH float64
	for n := 0; n < 3; n++ {
		for _, v := range ei.eng.volt[n] {
			eE += v * v
		}
		for _, c := range ei.eng.curr[n] {
			eH += c * c
		}
	}
	return 0.5 * (Eps0*eE + Mue0*eH)
}

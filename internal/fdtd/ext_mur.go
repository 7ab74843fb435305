package fdtd

import "fmt"

// MurABC is a first-order absorbing boundary on a single face,
// parameterized by an assumed wave phase velocity.
type MurABC struct {
	op  *Operator
	ns  int  // face normal axis
	top bool // true for the +side face
	vPh float64
}

func NewMurABC(op *Operator) *MurABC {
	return &MurABC{op: op}
}

// SetDirection selects the face: axis ns, positive side when top.
func (m *MurABC) SetDirection(ns int, top bool) {
	m.ns = ns
	m.top = top
}

// SetPhaseVelocity overrides the assumed phase velocity. Unset keeps the
// vacuum default.
func (m *MurABC) SetPhaseVelocity(v float64) { m.vPh = v }

func (m *MurABC) PhaseVelocity() float64 { return m.vPh }

func (m *MurABC) Name() string {
	side := "min"
	if m.top {
		side = "max"
	}
	return fmt.Sprintf("Mur-ABC (%c%s)", 'x'+byte(m.ns), side)
}

func (m *MurABC) BuildExtension() error {
	if m.ns < 0 || m.ns > 2 {
		return fmt.Errorf("mur-abc: invalid direction %d", m.ns)
	}
	if m.op.NumLines(m.ns) < 3 {
		return fmt.Errorf("mur-abc: grid too small in direction %d", m.ns)
	}
	return nil
}

func (m *MurABC) CreateEngineExtension(eng *Engine) EngineExtension {
	op := m.op
	boundary := 0
	inner := 1
	if m.top {
		boundary = op.NumLines(m.ns) - 1
		inner = boundary - 1
	}

	v := m.vPh
	if v <= 0 {
		v = C0
	}
	pos := [3]int{}
	pos[m.ns] = boundary
	if m.top {
		pos[m.ns] = inner
	}
	d := op.edgeLength(m.ns, pos)
	coeff := (v*op.Timestep() - d) / (v*op.Timestep() + d)

	ee := &murEngineExt{
		eng:      eng,
		op:       op,
		ns:       m.ns,
		boundary: boundary,
		inner:    inner,
		coeff:    coeff,
	}
	for c := 0; c < 3; c++ {
		if c == m.ns {
			continue
		}
		ee.comps = append(ee.comps, c)
	}
	ee.prev = make(map[int][]float64, 2)
	planeSize := 1
	for n := 0; n < 3; n++ {
		if n != m.ns {
			planeSize *= op.NumLines(n)
		}
	}
	for _, c := range ee.comps {
		ee.prev[c] = make([]float64, planeSize)
	}
	return ee
}

// murEngineExt applies the one-way wave equation on the face plane after
// every voltage update.
type murEngineExt struct {
	eng      *Engine
	op       *Operator
	ns       int
	boundary int
	inner    int
	coeff    float64
	comps    []int
	prev     map[int][]float64 // inner-plane values from the previous step
}

func (e *murEngineExt) Apply2Voltages() {
	t1 := (e.ns + 1) % 3
	t2 := (e.ns + 2) % 3
	n1 := e.op.NumLines(t1)
	n2 := e.op.NumLines(t2)

	for _, c := range e.comps {
		volt := e.eng.volt[c]
		prev := e.prev[c]
		p := 0
		for a := 0; a < n1; a++ {
			for b := 0; b < n2; b++ {
				var pos [3]int
				pos[e.ns] = e.boundary
				pos[t1] = a
				pos[t2] = b
				bIdx := e.op.Index(pos[0], pos[1], pos[2])
				pos[e.ns] = e.inner
				iIdx := e.op.Index(pos[0], pos[1], pos[2])

				volt[bIdx] = prev[p] + e.coeff*(volt[iIdx]-volt[bIdx])
				prev[p] = volt[iIdx]
				p++
			}
		}
	}
}

func (e *murEngineExt) Apply2Current() {}

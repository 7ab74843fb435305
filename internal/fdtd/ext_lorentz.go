package fdtd

import (
	"fmt"
	"math"

	"github.com/tmolteno/openEMS/internal/geometry"
)

// LorentzMaterial adds a dispersive polarization current to every cell
// covered by a lorentz-material property, using the auxiliary
// differential equation method with a single pole.
type LorentzMaterial struct {
	op    *Operator
	cells []lorentzCell
}

type lorentzCell struct {
	idx    int
	jCoeff float64 // dJ contribution per unit E
	relax  float64 // per-step current decay
}

func NewLorentzMaterial(op *Operator) *LorentzMaterial {
	return &LorentzMaterial{op: op}
}

func (l *LorentzMaterial) Name() string { return "Lorentz material" }

func (l *LorentzMaterial) BuildExtension() error {
	op := l.op
	dt := op.Timestep()
	props := op.Geometry().PropertiesByType(geometry.TypeLorentzMaterial)
	if len(props) == 0 {
		return fmt.Errorf("lorentz: no dispersive material regions in geometry")
	}
	for _, prop := range props {
		if prop.PlasmaFreq <= 0 {
			return fmt.Errorf("lorentz: property %q needs a positive plasma_freq", prop.Name)
		}
		wp := 2 * math.Pi * prop.PlasmaFreq
		relax := 1.0
		if prop.RelaxTime > 0 {
			relax = math.Exp(-dt / prop.RelaxTime)
		}
		for _, prim := range prop.Primitives {
			op.forEachCellIn(prim, func(idx int) {
				l.cells = append(l.cells, lorentzCell{
					idx:    idx,
					jCoeff: wp * wp * Eps0 * dt,
					relax:  relax,
				})
			})
			prim.SetUsed(true)
		}
	}
	return nil
}

func (l *LorentzMaterial) CreateEngineExtension(eng *Engine) EngineExtension {
	ee := &lorentzEngineExt{ext: l, eng: eng}
	for n := 0; n < 3; n++ {
		ee.curr[n] = make([]float64, len(l.cells))
	}
	return ee
}

type lorentzEngineExt struct {
	ext  *LorentzMaterial
	eng  *Engine
	curr [3][]float64 // polarization current per lorentz cell
}

func (e *lorentzEngineExt) Apply2Voltages() {
	dt := e.eng.op.Timestep()
	for i, c := range e.ext.cells {
		for n := 0; n < 3; n++ {
			j := e.curr[n][i]*c.relax + c.jCoeff*e.eng.volt[n][c.idx]
			e.curr[n][i] = j
			e.eng.volt[n][c.idx] -= j * dt / Eps0
		}
	}
}

func (e *lorentzEngineExt) Apply2Current() {}

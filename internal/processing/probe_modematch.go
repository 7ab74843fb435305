package processing

import (
	"fmt"

	lua "github.com/Shopify/go-lua"
)

// ModeMatch correlates the field on the probe plane with an analytic mode
// shape. The per-axis mode functions are expressions of the cell
// coordinates x, y, z and are sampled once at initialization.
type ModeMatch struct {
	Base
	fieldType int
	modeFn    [3]string

	normal  int
	weights [3][]float64 // sampled mode shape per plane cell
	samples []tdSample
	written int
}

func NewModeMatch() *ModeMatch {
	m := &ModeMatch{}
	m.SetEnable(true)
	return m
}

// SetFieldType selects the correlated field: FieldTypeE or FieldTypeH.
func (m *ModeMatch) SetFieldType(t int) { m.fieldType = t }

// SetModeFunction binds the mode expression for one axis. The empty
// string means that component does not contribute.
func (m *ModeMatch) SetModeFunction(axis int, expr string) { m.modeFn[axis] = expr }

// InitProcess samples the mode functions over the probe plane.
func (m *ModeMatch) InitProcess() error {
	if m.EngineInterface() == nil {
		return fmt.Errorf("mode-match probe %q: no engine interface", m.Name())
	}
	m.normal = 2
	for n := 0; n < 3; n++ {
		if m.startIdx[n] == m.stopIdx[n] {
			m.normal = n
			break
		}
	}

	l := lua.NewState()
	lua.OpenLibraries(l)

	op := m.eng.Operator()
	for axis := 0; axis < 3; axis++ {
		if m.modeFn[axis] == "" {
			continue
		}
		var weights []float64
		err := m.forEachPlaneCell(func(pos [3]int) error {
			coords := []string{"x", "y", "z"}
			for n := 0; n < 3; n++ {
				l.PushNumber(op.Lines(n)[pos[n]])
				l.SetGlobal(coords[n])
			}
			if err := lua.DoString(l, "return "+m.modeFn[axis]); err != nil {
				return fmt.Errorf("mode-match probe %q: mode function %q: %v", m.Name(), m.modeFn[axis], err)
			}
			v, ok := l.ToNumber(-1)
			if !ok {
				return fmt.Errorf("mode-match probe %q: mode function %q did not yield a number", m.Name(), m.modeFn[axis])
			}
			l.Pop(1)
			weights = append(weights, v)
			return nil
		})
		if err != nil {
			return err
		}
		m.weights[axis] = weights
	}
	return nil
}

func (m *ModeMatch) forEachPlaneCell(fn func(pos [3]int) error) error {
	t1 := (m.normal + 1) % 3
	t2 := (m.normal + 2) % 3
	pos := m.startIdx
	for a := m.startIdx[t1]; a <= m.stopIdx[t1]; a++ {
		for b := m.startIdx[t2]; b <= m.stopIdx[t2]; b++ {
			pos[t1] = a
			pos[t2] = b
			if err := fn(pos); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *ModeMatch) Process() int {
	if m.CheckTimestep() {
		sum := 0.0
		cell := 0
		m.forEachPlaneCell(func(pos [3]int) error {
			var f [3]float64
			if m.fieldType == FieldTypeE {
				f = m.eng.EField(pos)
			} else {
				f = m.eng.HField(pos)
			}
			for axis := 0; axis < 3; axis++ {
				if m.weights[axis] != nil {
					sum += f[axis] * m.weights[axis][cell]
				}
			}
			cell++
			return nil
		})
		m.samples = append(m.samples, tdSample{
			time:  m.eng.Time(),
			value: m.Weight() * sum,
		})
	}
	return m.StepsTillTrigger()
}

func (m *ModeMatch) FlushData() error {
	return flushTD(m.Name()+"_mm.csv", m.samples, &m.written)
}

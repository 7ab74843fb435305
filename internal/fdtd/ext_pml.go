package fdtd

import (
	"fmt"
	"math"

	lua "github.com/Shopify/go-lua"
)

const (
	DefaultPMLSize = 8
	pmlReflection  = 1e-4
	pmlGradOrder   = 4
)

// UPML is a graded absorbing layer covering all faces marked BCPml. The
// grading function maps normalized layer depth x in [0,1] to a relative
// conductivity profile; the empty descriptor selects the default
// power-law profile.
type UPML struct {
	op       *Operator
	size     [6]int
	gradFunc string
}

// CreateUPML registers one UPML extension covering every PML face, or
// returns nil when no face needs one.
func CreateUPML(op *Operator, size [6]int, gradFunc string) *UPML {
	bc := op.BoundaryConditions()
	any := false
	for n := 0; n < 6; n++ {
		if bc[n] == BCPml {
			any = true
		} else {
			size[n] = 0
		}
	}
	if !any {
		return nil
	}
	for n := 0; n < 6; n++ {
		if bc[n] == BCPml && size[n] <= 0 {
			size[n] = DefaultPMLSize
		}
	}
	ext := &UPML{op: op, size: size, gradFunc: gradFunc}
	op.AddExtension(ext)
	return ext
}

func (u *UPML) Name() string { return "UPML" }

func (u *UPML) Size(face int) int { return u.size[face] }

// grading evaluates the conductivity profile at normalized depth x.
func (u *UPML) grading(x float64) (float64, error) {
	if u.gradFunc == "" {
		return math.Pow(x, pmlGradOrder), nil
	}
	l := lua.NewState()
	lua.OpenLibraries(l)
	l.PushNumber(x)
	l.SetGlobal("x")
	if err := lua.DoString(l, "return "+u.gradFunc); err != nil {
		return 0, fmt.Errorf("upml: grading function %q: %v", u.gradFunc, err)
	}
	v, ok := l.ToNumber(-1)
	if !ok {
		return 0, fmt.Errorf("upml: grading function %q did not yield a number", u.gradFunc)
	}
	return v, nil
}

// BuildExtension folds the graded conductivity into the voltage update
// coefficients of all layer cells.
func (u *UPML) BuildExtension() error {
	op := u.op
	dt := op.Timestep()

	for face := 0; face < 6; face++ {
		w := u.size[face]
		if w <= 0 {
			continue
		}
		axis := face / 2
		top := face%2 == 1
		if w >= op.NumLines(axis) {
			return fmt.Errorf("upml: layer of %d cells exceeds grid in direction %d", w, axis)
		}

		// physical layer width for the conductivity scale
		var pos [3]int
		width := 0.0
		for d := 0; d < w; d++ {
			pos[axis] = d
			if top {
				pos[axis] = op.NumLines(axis) - 2 - d
			}
			width += op.edgeLength(axis, pos)
		}
		sigmaMax := -(pmlGradOrder + 1) * math.Log(pmlReflection) * C0 * Eps0 / (2 * width)

		for d := 0; d < w; d++ {
			depth := (float64(w-d) - 0.5) / float64(w)
			g, err := u.grading(depth)
			if err != nil {
				return err
			}
			damp := math.Exp(-sigmaMax * g * dt / Eps0)

			line := d
			if top {
				line = op.NumLines(axis) - 1 - d
			}
			u.dampPlane(axis, line, damp)
		}
	}
	return nil
}

func (u *UPML) dampPlane(axis, line int, damp float64) {
	op := u.op
	t1 := (axis + 1) % 3
	t2 := (axis + 2) % 3
	for a := 0; a < op.NumLines(t1); a++ {
		for b := 0; b < op.NumLines(t2); b++ {
			var pos [3]int
			pos[axis] = line
			pos[t1] = a
			pos[t2] = b
			idx := op.Index(pos[0], pos[1], pos[2])
			for n := 0; n < 3; n++ {
				op.vv[n][idx] *= damp
				op.viA[n][idx] *= damp
				op.viB[n][idx] *= damp
			}
		}
	}
}

func (u *UPML) CreateEngineExtension(eng *Engine) EngineExtension { return nil }

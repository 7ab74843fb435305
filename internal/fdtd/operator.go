package fdtd

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/tmolteno/openEMS/internal/config"
	"github.com/tmolteno/openEMS/internal/geometry"
)

// Physical constants (SI).
const (
	Eps0 = 8.85418781762e-12
	Mue0 = 4e-7 * math.Pi
	C0   = 299792458.0
)

// BoundaryType is the per-face boundary condition as the operator knows
// it. Mur and PML faces are realized by extensions; the operator core only
// distinguishes electric and magnetic walls.
type BoundaryType int

const (
	BCPec BoundaryType = iota
	BCPmc
	BCMur
	BCPml
)

func (b BoundaryType) String() string {
	switch b {
	case BCPec:
		return "PEC"
	case BCPmc:
		return "PMC"
	case BCMur:
		return "MUR"
	case BCPml:
		return "PML"
	}
	return "unknown"
}

// DebugFlags request diagnostic dumps during coefficient calculation.
// They never change the electromagnetic result.
type DebugFlags uint

const (
	DebugNone     DebugFlags = 0
	DebugMaterial DebugFlags = 1 << iota
	DebugOperator
	DebugPEC
)

type engineKind int

const (
	kindStandard engineKind = iota
	kindVector
	kindCompressed
	kindMultithread
)

// Operator holds the discretized per-cell update coefficients for a
// geometry. The mesh deltas are folded into the curl coefficients, so the
// engines run pure gather loops.
type Operator struct {
	kind        engineKind
	numThreads  int
	cylindrical bool
	mgRadii     []float64

	geom      *geometry.Document
	numLines  [3]int
	lines     [3][]float64
	deltaUnit float64

	dt      float64
	dtFixed bool

	bc   [6]BoundaryType
	exts []Extension
	exc  *Excitation

	// voltage (E) update: E = vv*E + viA*dH1 - viB*dH2
	vv, viA, viB [3][]float64
	// current (H) update: H = H - ivA*dE1 + ivB*dE2
	ivA, ivB [3][]float64

	pec []bool
}

// NewOperator creates the default serial operator.
func NewOperator() *Operator {
	return &Operator{kind: kindStandard, deltaUnit: 1}
}

// NewOperatorVector creates an operator whose engine runs flat
// vector-style update loops.
func NewOperatorVector() *Operator {
	return &Operator{kind: kindVector, deltaUnit: 1}
}

// NewOperatorVectorCompressed creates an operator whose engine runs on
// deduplicated coefficient tables.
func NewOperatorVectorCompressed() *Operator {
	return &Operator{kind: kindCompressed, deltaUnit: 1}
}

// NewOperatorMultithread creates an operator whose engine splits the grid
// across worker goroutines. numThreads<=0 picks runtime.NumCPU.
func NewOperatorMultithread(numThreads int) *Operator {
	return &Operator{kind: kindMultithread, numThreads: numThreads, deltaUnit: 1}
}

// NewOperatorCylinder creates a cylindrical-coordinate operator. The mesh
// axes are interpreted as (r, alpha, z).
func NewOperatorCylinder(numThreads int) *Operator {
	return &Operator{kind: kindMultithread, numThreads: numThreads, cylindrical: true, deltaUnit: 1}
}

// NewOperatorCylinderMultiGrid creates a cylindrical operator with a
// multi-grid split at the given radii.
func NewOperatorCylinderMultiGrid(radii []float64, numThreads int) *Operator {
	return &Operator{kind: kindMultithread, numThreads: numThreads, cylindrical: true, mgRadii: radii, deltaUnit: 1}
}

// Type names the operator variant for statistics output.
func (o *Operator) Type() string {
	if o.cylindrical {
		if len(o.mgRadii) > 0 {
			return "cylinder-multigrid"
		}
		return "cylinder"
	}
	switch o.kind {
	case kindVector:
		return "vector"
	case kindCompressed:
		return "vector-compressed"
	case kindMultithread:
		return "multithreaded"
	}
	return "standard"
}

func (o *Operator) Cylindrical() bool { return o.cylindrical }

// SetGeometry binds the geometry document and sizes the grid.
func (o *Operator) SetGeometry(doc *geometry.Document) error {
	if doc == nil {
		return fmt.Errorf("operator: no geometry document")
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	o.geom = doc
	o.deltaUnit = doc.DeltaUnit
	if o.deltaUnit == 0 {
		o.deltaUnit = 1
	}
	for n := 0; n < 3; n++ {
		o.lines[n] = doc.Mesh.Lines(n)
		o.numLines[n] = len(o.lines[n])
	}
	if len(o.mgRadii) > 0 {
		for _, r := range o.mgRadii {
			if r <= o.lines[0][0] || r >= o.lines[0][o.numLines[0]-1] {
				return fmt.Errorf("operator: multi-grid radius %g outside radial mesh", r)
			}
		}
	}
	return nil
}

func (o *Operator) Geometry() *geometry.Document { return o.geom }

// SetBoundaryConditions must be called before extensions are built; the
// extensions read the resolved per-face types.
func (o *Operator) SetBoundaryConditions(bc [6]BoundaryType) { o.bc = bc }
func (o *Operator) BoundaryConditions() [6]BoundaryType      { return o.bc }

func (o *Operator) AddExtension(ext Extension) { o.exts = append(o.exts, ext) }
func (o *Operator) Extensions() []Extension    { return o.exts }

// SetTimestep overrides the derived stable timestep. Zero keeps the
// derivation.
func (o *Operator) SetTimestep(dt float64) {
	if dt > 0 {
		o.dt = dt
		o.dtFixed = true
	}
}

func (o *Operator) Timestep() float64 { return o.dt }

func (o *Operator) NumberOfCells() uint64 {
	return uint64(o.numLines[0]) * uint64(o.numLines[1]) * uint64(o.numLines[2])
}

func (o *Operator) NumLines(axis int) int { return o.numLines[axis] }
func (o *Operator) Lines(axis int) []float64 { return o.lines[axis] }

// Index flattens a grid position.
func (o *Operator) Index(i, j, k int) int {
	return (i*o.numLines[1]+j)*o.numLines[2] + k
}

// Stride is the flat-index distance between neighbors along an axis.
func (o *Operator) Stride(axis int) int {
	switch axis {
	case 0:
		return o.numLines[1] * o.numLines[2]
	case 1:
		return o.numLines[2]
	}
	return 1
}

// edgeLength is the physical length of the mesh edge starting at line i
// of the given axis, evaluated at grid position pos. For cylindrical
// meshes the alpha direction scales with the local radius.
func (o *Operator) edgeLength(axis int, pos [3]int) float64 {
	i := pos[axis]
	lines := o.lines[axis]
	if i >= len(lines)-1 {
		i = len(lines) - 2
	}
	d := (lines[i+1] - lines[i]) * o.deltaUnit
	if o.cylindrical && axis == 1 {
		r := o.lines[0][pos[0]] * o.deltaUnit
		if r <= 0 {
			r = o.minPositiveRadius()
		}
		d *= r
	}
	return d
}

func (o *Operator) minPositiveRadius() float64 {
	for _, r := range o.lines[0] {
		if r > 0 {
			return r * o.deltaUnit
		}
	}
	return o.deltaUnit
}

// calcTimestep derives the CFL-stable timestep from the smallest physical
// cell edges.
func (o *Operator) calcTimestep() float64 {
	var sum float64
	for n := 0; n < 3; n++ {
		dMin := math.Inf(1)
		for i := 0; i < o.numLines[n]-1; i++ {
			pos := [3]int{0, 0, 0}
			pos[n] = i
			if o.cylindrical && n == 1 {
				// worst case at the smallest positive radius
				pos[0] = o.smallestPositiveRadiusIndex()
			}
			if d := o.edgeLength(n, pos); d < dMin {
				dMin = d
			}
		}
		sum += 1 / (dMin * dMin)
	}
	return 0.99 / (C0 * math.Sqrt(sum))
}

func (o *Operator) smallestPositiveRadiusIndex() int {
	for i, r := range o.lines[0] {
		if r > 0 {
			return i
		}
	}
	return 0
}

// CalcECOperator computes the per-cell update coefficients from the bound
// geometry, then builds all registered extensions. Debug flags only add
// diagnostic dumps.
func (o *Operator) CalcECOperator(flags DebugFlags) error {
	if o.geom == nil {
		return fmt.Errorf("operator: geometry not set")
	}
	if !o.dtFixed {
		o.dt = o.calcTimestep()
	}

	size := int(o.NumberOfCells())
	epsR := make([]float64, size)
	mueR := make([]float64, size)
	kappa := make([]float64, size)
	o.pec = make([]bool, size)
	for i := range epsR {
		epsR[i] = 1
		mueR[i] = 1
	}
	o.fillMaterial(epsR, mueR, kappa)

	for n := 0; n < 3; n++ {
		o.vv[n] = make([]float64, size)
		o.viA[n] = make([]float64, size)
		o.viB[n] = make([]float64, size)
		o.ivA[n] = make([]float64, size)
		o.ivB[n] = make([]float64, size)
	}

	for i := 0; i < o.numLines[0]; i++ {
		for j := 0; j < o.numLines[1]; j++ {
			for k := 0; k < o.numLines[2]; k++ {
				pos := [3]int{i, j, k}
				idx := o.Index(i, j, k)
				eps := Eps0 * epsR[idx]
				mue := Mue0 * mueR[idx]
				denom := 1 + kappa[idx]*o.dt/(2*eps)
				for n := 0; n < 3; n++ {
					np1 := (n + 1) % 3
					np2 := (n + 2) % 3
					d1 := o.edgeLength(np1, pos)
					d2 := o.edgeLength(np2, pos)
					if o.pec[idx] || o.tangentialPecFace(n, pos) {
						continue
					}
					o.vv[n][idx] = (1 - kappa[idx]*o.dt/(2*eps)) / denom
					o.viA[n][idx] = o.dt / eps / denom / d1
					o.viB[n][idx] = o.dt / eps / denom / d2
					o.ivA[n][idx] = o.dt / mue / d1
					o.ivB[n][idx] = o.dt / mue / d2
				}
			}
		}
	}

	if flags&DebugMaterial != 0 {
		if err := o.dumpMaterial("material_dump.csv", epsR, mueR, kappa); err != nil {
			return err
		}
	}
	if flags&DebugPEC != 0 {
		if err := o.dumpPEC("PEC_dump.csv"); err != nil {
			return err
		}
	}

	for _, ext := range o.exts {
		if err := ext.BuildExtension(); err != nil {
			return fmt.Errorf("operator: building extension %s: %w", ext.Name(), err)
		}
	}

	if flags&DebugOperator != 0 {
		if err := o.dumpOperator("operator_dump.csv"); err != nil {
			return err
		}
	}
	return nil
}

// tangentialPecFace reports whether component n at pos lies tangential on
// a PEC outer face, where the electric field is forced to zero.
func (o *Operator) tangentialPecFace(n int, pos [3]int) bool {
	for axis := 0; axis < 3; axis++ {
		if axis == n {
			continue
		}
		if pos[axis] == 0 && o.bc[2*axis] == BCPec {
			return true
		}
		if pos[axis] == o.numLines[axis]-1 && o.bc[2*axis+1] == BCPec {
			return true
		}
	}
	return false
}

func (o *Operator) fillMaterial(epsR, mueR, kappa []float64) {
	for _, prop := range o.geom.Properties {
		switch prop.Type {
		case geometry.TypeMaterial, geometry.TypeLorentzMaterial:
			for _, prim := range prop.Primitives {
				o.forEachCellIn(prim, func(idx int) {
					if prop.EpsR > 0 {
						epsR[idx] = prop.EpsR
					}
					if prop.MueR > 0 {
						mueR[idx] = prop.MueR
					}
					kappa[idx] = prop.Kappa
				})
				prim.SetUsed(true)
			}
		case geometry.TypeMetal:
			for _, prim := range prop.Primitives {
				o.forEachCellIn(prim, func(idx int) {
					o.pec[idx] = true
				})
				prim.SetUsed(true)
			}
		}
	}
}

func (o *Operator) forEachCellIn(prim *geometry.Box, fn func(idx int)) {
	start, stop := prim.BoundBox()
	for i := 0; i < o.numLines[0]; i++ {
		for j := 0; j < o.numLines[1]; j++ {
			for k := 0; k < o.numLines[2]; k++ {
				p := [3]float64{o.lines[0][i], o.lines[1][j], o.lines[2][k]}
				inside := true
				for n := 0; n < 3; n++ {
					if p[n] < start[n] || p[n] > stop[n] {
						inside = false
						break
					}
				}
				if inside {
					fn(o.Index(i, j, k))
				}
			}
		}
	}
}

// SnapToMesh returns the closest line index per axis for a coordinate.
func (o *Operator) SnapToMesh(coord [3]float64) [3]int {
	var out [3]int
	for n := 0; n < 3; n++ {
		best := 0
		bestDist := math.Inf(1)
		for i, l := range o.lines[n] {
			if d := math.Abs(l - coord[n]); d < bestDist {
				bestDist = d
				best = i
			}
		}
		out[n] = best
	}
	return out
}

// SetupExcitation builds the excitation from configuration. numTS bounds
// the signal length.
func (o *Operator) SetupExcitation(cfg *config.Excitation, numTS uint) error {
	exc, err := NewExcitation(cfg, o.dt, numTS, o)
	if err != nil {
		return err
	}
	o.exc = exc
	return nil
}

func (o *Operator) Excitation() *Excitation { return o.exc }

// CreateEngine builds the companion time-marching engine for this
// operator variant. The engine never outlives the operator.
func (o *Operator) CreateEngine() (*Engine, error) {
	if o.exc == nil {
		return nil, fmt.Errorf("operator: excitation not set up")
	}
	var k kernel
	switch o.kind {
	case kindVector:
		k = newVectorKernel(o)
	case kindCompressed:
		k = newCompressedKernel(o)
	case kindMultithread:
		k = newThreadedKernel(o, o.numThreads)
	default:
		k = newSerialKernel(o)
	}
	eng := newEngine(o, k)
	for _, ext := range o.exts {
		if ee := ext.CreateEngineExtension(eng); ee != nil {
			eng.addExtension(ee)
		}
	}
	return eng, nil
}

// WriteStats prints the operator summary the way the CLI reports it.
func (o *Operator) WriteStats(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "operator:\t%s\n", o.Type())
	fmt.Fprintf(tw, "grid:\t%d x %d x %d\n", o.numLines[0], o.numLines[1], o.numLines[2])
	fmt.Fprintf(tw, "cells:\t%d\n", o.NumberOfCells())
	fmt.Fprintf(tw, "timestep:\t%.6e s\n", o.dt)
	for n := 0; n < 6; n++ {
		fmt.Fprintf(tw, "boundary %s:\t%s\n", config.FaceNames[n], o.bc[n])
	}
	tw.Flush()
}

func (o *Operator) WriteExtStats(w io.Writer) {
	for _, ext := range o.exts {
		fmt.Fprintf(w, "active extension: %s\n", ext.Name())
	}
}

func (o *Operator) dumpMaterial(path string, epsR, mueR, kappa []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"i", "j", "k", "eps_r", "mue_r", "kappa"}); err != nil {
		return err
	}
	return o.dumpCells(w, func(idx int) []string {
		return []string{
			strconv.FormatFloat(epsR[idx], 'g', -1, 64),
			strconv.FormatFloat(mueR[idx], 'g', -1, 64),
			strconv.FormatFloat(kappa[idx], 'g', -1, 64),
		}
	})
}

func (o *Operator) dumpPEC(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"i", "j", "k", "pec"}); err != nil {
		return err
	}
	return o.dumpCells(w, func(idx int) []string {
		if o.pec[idx] {
			return []string{"1"}
		}
		return []string{"0"}
	})
}

func (o *Operator) dumpOperator(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"i", "j", "k", "vv_x", "vv_y", "vv_z"}); err != nil {
		return err
	}
	return o.dumpCells(w, func(idx int) []string {
		return []string{
			strconv.FormatFloat(o.vv[0][idx], 'g', -1, 64),
			strconv.FormatFloat(o.vv[1][idx], 'g', -1, 64),
			strconv.FormatFloat(o.vv[2][idx], 'g', -1, 64),
		}
	})
}

func (o *Operator) dumpCells(w *csv.Writer, cols func(idx int) []string) error {
	for i := 0; i < o.numLines[0]; i++ {
		for j := 0; j < o.numLines[1]; j++ {
			for k := 0; k < o.numLines[2]; k++ {
				row := []string{strconv.Itoa(i), strconv.Itoa(j), strconv.Itoa(k)}
				row = append(row, cols(o.Index(i, j, k))...)
				if err := w.Write(row); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

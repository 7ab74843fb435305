package sim

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tmolteno/openEMS/internal/config"
	"github.com/tmolteno/openEMS/internal/fdtd"
	"github.com/tmolteno/openEMS/internal/geometry"
	"github.com/tmolteno/openEMS/internal/observability"
	"github.com/tmolteno/openEMS/internal/processing"
)

// EngineType selects the performance engine. Cylindrical coordinates take
// precedence over all of these.
type EngineType int

const (
	EngineStandard EngineType = iota
	EngineSSE
	EngineSSECompressed
	EngineMultithreaded
)

// Status distinguishes a full setup from a preprocessing-only pass.
type Status int

const (
	StatusOK Status = iota
	StatusPreprocessOnly
)

// Fatal construction errors, mapped to distinct exit codes by the CLI.
var (
	ErrGeometryBind    = errors.New("sim: geometry binding failed")
	ErrExcitationSetup = errors.New("sim: excitation setup failed")
)

// Simulation orchestrates one run: operator/engine construction, boundary
// and extension composition, processing assembly, and the time-stepping
// loop. It is single-threaded; any parallelism lives inside the engine.
type Simulation struct {
	numTS          uint
	endCrit        float64
	overSampling   int
	cylinderCoords bool
	engineType     EngineType
	numThreads     int

	enableDumps   bool
	debugMaterial bool
	debugOperator bool
	debugPEC      bool
	debugBox      bool
	debugGeometry bool
	noSimulation  bool

	op  *fdtd.Operator
	eng *fdtd.Engine
	pa  *processing.Array

	abortCheck func() bool
	statusFunc func(Progress)
	collector  *observability.RunCollector

	out    io.Writer
	errOut io.Writer
}

func New() *Simulation {
	s := &Simulation{
		enableDumps: true,
		out:         os.Stdout,
		errOut:      os.Stderr,
	}
	// read errOut at poll time so SetOutput redirects the diagnostic too
	s.abortCheck = func() bool { return abortFilePresent("ABORT", s.errOut) }
	return s
}

func (s *Simulation) SetEngineType(t EngineType)  { s.engineType = t }
func (s *Simulation) SetNumThreads(n int)         { s.numThreads = n }
func (s *Simulation) SetEnableDumps(enable bool)  { s.enableDumps = enable }
func (s *Simulation) SetNoSimulation(no bool)     { s.noSimulation = no }
func (s *Simulation) DebugMaterial()              { s.debugMaterial = true }
func (s *Simulation) DebugOperator()              { s.debugOperator = true }
func (s *Simulation) DebugPEC()                   { s.debugPEC = true }
func (s *Simulation) DebugBox()                   { s.debugBox = true }
func (s *Simulation) DebugGeometry()              { s.debugGeometry = true }
func (s *Simulation) SetOutput(out, errOut io.Writer) {
	s.out = out
	s.errOut = errOut
}

// SetAbortCheck replaces the external abort condition polled once per
// burst.
func (s *Simulation) SetAbortCheck(check func() bool) { s.abortCheck = check }

// SetStatusFunc registers a hook receiving every progress report.
func (s *Simulation) SetStatusFunc(fn func(Progress)) { s.statusFunc = fn }

func (s *Simulation) SetCollector(c *observability.RunCollector) { s.collector = c }

func (s *Simulation) Operator() *fdtd.Operator       { return s.op }
func (s *Simulation) Engine() *fdtd.Engine           { return s.eng }
func (s *Simulation) Processings() *processing.Array { return s.pa }
func (s *Simulation) Timesteps() uint                { return s.numTS }

// CheckAbortFile returns an abort check that looks for a sentinel file in
// the working directory, writing its diagnostic to w when it fires.
func CheckAbortFile(path string, w io.Writer) func() bool {
	return func() bool { return abortFilePresent(path, w) }
}

func abortFilePresent(path string, w io.Writer) bool {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "openEMS: found file %q, aborting simulation...\n", path)
		return true
	}
	return false
}

// Setup builds the operator, composes boundaries and extensions, and
// assembles the processing pipeline. In preprocessing-only mode it stops
// after operator construction and reports StatusPreprocessOnly.
func (s *Simulation) Setup(doc *config.Document) (Status, error) {
	f := doc.FDTD
	s.numTS = f.NumberOfTimesteps
	s.endCrit = f.EndCriteria
	s.overSampling = f.OverSampling
	if s.overSampling < config.MinOverSampling {
		s.overSampling = config.MinOverSampling
	}
	s.cylinderCoords = f.CylinderCoords

	geom := doc.Geometry
	if geom == nil {
		return 0, fmt.Errorf("%w: no geometry document", ErrGeometryBind)
	}
	if s.cylinderCoords && geom.CoordSystem != geometry.Cylindrical {
		fmt.Fprintln(s.errOut, "openEMS: warning: geometry is not cylindrical, forcing cylindrical coordinate system")
		geom.CoordSystem = geometry.Cylindrical
	}
	if s.debugGeometry {
		if err := geom.WriteDebug("debug_geometry.yaml"); err != nil {
			fmt.Fprintf(s.errOut, "openEMS: warning: geometry debug dump: %v\n", err)
		}
	}

	op, err := s.createOperator(f)
	if err != nil {
		return 0, err
	}
	if err := op.SetGeometry(geom); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrGeometryBind, err)
	}
	s.op = op

	s.setupBoundaryConditions(f.BoundaryCond)

	if geom.CountType(geometry.TypeLorentzMaterial) > 0 {
		op.AddExtension(fdtd.NewLorentzMaterial(op))
	}

	if f.Timestep != 0 {
		op.SetTimestep(f.Timestep)
	}

	var flags fdtd.DebugFlags
	if s.debugMaterial {
		flags |= fdtd.DebugMaterial
	}
	if s.debugOperator {
		flags |= fdtd.DebugOperator
	}
	if s.debugPEC {
		flags |= fdtd.DebugPEC
	}
	if err := op.CalcECOperator(flags); err != nil {
		return 0, err
	}

	// a zero or unset wall-clock cap means "no cap"
	if f.MaxTime > 0 {
		maxTS := uint(f.MaxTime / op.Timestep())
		if maxTS > 0 && maxTS < s.numTS {
			s.numTS = maxTS
		}
	}

	if err := op.SetupExcitation(f.Excitation, s.numTS); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrExcitationSetup, err)
	}

	op.WriteStats(s.out)
	op.WriteExtStats(s.out)

	if s.noSimulation {
		fmt.Fprintln(s.out, "openEMS: preprocessing only, no simulation will run")
		return StatusPreprocessOnly, nil
	}

	eng, err := op.CreateEngine()
	if err != nil {
		return 0, err
	}
	s.eng = eng

	fmt.Fprintln(s.out, "setting up processing...")
	if err := s.setupProcessing(geom); err != nil {
		return 0, err
	}
	return StatusOK, nil
}

// createOperator picks the operator variant. Cylindrical coordinates win
// over any performance-engine selection; within cylindrical, a multi-grid
// radius list wins over the plain cylindrical operator.
func (s *Simulation) createOperator(f *config.FDTD) (*fdtd.Operator, error) {
	if s.cylinderCoords {
		radii, err := f.MultiGridRadii()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGeometryBind, err)
		}
		if len(radii) > 0 {
			return fdtd.NewOperatorCylinderMultiGrid(radii, s.numThreads), nil
		}
		return fdtd.NewOperatorCylinder(s.numThreads), nil
	}
	switch s.engineType {
	case EngineSSE:
		return fdtd.NewOperatorVector(), nil
	case EngineSSECompressed:
		return fdtd.NewOperatorVectorCompressed(), nil
	case EngineMultithreaded:
		return fdtd.NewOperatorMultithread(s.numThreads), nil
	}
	return fdtd.NewOperator(), nil
}

// setupBoundaryConditions resolves the six declarative face settings into
// the operator's boundary vector and registers the matching extensions.
// Face-level problems never abort the run.
func (s *Simulation) setupBoundaryConditions(bc *config.BoundaryCond) {
	var bounds [6]fdtd.BoundaryType
	var pmlSize [6]int

	for n := 0; n < 6; n++ {
		bounds[n], pmlSize[n] = s.resolveFace(config.FaceNames[n], bc.Face(n))
	}

	// the operator only knows PEC and PMC; everything else is realized
	// by extensions reading the resolved vector
	s.op.SetBoundaryConditions(bounds)

	for n := 0; n < 6; n++ {
		if bounds[n] != fdtd.BCMur {
			continue
		}
		mur := fdtd.NewMurABC(s.op)
		mur.SetDirection(n/2, n%2 == 1)
		if v := bc.FaceMurPhaseVelocity(n); v != nil {
			mur.SetPhaseVelocity(*v)
		} else if bc.MurPhaseVelocity > 0 {
			mur.SetPhaseVelocity(bc.MurPhaseVelocity)
		}
		s.op.AddExtension(mur)
	}

	fdtd.CreateUPML(s.op, pmlSize, bc.PMLGrading)
}

// resolveFace maps one face attribute to a boundary type, defaulting to
// PEC with a diagnostic on anything unrecognized.
func (s *Simulation) resolveFace(name string, v config.FaceValue) (fdtd.BoundaryType, int) {
	if !v.Set {
		fmt.Fprintf(s.errOut, "openEMS: warning: boundary condition for %q not found, set to PEC\n", name)
		return fdtd.BCPec, 0
	}
	if v.IsNum {
		switch v.Num {
		case 0:
			return fdtd.BCPec, 0
		case 1:
			return fdtd.BCPmc, 0
		case 2:
			return fdtd.BCMur, 0
		case 3:
			return fdtd.BCPml, fdtd.DefaultPMLSize
		}
		fmt.Fprintf(s.errOut, "openEMS: warning: boundary condition %d for %q unknown, set to PEC\n", v.Num, name)
		return fdtd.BCPec, 0
	}
	switch v.Str {
	case "PEC":
		return fdtd.BCPec, 0
	case "PMC":
		return fdtd.BCPmc, 0
	case "MUR":
		return fdtd.BCMur, 0
	}
	if size, ok := parsePMLThickness(v.Str); ok {
		return fdtd.BCPml, size
	}
	fmt.Fprintf(s.errOut, "openEMS: warning: boundary condition %q for %q unknown, set to PEC\n", v.Str, name)
	return fdtd.BCPec, 0
}

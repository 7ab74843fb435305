package sim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tmolteno/openEMS/internal/fdtd"
	"github.com/tmolteno/openEMS/internal/geometry"
	"github.com/tmolteno/openEMS/internal/processing"
)

// Probe type codes as carried by the geometry document.
const (
	probeVoltage    = 0
	probeCurrent    = 1
	probeEField     = 2
	probeHField     = 3
	probeModeMatchE = 10
	probeModeMatchH = 11
)

// probeSetter is the configuration surface every processing unit exposes
// through its embedded Base.
type probeSetter interface {
	processing.Processing
	SetName(string)
	SetEngineInterface(*fdtd.EngineInterface)
	SetProcessInterval(uint)
	AddFrequency([]float64)
	SetMeshType(int)
	SetWeight(float64)
	DefineStartStopCoord(start, stop [3]float64)
}

// setupProcessing walks the geometry's probe and dump properties and
// builds the processing array. A malformed unit is skipped with a
// diagnostic, never aborting the run.
func (s *Simulation) setupProcessing(geom *geometry.Document) error {
	nyquist := s.op.Excitation().NyquistNum()
	s.pa = processing.NewArray(nyquist)
	interval := nyquist / uint(s.overSampling)

	for _, prop := range geom.PropertiesByType(geometry.TypeProbeBox) {
		prim := prop.Primitive(0)
		if prim == nil || prop.Probe == nil {
			fmt.Fprintf(s.errOut, "openEMS: warning: probe %q has no box, skipping\n", prop.Name)
			continue
		}
		pb := prop.Probe

		var proc probeSetter
		switch pb.Type {
		case probeVoltage:
			proc = processing.NewVoltage()
		case probeCurrent:
			proc = processing.NewCurrent()
		case probeEField:
			proc = processing.NewFieldProbe(processing.FieldTypeE)
		case probeHField:
			proc = processing.NewFieldProbe(processing.FieldTypeH)
		case probeModeMatchE, probeModeMatchH:
			mm := processing.NewModeMatch()
			if pb.Type == probeModeMatchH {
				mm.SetFieldType(processing.FieldTypeH)
			} else {
				mm.SetFieldType(processing.FieldTypeE)
			}
			for axis := 0; axis < 3; axis++ {
				mm.SetModeFunction(axis, pb.ModeFunction(axis))
			}
			proc = mm
		default:
			fmt.Fprintf(s.errOut, "openEMS: warning: probe %q has unknown type %d, skipping\n", prop.Name, pb.Type)
			continue
		}

		s.configureUnit(proc, prop.Name, interval, prim)
		proc.AddFrequency(pb.FDSamples)
		proc.SetWeight(pb.Weighting())
		if err := proc.InitProcess(); err != nil {
			fmt.Fprintf(s.errOut, "openEMS: warning: probe %q init failed: %v, skipping\n", prop.Name, err)
			continue
		}
		prim.SetUsed(true)
		s.pa.AddProcessing(proc)
	}

	for _, prop := range geom.PropertiesByType(geometry.TypeDumpBox) {
		prim := prop.Primitive(0)
		if prim == nil || prop.Dump == nil {
			fmt.Fprintf(s.errOut, "openEMS: warning: dump %q has no box, skipping\n", prop.Name)
			continue
		}
		db := prop.Dump

		dump := processing.NewFieldsTD()
		dump.SetEnable(s.enableDumps)
		dump.SetDumpType(db.DumpType)
		dump.SetFileType(db.FileType)
		dump.SetFilePattern(prop.Name)
		for axis := 0; axis < 3; axis++ {
			dump.SetSubSampling(db.SubSampling[axis], axis)
		}
		s.configureUnit(dump, prop.Name, interval, prim)
		// dump mode needs the engine interface bound first
		dump.SetDumpMode(fdtd.InterpolationType(db.DumpMode))
		if err := dump.InitProcess(); err != nil {
			fmt.Fprintf(s.errOut, "openEMS: warning: dump %q init failed: %v, skipping\n", prop.Name, err)
			continue
		}
		prim.SetUsed(true)
		s.pa.AddProcessing(dump)
	}

	geom.WarnUnusedPrimitives(s.errOut)

	if s.debugBox {
		if err := s.pa.DumpBoxes2File("dump_boxes"); err != nil {
			fmt.Fprintf(s.errOut, "openEMS: warning: box dump: %v\n", err)
		}
	}
	return nil
}

func (s *Simulation) configureUnit(p probeSetter, name string, interval uint, prim *geometry.Box) {
	p.SetName(name)
	if s.cylinderCoords {
		p.SetMeshType(processing.CylindricalMesh)
	}
	p.SetEngineInterface(fdtd.NewEngineInterface(s.op, s.eng))
	p.SetProcessInterval(interval)
	start, stop := prim.BoundBox()
	p.DefineStartStopCoord(start, stop)
}

// parsePMLThickness handles the "PML_<n>" spelling, tolerating an extra
// "=" before the digits ("PML_=12").
func parsePMLThickness(s string) (int, bool) {
	if !strings.HasPrefix(s, "PML_") {
		return 0, false
	}
	rest := strings.TrimPrefix(s, "PML_")
	rest = strings.TrimPrefix(rest, "=")
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

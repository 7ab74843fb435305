package geometry

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Property types as they appear in the geometry document.
const (
	TypeMaterial        = "material"
	TypeMetal           = "metal"
	TypeLorentzMaterial = "lorentz"
	TypeProbeBox        = "probe"
	TypeDumpBox         = "dump"
)

// Coordinate systems a document may declare.
const (
	Cartesian   = "cartesian"
	Cylindrical = "cylindrical"
)

// Document describes the simulated structure: the discretization mesh and
// the typed material/probe/dump properties with their box primitives.
type Document struct {
	CoordSystem string      `yaml:"coord_system"`
	DeltaUnit   float64     `yaml:"delta_unit"`
	Mesh        *Mesh       `yaml:"mesh"`
	Properties  []*Property `yaml:"properties"`
}

// Mesh holds the grid line positions per axis.
type Mesh struct {
	XLines []float64 `yaml:"x"`
	YLines []float64 `yaml:"y"`
	ZLines []float64 `yaml:"z"`
}

func (m *Mesh) Lines(axis int) []float64 {
	switch axis {
	case 0:
		return m.XLines
	case 1:
		return m.YLines
	case 2:
		return m.ZLines
	}
	return nil
}

type Property struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// material parameters
	EpsR  float64 `yaml:"eps_r"`
	MueR  float64 `yaml:"mue_r"`
	Kappa float64 `yaml:"kappa"`

	// lorentz material parameters
	PlasmaFreq float64 `yaml:"plasma_freq"`
	RelaxTime  float64 `yaml:"relax_time"`

	Probe *ProbeAttr `yaml:"probe"`
	Dump  *DumpAttr  `yaml:"dump"`

	Primitives []*Box `yaml:"primitives"`
}

// Primitive returns primitive i, or nil when the property has none.
func (p *Property) Primitive(i int) *Box {
	if i < 0 || i >= len(p.Primitives) {
		return nil
	}
	return p.Primitives[i]
}

type ProbeAttr struct {
	Type          int       `yaml:"type"`
	Weight        float64   `yaml:"weight"`
	ModeFunctionX string    `yaml:"mode_function_x"`
	ModeFunctionY string    `yaml:"mode_function_y"`
	ModeFunctionZ string    `yaml:"mode_function_z"`
	FDSamples     []float64 `yaml:"fd_samples"`
}

// Weighting defaults to 1 when the document gives none.
func (p *ProbeAttr) Weighting() float64 {
	if p.Weight == 0 {
		return 1
	}
	return p.Weight
}

func (p *ProbeAttr) ModeFunction(axis int) string {
	switch axis {
	case 0:
		return p.ModeFunctionX
	case 1:
		return p.ModeFunctionY
	case 2:
		return p.ModeFunctionZ
	}
	return ""
}

type DumpAttr struct {
	DumpType    int    `yaml:"dump_type"`
	DumpMode    int    `yaml:"dump_mode"`
	FileType    int    `yaml:"file_type"`
	SubSampling [3]int `yaml:"sub_sampling"`
}

// Box is an axis-aligned primitive. Start/Stop need not be ordered; the
// bounding box normalizes them.
type Box struct {
	Start [3]float64 `yaml:"start"`
	Stop  [3]float64 `yaml:"stop"`

	used bool
}

func (b *Box) BoundBox() (start, stop [3]float64) {
	for n := 0; n < 3; n++ {
		start[n] = b.Start[n]
		stop[n] = b.Stop[n]
		if start[n] > stop[n] {
			start[n], stop[n] = stop[n], start[n]
		}
	}
	return start, stop
}

func (b *Box) SetUsed(used bool) { b.used = used }
func (b *Box) IsUsed() bool      { return b.used }

// Contains reports whether point pos lies inside the primitive.
func (b *Box) Contains(pos [3]float64) bool {
	start, stop := b.BoundBox()
	for n := 0; n < 3; n++ {
		if pos[n] < start[n] || pos[n] > stop[n] {
			return false
		}
	}
	return true
}

// PropertiesByType returns all properties of the given type, in document
// order.
func (d *Document) PropertiesByType(t string) []*Property {
	var props []*Property
	for _, p := range d.Properties {
		if p.Type == t {
			props = append(props, p)
		}
	}
	return props
}

func (d *Document) CountType(t string) int {
	n := 0
	for _, p := range d.Properties {
		if p.Type == t {
			n++
		}
	}
	return n
}

// Validate checks that the document can be discretized at all.
func (d *Document) Validate() error {
	if d.Mesh == nil {
		return fmt.Errorf("geometry: no mesh defined")
	}
	for axis := 0; axis < 3; axis++ {
		if len(d.Mesh.Lines(axis)) < 2 {
			return fmt.Errorf("geometry: mesh needs at least 2 lines in direction %d, got %d",
				axis, len(d.Mesh.Lines(axis)))
		}
	}
	return nil
}

// WarnUnusedPrimitives reports every primitive no processor or material
// fill ever consumed.
func (d *Document) WarnUnusedPrimitives(w io.Writer) {
	for _, p := range d.Properties {
		for i, prim := range p.Primitives {
			if !prim.IsUsed() {
				fmt.Fprintf(w, "geometry: warning: primitive %d of property %q was never used\n", i, p.Name)
			}
		}
	}
}

// WriteDebug dumps the resolved document for inspection.
func (d *Document) WriteDebug(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

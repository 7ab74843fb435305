package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/tmolteno/openEMS/internal/geometry"
)

const (
	DefaultEndCriteria  = 1e-6
	DefaultOverSampling = 4
	MinOverSampling     = 2
)

// Sentinel errors map one-to-one onto the distinct process exit codes.
var (
	ErrReadFailed      = errors.New("config: cannot read document")
	ErrMissingTopLevel = errors.New("config: missing top-level openems block")
	ErrMissingFDTD     = errors.New("config: missing fdtd block")
	ErrMissingBoundary = errors.New("config: missing boundary_cond block")
)

// Document is the full simulation description: solver settings plus the
// geometry the operator discretizes.
type Document struct {
	FDTD     *FDTD              `yaml:"fdtd"`
	Geometry *geometry.Document `yaml:"geometry"`
}

type FDTD struct {
	NumberOfTimesteps uint          `yaml:"number_of_timesteps"`
	CylinderCoords    bool          `yaml:"cylinder_coords"`
	EndCriteria       float64       `yaml:"end_criteria"`
	OverSampling      int           `yaml:"over_sampling"`
	Timestep          float64       `yaml:"timestep"`
	MaxTime           float64       `yaml:"max_time"`
	MultiGrid         string        `yaml:"multi_grid"`
	BoundaryCond      *BoundaryCond `yaml:"boundary_cond"`
	Excitation        *Excitation   `yaml:"excitation"`
}

// FaceValue holds a per-face boundary attribute before resolution. A face
// may be given as a small integer code or as a string such as "PML_8"; the
// composer decides which interpretation wins.
type FaceValue struct {
	Num   int
	Str   string
	IsNum bool
	Set   bool
}

func (f *FaceValue) UnmarshalYAML(value *yaml.Node) error {
	f.Set = true
	var n int
	if err := value.Decode(&n); err == nil {
		f.Num = n
		f.IsNum = true
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("boundary face value: %w", err)
	}
	f.Str = s
	return nil
}

type BoundaryCond struct {
	XMin FaceValue `yaml:"xmin"`
	XMax FaceValue `yaml:"xmax"`
	YMin FaceValue `yaml:"ymin"`
	YMax FaceValue `yaml:"ymax"`
	ZMin FaceValue `yaml:"zmin"`
	ZMax FaceValue `yaml:"zmax"`

	PMLGrading string `yaml:"pml_grading"`

	MurPhaseVelocity     float64  `yaml:"mur_phase_velocity"`
	MurPhaseVelocityXMin *float64 `yaml:"mur_phase_velocity_xmin"`
	MurPhaseVelocityXMax *float64 `yaml:"mur_phase_velocity_xmax"`
	MurPhaseVelocityYMin *float64 `yaml:"mur_phase_velocity_ymin"`
	MurPhaseVelocityYMax *float64 `yaml:"mur_phase_velocity_ymax"`
	MurPhaseVelocityZMin *float64 `yaml:"mur_phase_velocity_zmin"`
	MurPhaseVelocityZMax *float64 `yaml:"mur_phase_velocity_zmax"`
}

// FaceNames orders the six faces the way the operator indexes them.
var FaceNames = [6]string{"xmin", "xmax", "ymin", "ymax", "zmin", "zmax"}

func (bc *BoundaryCond) Face(n int) FaceValue {
	switch n {
	case 0:
		return bc.XMin
	case 1:
		return bc.XMax
	case 2:
		return bc.YMin
	case 3:
		return bc.YMax
	case 4:
		return bc.ZMin
	case 5:
		return bc.ZMax
	}
	return FaceValue{}
}

// FaceMurPhaseVelocity returns the per-face override for face n, or nil.
func (bc *BoundaryCond) FaceMurPhaseVelocity(n int) *float64 {
	switch n {
	case 0:
		return bc.MurPhaseVelocityXMin
	case 1:
		return bc.MurPhaseVelocityXMax
	case 2:
		return bc.MurPhaseVelocityYMin
	case 3:
		return bc.MurPhaseVelocityYMax
	case 4:
		return bc.MurPhaseVelocityZMin
	case 5:
		return bc.MurPhaseVelocityZMax
	}
	return nil
}

type Excitation struct {
	Type    string   `yaml:"type"`
	F0      float64  `yaml:"f0"`
	FC      float64  `yaml:"fc"`
	Sources []Source `yaml:"sources"`
}

type Source struct {
	Position  [3]int  `yaml:"position"`
	Direction int     `yaml:"direction"`
	Amplitude float64 `yaml:"amplitude"`
	Delay     float64 `yaml:"delay"`
}

// Load reads and validates a simulation document. The fdtd and
// boundary_cond blocks are required; everything else has defaults.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	var root struct {
		OpenEMS *Document `yaml:"openems"`
	}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if root.OpenEMS == nil {
		return nil, ErrMissingTopLevel
	}
	doc := root.OpenEMS
	if doc.FDTD == nil {
		return nil, ErrMissingFDTD
	}
	if doc.FDTD.BoundaryCond == nil {
		return nil, ErrMissingBoundary
	}
	doc.FDTD.applyDefaults()
	return doc, nil
}

func (f *FDTD) applyDefaults() {
	if f.EndCriteria == 0 {
		f.EndCriteria = DefaultEndCriteria
	}
	if f.OverSampling == 0 {
		f.OverSampling = DefaultOverSampling
	}
	if f.OverSampling < MinOverSampling {
		f.OverSampling = MinOverSampling
	}
}

// MultiGridRadii parses the comma-separated multi-grid split radii.
func (f *FDTD) MultiGridRadii() ([]float64, error) {
	if strings.TrimSpace(f.MultiGrid) == "" {
		return nil, nil
	}
	parts := strings.Split(f.MultiGrid, ",")
	radii := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("multi_grid radius %q: %w", p, err)
		}
		radii = append(radii, v)
	}
	return radii, nil
}

// Env carries process-level overrides that do not belong in the
// simulation document itself.
type Env struct {
	DataDir     string `env:"OPENEMS_DATA_DIR" envDefault:".openems"`
	MetricsAddr string `env:"OPENEMS_METRICS_ADDR"`
	NumThreads  int    `env:"OPENEMS_NUM_THREADS"`
}

func FromEnv() (*Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

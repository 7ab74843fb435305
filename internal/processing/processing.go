package processing

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tmolteno/openEMS/internal/fdtd"
)

// Mesh types a processor may be told about.
const (
	CartesianMesh = iota
	CylindricalMesh
)

// Processing is one measurement or output unit bound to a spatial region
// and a sampling cadence. Process runs the unit if it is due and returns
// the number of timesteps until it is due again (-1: never).
type Processing interface {
	Name() string
	InitProcess() error
	Process() int
	StepsTillTrigger() int
	FlushData() error
	StartStop() ([3]float64, [3]float64)
}

// Base carries the state shared by all processors: the non-owning engine
// handle, the sampling interval, explicit trigger steps, and the resolved
// region.
type Base struct {
	name     string
	eng      *fdtd.EngineInterface
	interval uint
	steps    []uint
	start    [3]float64
	stop     [3]float64
	startIdx [3]int
	stopIdx  [3]int
	weight   float64
	freqs    []float64
	meshType int
	enabled  bool
}

func (b *Base) SetName(name string) { b.name = name }
func (b *Base) Name() string        { return b.name }

func (b *Base) SetEngineInterface(eng *fdtd.EngineInterface) { b.eng = eng }
func (b *Base) EngineInterface() *fdtd.EngineInterface       { return b.eng }

func (b *Base) SetProcessInterval(interval uint) { b.interval = interval }
func (b *Base) ProcessInterval() uint            { return b.interval }

// AddStep registers an explicit trigger timestep in addition to the
// periodic interval.
func (b *Base) AddStep(ts uint) {
	for _, s := range b.steps {
		if s == ts {
			return
		}
	}
	b.steps = append(b.steps, ts)
	sort.Slice(b.steps, func(i, j int) bool { return b.steps[i] < b.steps[j] })
}

func (b *Base) AddFrequency(freqs []float64) { b.freqs = append(b.freqs, freqs...) }
func (b *Base) Frequencies() []float64       { return b.freqs }

func (b *Base) SetMeshType(t int) { b.meshType = t }
func (b *Base) MeshType() int     { return b.meshType }

func (b *Base) SetWeight(w float64) { b.weight = w }

func (b *Base) Weight() float64 {
	if b.weight == 0 {
		return 1
	}
	return b.weight
}

func (b *Base) SetEnable(enable bool) { b.enabled = enable }
func (b *Base) Enabled() bool         { return b.enabled }

// DefineStartStopCoord binds the region and snaps it to the mesh.
func (b *Base) DefineStartStopCoord(start, stop [3]float64) {
	b.start = start
	b.stop = stop
	if b.eng != nil {
		op := b.eng.Operator()
		b.startIdx = op.SnapToMesh(start)
		b.stopIdx = op.SnapToMesh(stop)
		for n := 0; n < 3; n++ {
			if b.startIdx[n] > b.stopIdx[n] {
				b.startIdx[n], b.stopIdx[n] = b.stopIdx[n], b.startIdx[n]
			}
		}
	}
}

func (b *Base) StartStop() ([3]float64, [3]float64) { return b.start, b.stop }

// CheckTimestep reports whether the processor is due at the engine's
// current timestep.
func (b *Base) CheckTimestep() bool {
	ts := b.eng.NumberOfTimesteps()
	if b.interval > 0 && ts%b.interval == 0 {
		return true
	}
	for _, s := range b.steps {
		if s == ts {
			return true
		}
		if s > ts {
			break
		}
	}
	return false
}

// StepsTillTrigger returns the distance to the next due timestep, or -1
// when the processor will never trigger again.
func (b *Base) StepsTillTrigger() int {
	ts := b.eng.NumberOfTimesteps()
	next := -1
	if b.interval > 0 {
		next = int(b.interval - ts%b.interval)
	}
	for _, s := range b.steps {
		if s > ts {
			d := int(s - ts)
			if next < 0 || d < next {
				next = d
			}
			break
		}
	}
	return next
}

// Array owns all processing units of a run. It aggregates the minimum
// next-trigger distance and flushes buffered output round-robin.
type Array struct {
	nyquist   uint
	procs     []Processing
	flushNext int
}

func NewArray(nyquist uint) *Array {
	return &Array{nyquist: nyquist}
}

func (a *Array) Nyquist() uint { return a.nyquist }

func (a *Array) AddProcessing(p Processing) { a.procs = append(a.procs, p) }

func (a *Array) Processings() []Processing { return a.procs }

// Process invokes every processor once and returns the smallest distance
// to any next trigger (-1 when none will trigger again).
func (a *Array) Process() int {
	min := -1
	for _, p := range a.procs {
		next := p.Process()
		if next < 0 {
			continue
		}
		if min < 0 || next < min {
			min = next
		}
	}
	return min
}

// FlushNext flushes one processor's buffered output per call, cycling
// through the collection.
func (a *Array) FlushNext() {
	if len(a.procs) == 0 {
		return
	}
	p := a.procs[a.flushNext%len(a.procs)]
	if err := p.FlushData(); err != nil {
		fmt.Fprintf(os.Stderr, "processing: flush of %q: %v\n", p.Name(), err)
	}
	a.flushNext++
}

// FlushAll flushes every processor, used at teardown.
func (a *Array) FlushAll() {
	for _, p := range a.procs {
		if err := p.FlushData(); err != nil {
			fmt.Fprintf(os.Stderr, "processing: flush of %q: %v\n", p.Name(), err)
		}
	}
}

// DumpBoxes2File writes a debug representation of all configured regions.
func (a *Array) DumpBoxes2File(prefix string) error {
	type box struct {
		Name  string     `yaml:"name"`
		Start [3]float64 `yaml:"start"`
		Stop  [3]float64 `yaml:"stop"`
	}
	boxes := make([]box, 0, len(a.procs))
	for _, p := range a.procs {
		start, stop := p.StartStop()
		boxes = append(boxes, box{Name: p.Name(), Start: start, Stop: stop})
	}
	data, err := yaml.Marshal(boxes)
	if err != nil {
		return err
	}
	return os.WriteFile(prefix+"boxes.yaml", data, 0644)
}

package processing

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/tmolteno/openEMS/internal/fdtd"
)

// Dump types and file formats for volumetric time-domain dumps.
const (
	DumpTypeE = iota
	DumpTypeH
)

const (
	FileTypeCSV = iota
	FileTypeJSON
)

// FieldsTD writes volumetric field snapshots at its sampling cadence. A
// disabled dump still runs its bookkeeping but writes no files.
type FieldsTD struct {
	Base
	dumpType    int
	fileType    int
	filePattern string
	subSampling [3]int

	snapshots uint
}

func NewFieldsTD() *FieldsTD {
	d := &FieldsTD{subSampling: [3]int{1, 1, 1}}
	d.SetEnable(true)
	return d
}

func (d *FieldsTD) SetDumpType(t int) { d.dumpType = t }

func (d *FieldsTD) SetDumpMode(mode fdtd.InterpolationType) {
	if d.EngineInterface() != nil {
		d.EngineInterface().SetInterpolationType(mode)
	}
}

func (d *FieldsTD) SetFileType(t int) { d.fileType = t }

func (d *FieldsTD) SetFilePattern(pattern string) { d.filePattern = pattern }

// SetSubSampling keeps only every factor-th line along the given axis.
func (d *FieldsTD) SetSubSampling(factor, axis int) {
	if factor < 1 {
		factor = 1
	}
	d.subSampling[axis] = factor
}

// Snapshots counts written (or, when disabled, suppressed) snapshots.
func (d *FieldsTD) Snapshots() uint { return d.snapshots }

func (d *FieldsTD) InitProcess() error {
	if d.EngineInterface() == nil {
		return fmt.Errorf("field dump %q: no engine interface", d.Name())
	}
	if d.filePattern == "" {
		d.filePattern = d.Name()
	}
	return nil
}

func (d *FieldsTD) Process() int {
	if d.CheckTimestep() {
		d.snapshots++
		if d.Enabled() {
			if err := d.writeSnapshot(); err != nil {
				fmt.Fprintf(os.Stderr, "field dump %q: %v\n", d.Name(), err)
			}
		}
	}
	return d.StepsTillTrigger()
}

type dumpCell struct {
	Pos   [3]int     `json:"pos"`
	Field [3]float64 `json:"field"`
}

func (d *FieldsTD) collect() []dumpCell {
	var cells []dumpCell
	for i := d.startIdx[0]; i <= d.stopIdx[0]; i += d.subSampling[0] {
		for j := d.startIdx[1]; j <= d.stopIdx[1]; j += d.subSampling[1] {
			for k := d.startIdx[2]; k <= d.stopIdx[2]; k += d.subSampling[2] {
				pos := [3]int{i, j, k}
				var f [3]float64
				if d.dumpType == DumpTypeH {
					f = d.eng.HField(pos)
				} else {
					f = d.eng.EField(pos)
				}
				cells = append(cells, dumpCell{Pos: pos, Field: f})
			}
		}
	}
	return cells
}

func (d *FieldsTD) writeSnapshot() error {
	ts := d.eng.NumberOfTimesteps()
	cells := d.collect()
	switch d.fileType {
	case FileTypeJSON:
		path := fmt.Sprintf("%s_%06d.json", d.filePattern, ts)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Timestep uint       `json:"timestep"`
			Time     float64    `json:"time"`
			Cells    []dumpCell `json:"cells"`
		}{ts, d.eng.Time(), cells})
	default:
		path := fmt.Sprintf("%s_%06d.csv", d.filePattern, ts)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w := csv.NewWriter(f)
		defer w.Flush()
		if err := w.Write([]string{"i", "j", "k", "fx", "fy", "fz"}); err != nil {
			return err
		}
		for _, c := range cells {
			row := []string{
				strconv.Itoa(c.Pos[0]), strconv.Itoa(c.Pos[1]), strconv.Itoa(c.Pos[2]),
				strconv.FormatFloat(c.Field[0], 'e', 9, 64),
				strconv.FormatFloat(c.Field[1], 'e', 9, 64),
				strconv.FormatFloat(c.Field[2], 'e', 9, 64),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	}
}

// FlushData is a no-op: snapshots are written when due.
func (d *FieldsTD) FlushData() error { return nil }

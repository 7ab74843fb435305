package processing

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
)

// Field types a point probe can record.
const (
	FieldTypeE = iota
	FieldTypeH
)

// FieldProbe records the field vector at the region center over time and
// accumulates an on-the-fly DFT at every requested output frequency.
type FieldProbe struct {
	Base
	fieldType int

	times   []float64
	values  [][3]float64
	written int

	fdReal [][3]float64 // per frequency
	fdImag [][3]float64
}

func NewFieldProbe(fieldType int) *FieldProbe {
	p := &FieldProbe{fieldType: fieldType}
	p.SetEnable(true)
	return p
}

func (p *FieldProbe) InitProcess() error {
	if p.EngineInterface() == nil {
		return fmt.Errorf("field probe %q: no engine interface", p.Name())
	}
	p.fdReal = make([][3]float64, len(p.Frequencies()))
	p.fdImag = make([][3]float64, len(p.Frequencies()))
	return nil
}

func (p *FieldProbe) center() [3]int {
	var c [3]int
	for n := 0; n < 3; n++ {
		c[n] = (p.startIdx[n] + p.stopIdx[n]) / 2
	}
	return c
}

func (p *FieldProbe) Process() int {
	if p.CheckTimestep() {
		var f [3]float64
		if p.fieldType == FieldTypeE {
			f = p.eng.EField(p.center())
		} else {
			f = p.eng.HField(p.center())
		}
		w := p.Weight()
		for n := 0; n < 3; n++ {
			f[n] *= w
		}
		t := p.eng.Time()
		p.times = append(p.times, t)
		p.values = append(p.values, f)

		for i, freq := range p.Frequencies() {
			arg := 2 * math.Pi * freq * t
			c, s := math.Cos(arg), math.Sin(arg)
			for n := 0; n < 3; n++ {
				p.fdReal[i][n] += f[n] * c
				p.fdImag[i][n] -= f[n] * s
			}
		}
	}
	return p.StepsTillTrigger()
}

func (p *FieldProbe) suffix() string {
	if p.fieldType == FieldTypeE {
		return "_e"
	}
	return "_h"
}

func (p *FieldProbe) FlushData() error {
	if err := p.flushTimeDomain(); err != nil {
		return err
	}
	if len(p.Frequencies()) > 0 {
		return p.flushFrequencyDomain()
	}
	return nil
}

func (p *FieldProbe) flushTimeDomain() error {
	if p.written >= len(p.times) {
		return nil
	}
	newFile := p.written == 0
	f, err := os.OpenFile(p.Name()+p.suffix()+".csv", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if newFile {
		if err := w.Write([]string{"time", "fx", "fy", "fz"}); err != nil {
			return err
		}
	}
	for i := p.written; i < len(p.times); i++ {
		row := []string{strconv.FormatFloat(p.times[i], 'e', 9, 64)}
		for n := 0; n < 3; n++ {
			row = append(row, strconv.FormatFloat(p.values[i][n], 'e', 9, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	p.written = len(p.times)
	return nil
}

// flushFrequencyDomain rewrites the accumulated DFT samples in full; the
// accumulators change with every trigger.
func (p *FieldProbe) flushFrequencyDomain() error {
	f, err := os.Create(p.Name() + p.suffix() + "_fd.csv")
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"freq", "re_fx", "im_fx", "re_fy", "im_fy", "re_fz", "im_fz"}); err != nil {
		return err
	}
	for i, freq := range p.Frequencies() {
		row := []string{strconv.FormatFloat(freq, 'e', 9, 64)}
		for n := 0; n < 3; n++ {
			row = append(row,
				strconv.FormatFloat(p.fdReal[i][n], 'e', 9, 64),
				strconv.FormatFloat(p.fdImag[i][n], 'e', 9, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

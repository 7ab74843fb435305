package processing

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Voltage integrates the electric field along the straight path between
// the region's corners, yielding a time-domain voltage trace.
type Voltage struct {
	Base
	samples []tdSample
	written int
}

type tdSample struct {
	time  float64
	value float64
}

func NewVoltage() *Voltage {
	v := &Voltage{}
	v.SetEnable(true)
	return v
}

func (v *Voltage) InitProcess() error {
	if v.EngineInterface() == nil {
		return fmt.Errorf("voltage probe %q: no engine interface", v.Name())
	}
	return nil
}

func (v *Voltage) Process() int {
	if v.CheckTimestep() {
		v.samples = append(v.samples, tdSample{
			time:  v.eng.Time(),
			value: v.Weight() * v.integrate(),
		})
	}
	return v.StepsTillTrigger()
}

// integrate walks from start to stop axis by axis, summing edge voltages.
func (v *Voltage) integrate() float64 {
	pos := v.startIdx
	sum := 0.0
	for n := 0; n < 3; n++ {
		for pos[n] < v.stopIdx[n] {
			sum += v.eng.Voltage(n, pos)
			pos[n]++
		}
	}
	return sum
}

func (v *Voltage) FlushData() error {
	return flushTD(v.Name()+"_v.csv", v.samples, &v.written)
}

// flushTD appends unwritten time-domain samples to a CSV trace file.
func flushTD(path string, samples []tdSample, written *int) error {
	if *written >= len(samples) {
		return nil
	}
	newFile := *written == 0
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if newFile {
		if err := w.Write([]string{"time", "value"}); err != nil {
			return err
		}
	}
	for _, s := range samples[*written:] {
		row := []string{
			strconv.FormatFloat(s.time, 'e', 9, 64),
			strconv.FormatFloat(s.value, 'e', 9, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	*written = len(samples)
	return nil
}

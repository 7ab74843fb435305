package processing

import "fmt"

// Current integrates the magnetic field around the region's cross
// section, yielding the enclosed current over time.
type Current struct {
	Base
	samples []tdSample
	written int

	normal int // loop plane normal axis
}

func NewCurrent() *Current {
	c := &Current{}
	c.SetEnable(true)
	return c
}

// InitProcess picks the loop plane: the first flat axis of the region, or
// z when the region is a full box.
func (c *Current) InitProcess() error {
	if c.EngineInterface() == nil {
		return fmt.Errorf("current probe %q: no engine interface", c.Name())
	}
	c.normal = 2
	for n := 0; n < 3; n++ {
		if c.startIdx[n] == c.stopIdx[n] {
			c.normal = n
			break
		}
	}
	return nil
}

func (c *Current) Process() int {
	if c.CheckTimestep() {
		c.samples = append(c.samples, tdSample{
			time:  c.eng.Time(),
			value: c.Weight() * c.loopIntegral(),
		})
	}
	return c.StepsTillTrigger()
}

// loopIntegral sums the magnetic loop currents around the rectangle in
// the plane normal to c.normal.
func (c *Current) loopIntegral() float64 {
	t1 := (c.normal + 1) % 3
	t2 := (c.normal + 2) % 3

	sum := 0.0
	pos := c.startIdx

	// +t1 edge at min t2
	for pos[t1] < c.stopIdx[t1] {
		sum += c.eng.Current(t1, pos)
		pos[t1]++
	}
	// +t2 edge at max t1
	for pos[t2] < c.stopIdx[t2] {
		sum += c.eng.Current(t2, pos)
		pos[t2]++
	}
	// -t1 edge at max t2
	for pos[t1] > c.startIdx[t1] {
		pos[t1]--
		sum -= c.eng.Current(t1, pos)
	}
	// -t2 edge at min t1
	for pos[t2] > c.startIdx[t2] {
		pos[t2]--
		sum -= c.eng.Current(t2, pos)
	}
	return sum
}

func (c *Current) FlushData() error {
	return flushTD(c.Name()+"_i.csv", c.samples, &c.written)
}

package fdtd

import (
	"fmt"
	"math"

	"github.com/tmolteno/openEMS/internal/config"
)

// ExcSource is a discrete excitation event: a field component driven at a
// grid position with a per-source delay.
type ExcSource struct {
	Pos       [3]int
	Direction int
	Amplitude float64
	DelayTS   uint
}

// Excitation is the shared waveform plus its discrete source events. The
// Nyquist number is the largest sampling interval (in timesteps) that
// still resolves the excited spectrum.
type Excitation struct {
	Signal  []float64
	Sources []ExcSource

	// periodic signals hold one period and repeat for the whole run
	periodic   bool
	dt         float64
	nyquistNum uint
}

// NewExcitation resolves the configured waveform against the operator's
// timestep. An empty or unusable excitation is a fatal setup error.
func NewExcitation(cfg *config.Excitation, dt float64, numTS uint, op *Operator) (*Excitation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("excitation: no excitation block configured")
	}
	if dt <= 0 {
		return nil, fmt.Errorf("excitation: invalid timestep %g", dt)
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("excitation: no sources defined")
	}

	e := &Excitation{dt: dt}

	switch cfg.Type {
	case "", "gauss":
		if cfg.F0 <= 0 || cfg.FC <= 0 {
			return nil, fmt.Errorf("excitation: gauss pulse needs positive f0 and fc")
		}
		e.Signal = gaussPulse(cfg.F0, cfg.FC, dt)
		e.nyquistNum = calcNyquistNum(cfg.F0+cfg.FC, dt)
	case "sinus":
		if cfg.F0 <= 0 {
			return nil, fmt.Errorf("excitation: sinus needs positive f0")
		}
		// one full period; valueAt repeats it for the life of the run
		period := uint(math.Ceil(1 / (cfg.F0 * dt)))
		e.Signal = make([]float64, period)
		for i := range e.Signal {
			e.Signal[i] = math.Sin(2 * math.Pi * cfg.F0 * float64(i) * dt)
		}
		e.periodic = true
		e.nyquistNum = calcNyquistNum(cfg.F0, dt)
	case "step":
		e.Signal = []float64{1}
		e.periodic = true
		e.nyquistNum = 1
	default:
		return nil, fmt.Errorf("excitation: unknown type %q", cfg.Type)
	}
	// a periodic signal must keep its full period, the run length does
	// not bound it
	if !e.periodic && uint(len(e.Signal)) > numTS && numTS > 0 {
		e.Signal = e.Signal[:numTS]
	}
	if e.nyquistNum == 0 {
		e.nyquistNum = 1
	}

	for _, src := range cfg.Sources {
		for n := 0; n < 3; n++ {
			if src.Position[n] < 0 || src.Position[n] >= op.NumLines(n) {
				return nil, fmt.Errorf("excitation: source position %v outside grid", src.Position)
			}
		}
		if src.Direction < 0 || src.Direction > 2 {
			return nil, fmt.Errorf("excitation: invalid direction %d", src.Direction)
		}
		amp := src.Amplitude
		if amp == 0 {
			amp = 1
		}
		e.Sources = append(e.Sources, ExcSource{
			Pos:       src.Position,
			Direction: src.Direction,
			Amplitude: amp,
			DelayTS:   uint(math.Round(src.Delay / dt)),
		})
	}
	return e, nil
}

// NyquistNum returns the sampling interval in timesteps sufficient to
// reconstruct the excitation spectrum.
func (e *Excitation) NyquistNum() uint { return e.nyquistNum }

// MaxExcitationTimestep is the last timestep (relative to a source delay)
// at which the waveform is still ramping up. For a periodic waveform the
// source never stops and this is one full period.
func (e *Excitation) MaxExcitationTimestep() uint { return uint(len(e.Signal)) }

// Periodic reports whether the waveform repeats for the whole run.
func (e *Excitation) Periodic() bool { return e.periodic }

func (e *Excitation) Count() int { return len(e.Sources) }

func (e *Excitation) Delay(i int) uint { return e.Sources[i].DelayTS }

// valueAt samples the waveform for source i at absolute timestep ts.
func (e *Excitation) valueAt(i int, ts uint) float64 {
	src := e.Sources[i]
	if ts < src.DelayTS {
		return 0
	}
	n := ts - src.DelayTS
	if e.periodic {
		n %= uint(len(e.Signal))
	} else if n >= uint(len(e.Signal)) {
		return 0
	}
	return src.Amplitude * e.Signal[n]
}

func calcNyquistNum(fMax, dt float64) uint {
	return uint(math.Floor(1 / (2 * fMax * dt)))
}

// gaussPulse builds a Gaussian-modulated cosine centered at f0 with
// bandwidth fc, sampled until the envelope decays below 1e-5.
func gaussPulse(f0, fc, dt float64) []float64 {
	t0 := 9 / (2 * math.Pi * fc)
	length := uint(math.Ceil(2 * t0 / dt))
	sig := make([]float64, length)
	for i := range sig {
		t := float64(i) * dt
		arg := 2 * math.Pi * fc * (t - t0) / 3
		sig[i] = math.Cos(2*math.Pi*f0*(t-t0)) * math.Exp(-arg*arg)
	}
	return sig
}

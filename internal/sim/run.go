package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tmolteno/openEMS/internal/fdtd"
	"github.com/tmolteno/openEMS/internal/processing"
)

// StopReason records why the time-stepping loop ended.
type StopReason int

const (
	ReasonConverged StopReason = iota
	ReasonBudgetExhausted
	ReasonAborted
)

func (r StopReason) String() string {
	switch r {
	case ReasonConverged:
		return "energy criterion reached"
	case ReasonBudgetExhausted:
		return "timestep budget exhausted"
	case ReasonAborted:
		return "aborted"
	}
	return "unknown"
}

// Progress is one status report, emitted roughly every four seconds.
type Progress struct {
	Elapsed        time.Duration
	Timestep       uint
	TotalTimesteps uint
	SpeedMCells    float64
	SecPerTS       float64
	Energy         float64
	DecayDB        float64
}

// EnergySample is one point of the recorded decay history.
type EnergySample struct {
	Timestep uint
	Energy   float64
	DecayDB  float64
}

// Result summarizes a finished run.
type Result struct {
	Timesteps   uint
	Cells       uint64
	Elapsed     time.Duration
	SpeedMCells float64
	Reason      StopReason
	FinalEnergy float64
	MaxEnergy   float64
	History     []EnergySample
}

// Run drives the engine in bursts until the energy criterion is met, the
// timestep budget runs out, the context is cancelled, or the abort check
// fires. A burst is never interrupted; aborts take effect between bursts.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	if s.eng == nil {
		return nil, fmt.Errorf("sim: engine not set up, call Setup first")
	}

	fmt.Fprintln(s.out, "running fdtd engine... this may take a while... grab a cup of coffee?!?")

	tracker := processing.NewFields()
	tracker.SetEngineInterface(fdtd.NewEngineInterface(s.op, s.eng))
	exc := s.op.Excitation()
	maxExcite := exc.MaxExcitationTimestep()
	for n := 0; n < exc.Count(); n++ {
		tracker.AddStep(exc.Delay(n) + maxExcite)
	}
	s.pa.AddProcessing(tracker)

	var (
		currE, maxE float64
		history     []EnergySample
		aborted     bool
	)
	change := 1.0
	cells := s.op.NumberOfCells()
	if s.collector != nil {
		s.collector.CellCount.Set(float64(cells))
	}

	updateEnergy := func() {
		currE = tracker.CalcTotalEnergy()
		if currE > maxE {
			maxE = currE
		}
		if maxE > 0 {
			change = currE / maxE
		}
	}

	startTime := time.Now()
	prevTime := startTime
	var prevTS uint

	step := clampBurst(s.pa.Process(), s.numTS)
	for s.eng.NumberOfTimesteps() < s.numTS && change > s.endCrit {
		if ctx.Err() != nil || (s.abortCheck != nil && s.abortCheck()) {
			aborted = true
			break
		}
		s.eng.IterateTimesteps(uint(step))
		step = s.pa.Process()
		if tracker.CheckTimestep() {
			updateEnergy()
		}
		currTS := s.eng.NumberOfTimesteps()
		step = clampBurst(step, s.numTS-currTS)

		if tDiff := time.Since(prevTime); tDiff > 4*time.Second {
			updateEnergy()
			speed := float64(cells) * float64(currTS-prevTS) / tDiff.Seconds()
			decay := decayDB(change)
			prog := Progress{
				Elapsed:        time.Since(startTime),
				Timestep:       currTS,
				TotalTimesteps: s.numTS,
				SpeedMCells:    speed / 1e6,
				SecPerTS:       tDiff.Seconds() / float64(currTS-prevTS),
				Energy:         currE,
				DecayDB:        decay,
			}
			s.reportProgress(prog)
			history = append(history, EnergySample{Timestep: currTS, Energy: currE, DecayDB: decay})
			prevTime = time.Now()
			prevTS = currTS
			s.pa.FlushNext()
		}
	}

	reason := ReasonBudgetExhausted
	switch {
	case aborted:
		reason = ReasonAborted
	case change <= s.endCrit:
		reason = ReasonConverged
	}

	elapsed := time.Since(startTime)
	numTS := s.eng.NumberOfTimesteps()
	speed := 0.0
	if elapsed > 0 {
		speed = float64(cells) * float64(numTS) / elapsed.Seconds() / 1e6
	}

	fmt.Fprintf(s.out, "time-stepping done: %d timesteps in %s (%s)\n",
		numTS, FormatTime(elapsed), reason)
	fmt.Fprintf(s.out, "average speed: %.1f MC/s\n", speed)
	if maxE > 0 {
		fmt.Fprintf(s.out, "final energy: %.3e (%.2f dB decay)\n", currE, decayDB(change))
	}

	s.pa.FlushAll()

	return &Result{
		Timesteps:   numTS,
		Cells:       cells,
		Elapsed:     elapsed,
		SpeedMCells: speed,
		Reason:      reason,
		FinalEnergy: currE,
		MaxEnergy:   maxE,
		History:     history,
	}, nil
}

func (s *Simulation) reportProgress(p Progress) {
	fmt.Fprintf(s.out, "[@ %s] timestep: %d (%5.2f%%) || speed: %.1f MC/s (%.1e s/TS) || energy: ~%.2e (%.2f dB)\n",
		FormatTime(p.Elapsed), p.Timestep,
		100*float64(p.Timestep)/float64(p.TotalTimesteps),
		p.SpeedMCells, p.SecPerTS, p.Energy, p.DecayDB)
	if s.collector != nil {
		s.collector.Timesteps.Set(float64(p.Timestep))
		s.collector.Energy.Set(p.Energy)
		s.collector.DecayDB.Set(p.DecayDB)
		s.collector.Speed.Set(p.SpeedMCells)
	}
	if s.statusFunc != nil {
		s.statusFunc(p)
	}
}

// clampBurst keeps a burst request inside the remaining budget. A
// negative request (nothing scheduled) runs out the whole budget.
func clampBurst(step int, remaining uint) int {
	if step < 0 || uint(step) > remaining {
		return int(remaining)
	}
	return step
}

func decayDB(change float64) float64 {
	if change <= 0 {
		return 0
	}
	return math.Abs(10 * math.Log10(change))
}

// FormatTime renders a duration as seconds, minutes or hours, matching
// the progress line layout.
func FormatTime(d time.Duration) string {
	sec := d.Seconds()
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	if sec < 3600 {
		return fmt.Sprintf("%dm%04.1fs", int(sec)/60, math.Mod(sec, 60))
	}
	return fmt.Sprintf("%dh%02dm%04.1fs", int(sec)/3600, (int(sec)%3600)/60, math.Mod(sec, 60))
}

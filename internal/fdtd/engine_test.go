package fdtd

import (
	"math"
	"testing"
)

func buildEngine(t *testing.T, op *Operator) *Engine {
	t.Helper()
	if err := op.SetGeometry(vacuumGeometry(8)); err != nil {
		t.Fatalf("set geometry failed: %v", err)
	}
	if err := op.CalcECOperator(DebugNone); err != nil {
		t.Fatalf("calc operator failed: %v", err)
	}
	if err := op.SetupExcitation(gaussExcitation([3]int{4, 4, 4}), 1000); err != nil {
		t.Fatalf("excitation setup failed: %v", err)
	}
	eng, err := op.CreateEngine()
	if err != nil {
		t.Fatalf("create engine failed: %v", err)
	}
	return eng
}

func TestIterateTimesteps(t *testing.T) {
	op := NewOperator()
	eng := buildEngine(t, op)

	if eng.NumberOfTimesteps() != 0 {
		t.Errorf("expected 0 timesteps, got %d", eng.NumberOfTimesteps())
	}
	eng.IterateTimesteps(7)
	eng.IterateTimesteps(3)
	if eng.NumberOfTimesteps() != 10 {
		t.Errorf("expected 10 timesteps, got %d", eng.NumberOfTimesteps())
	}
}

func TestEngineExcitesField(t *testing.T) {
	op := NewOperator()
	eng := buildEngine(t, op)
	ei := NewEngineInterface(op, eng)

	if e := ei.CalcFastEnergy(); e != 0 {
		t.Errorf("expected zero initial energy, got %g", e)
	}
	eng.IterateTimesteps(50)
	if e := ei.CalcFastEnergy(); e <= 0 {
		t.Errorf("expected positive energy after excitation, got %g", e)
	}
}

// All engine variants must produce identical fields for the same
// operator configuration.
func TestKernelsAgree(t *testing.T) {
	ref := NewOperator()
	refEng := buildEngine(t, ref)
	refEng.IterateTimesteps(40)

	variants := map[string]*Operator{
		"vector":            NewOperatorVector(),
		"vector-compressed": NewOperatorVectorCompressed(),
		"multithreaded":     NewOperatorMultithread(3),
	}

	for name, op := range variants {
		t.Run(name, func(t *testing.T) {
			eng := buildEngine(t, op)
			eng.IterateTimesteps(40)

			for n := 0; n < 3; n++ {
				for idx := range refEng.volt[n] {
					if d := math.Abs(eng.volt[n][idx] - refEng.volt[n][idx]); d > 1e-15 {
						t.Fatalf("voltage %d/%d differs from reference by %g", n, idx, d)
					}
					if d := math.Abs(eng.curr[n][idx] - refEng.curr[n][idx]); d > 1e-15 {
						t.Fatalf("current %d/%d differs from reference by %g", n, idx, d)
					}
				}
			}
		})
	}
}

func TestCompressedKernelRatio(t *testing.T) {
	op := NewOperatorVectorCompressed()
	buildEngine(t, op)

	k := newCompressedKernel(op)
	// a vacuum grid has very few distinct coefficient rows
	if r := k.CompressionRatio(); r >= 0.5 {
		t.Errorf("expected strong compression on vacuum grid, got ratio %g", r)
	}
}

func TestThreadedKernelWorkers(t *testing.T) {
	op := NewOperatorMultithread(3)
	buildEngine(t, op)

	k := newThreadedKernel(op, 3)
	if k.Workers() != 3 {
		t.Errorf("expected 3 workers, got %d", k.Workers())
	}

	// more workers than x-lines collapses to the line count
	k = newThreadedKernel(op, 100)
	if k.Workers() != op.NumLines(0) {
		t.Errorf("expected workers capped at %d, got %d", op.NumLines(0), k.Workers())
	}
}

func TestEngineInterfaceFields(t *testing.T) {
	op := NewOperator()
	eng := buildEngine(t, op)
	eng.IterateTimesteps(30)
	ei := NewEngineInterface(op, eng)

	pos := [3]int{4, 4, 4}
	f := ei.EField(pos)
	// E = V/d with d = 1mm
	for n := 0; n < 3; n++ {
		want := ei.Voltage(n, pos) / 1e-3
		if math.Abs(f[n]-want) > math.Abs(want)*1e-12 {
			t.Errorf("component %d: expected %g, got %g", n, want, f[n])
		}
	}

	if ei.NumberOfTimesteps() != 30 {
		t.Errorf("expected 30 timesteps, got %d", ei.NumberOfTimesteps())
	}
	wantTime := 30 * op.Timestep()
	if math.Abs(ei.Time()-wantTime) > 1e-20 {
		t.Errorf("expected time %g, got %g", wantTime, ei.Time())
	}
}

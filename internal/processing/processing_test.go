package processing

import (
	"os"
	"strings"
	"testing"

	"github.com/tmolteno/openEMS/internal/config"
	"github.com/tmolteno/openEMS/internal/fdtd"
	"github.com/tmolteno/openEMS/internal/geometry"
)

func testEngine(t *testing.T) (*fdtd.Operator, *fdtd.Engine) {
	t.Helper()
	lines := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	op := fdtd.NewOperator()
	err := op.SetGeometry(&geometry.Document{
		CoordSystem: geometry.Cartesian,
		DeltaUnit:   1e-3,
		Mesh:        &geometry.Mesh{XLines: lines, YLines: lines, ZLines: lines},
	})
	if err != nil {
		t.Fatalf("set geometry failed: %v", err)
	}
	if err := op.CalcECOperator(fdtd.DebugNone); err != nil {
		t.Fatalf("calc operator failed: %v", err)
	}
	exc := &config.Excitation{
		Type: "gauss",
		F0:   1e9,
		FC:   1e9,
		Sources: []config.Source{
			{Position: [3]int{3, 3, 3}, Direction: 2},
		},
	}
	if err := op.SetupExcitation(exc, 1000); err != nil {
		t.Fatalf("excitation setup failed: %v", err)
	}
	eng, err := op.CreateEngine()
	if err != nil {
		t.Fatalf("create engine failed: %v", err)
	}
	return op, eng
}

func TestCheckTimestep(t *testing.T) {
	op, eng := testEngine(t)

	var b Base
	b.SetEngineInterface(fdtd.NewEngineInterface(op, eng))
	b.SetProcessInterval(2)

	if !b.CheckTimestep() {
		t.Error("expected trigger at timestep 0")
	}
	eng.IterateTimesteps(1)
	if b.CheckTimestep() {
		t.Error("expected no trigger at timestep 1")
	}
	eng.IterateTimesteps(1)
	if !b.CheckTimestep() {
		t.Error("expected trigger at timestep 2")
	}
}

func TestCheckTimestep_ExplicitStep(t *testing.T) {
	op, eng := testEngine(t)

	var b Base
	b.SetEngineInterface(fdtd.NewEngineInterface(op, eng))
	b.AddStep(3)

	eng.IterateTimesteps(3)
	if !b.CheckTimestep() {
		t.Error("expected trigger at explicit step 3")
	}
	if got := b.StepsTillTrigger(); got != -1 {
		t.Errorf("expected -1 after last step, got %d", got)
	}
}

func TestStepsTillTrigger(t *testing.T) {
	op, eng := testEngine(t)

	var b Base
	b.SetEngineInterface(fdtd.NewEngineInterface(op, eng))
	b.SetProcessInterval(4)
	b.AddStep(2)

	// at ts 0 the explicit step at 2 is nearer than the interval at 4
	if got := b.StepsTillTrigger(); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	eng.IterateTimesteps(3)
	if got := b.StepsTillTrigger(); got != 1 {
		t.Errorf("expected 1 (interval at 4), got %d", got)
	}
}

func TestAddStepDeduplicates(t *testing.T) {
	var b Base
	b.AddStep(5)
	b.AddStep(2)
	b.AddStep(5)

	if len(b.steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(b.steps))
	}
	if b.steps[0] != 2 || b.steps[1] != 5 {
		t.Errorf("expected sorted steps [2 5], got %v", b.steps)
	}
}

type fakeProc struct {
	Base
	next    int
	called  int
	flushed int
}

func (f *fakeProc) InitProcess() error { return nil }
func (f *fakeProc) Process() int       { f.called++; return f.next }
func (f *fakeProc) FlushData() error   { f.flushed++; return nil }

func TestArrayProcess(t *testing.T) {
	a := NewArray(8)
	p1 := &fakeProc{next: 5}
	p2 := &fakeProc{next: 2}
	p3 := &fakeProc{next: -1}
	a.AddProcessing(p1)
	a.AddProcessing(p2)
	a.AddProcessing(p3)

	if got := a.Process(); got != 2 {
		t.Errorf("expected minimum 2, got %d", got)
	}
	if p1.called != 1 || p2.called != 1 || p3.called != 1 {
		t.Error("expected every processor invoked once")
	}
}

func TestArrayProcess_NoneScheduled(t *testing.T) {
	a := NewArray(8)
	a.AddProcessing(&fakeProc{next: -1})
	if got := a.Process(); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestArrayFlush(t *testing.T) {
	a := NewArray(8)
	p1 := &fakeProc{}
	p2 := &fakeProc{}
	a.AddProcessing(p1)
	a.AddProcessing(p2)

	a.FlushNext()
	a.FlushNext()
	a.FlushNext()
	if p1.flushed != 2 || p2.flushed != 1 {
		t.Errorf("expected round-robin flushes 2/1, got %d/%d", p1.flushed, p2.flushed)
	}

	a.FlushAll()
	if p1.flushed != 3 || p2.flushed != 2 {
		t.Errorf("expected flush-all to hit both, got %d/%d", p1.flushed, p2.flushed)
	}
}

func TestVoltageProbe(t *testing.T) {
	t.Chdir(t.TempDir())
	op, eng := testEngine(t)

	v := NewVoltage()
	v.SetName("ut1")
	v.SetEngineInterface(fdtd.NewEngineInterface(op, eng))
	v.SetProcessInterval(2)
	v.DefineStartStopCoord([3]float64{3, 3, 0}, [3]float64{3, 3, 7})
	if err := v.InitProcess(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		v.Process()
		eng.IterateTimesteps(1)
	}
	// due at ts 0,2,4,6,8
	if len(v.samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(v.samples))
	}

	nonzero := false
	for _, s := range v.samples {
		if s.value != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		t.Error("expected a nonzero voltage along the excited line")
	}

	if err := v.FlushData(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	data, err := os.ReadFile("ut1_v.csv")
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 6 {
		t.Errorf("expected header plus 5 rows, got %d lines", len(lines))
	}

	// a second flush with no new samples must not grow the file
	if err := v.FlushData(); err != nil {
		t.Fatalf("second flush failed: %v", err)
	}
	again, _ := os.ReadFile("ut1_v.csv")
	if len(again) != len(data) {
		t.Error("expected idempotent flush")
	}
}

func TestFieldsEnergyTracker(t *testing.T) {
	op, eng := testEngine(t)

	f := NewFields()
	f.SetEngineInterface(fdtd.NewEngineInterface(op, eng))

	if e := f.CalcTotalEnergy(); e != 0 {
		t.Errorf("expected zero initial energy, got %g", e)
	}
	eng.IterateTimesteps(30)
	if e := f.CalcTotalEnergy(); e <= 0 {
		t.Errorf("expected positive energy, got %g", e)
	}
}

func TestDumpDisabledStillCounts(t *testing.T) {
	t.Chdir(t.TempDir())
	op, eng := testEngine(t)

	d := NewFieldsTD()
	d.SetEnable(false)
	d.SetFilePattern("et")
	d.SetEngineInterface(fdtd.NewEngineInterface(op, eng))
	d.SetProcessInterval(1)
	d.DefineStartStopCoord([3]float64{2, 2, 2}, [3]float64{4, 4, 4})
	if err := d.InitProcess(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		d.Process()
		eng.IterateTimesteps(1)
	}
	if d.Snapshots() != 3 {
		t.Errorf("expected 3 counted snapshots, got %d", d.Snapshots())
	}

	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no files from disabled dump, got %d", len(entries))
	}
}

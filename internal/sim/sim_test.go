package sim

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/tmolteno/openEMS/internal/config"
	"github.com/tmolteno/openEMS/internal/fdtd"
	"github.com/tmolteno/openEMS/internal/geometry"
)

func uniformLines(n int) []float64 {
	lines := make([]float64, n)
	for i := range lines {
		lines[i] = float64(i)
	}
	return lines
}

func testDocument(numTS uint) *config.Document {
	lines := uniformLines(8)
	return &config.Document{
		FDTD: &config.FDTD{
			NumberOfTimesteps: numTS,
			EndCriteria:       config.DefaultEndCriteria,
			OverSampling:      config.DefaultOverSampling,
			BoundaryCond:      &config.BoundaryCond{},
			Excitation: &config.Excitation{
				Type: "gauss",
				F0:   1e9,
				FC:   1e9,
				Sources: []config.Source{
					{Position: [3]int{3, 3, 3}, Direction: 2},
				},
			},
		},
		Geometry: &geometry.Document{
			CoordSystem: geometry.Cartesian,
			DeltaUnit:   1e-3,
			Mesh:        &geometry.Mesh{XLines: lines, YLines: lines, ZLines: lines},
		},
	}
}

func quietSimulation() (*Simulation, *bytes.Buffer) {
	s := New()
	var out bytes.Buffer
	errOut := &bytes.Buffer{}
	s.SetOutput(&out, errOut)
	s.SetAbortCheck(nil)
	return s, errOut
}

func numFace(n int) config.FaceValue    { return config.FaceValue{Num: n, IsNum: true, Set: true} }
func strFace(v string) config.FaceValue { return config.FaceValue{Str: v, Set: true} }

func TestResolveFace(t *testing.T) {
	tests := []struct {
		name     string
		face     config.FaceValue
		want     fdtd.BoundaryType
		wantSize int
		warn     bool
	}{
		{"numeric pec", numFace(0), fdtd.BCPec, 0, false},
		{"numeric pmc", numFace(1), fdtd.BCPmc, 0, false},
		{"numeric mur", numFace(2), fdtd.BCMur, 0, false},
		{"numeric pml", numFace(3), fdtd.BCPml, fdtd.DefaultPMLSize, false},
		{"numeric unknown", numFace(9), fdtd.BCPec, 0, true},
		{"string pec", strFace("PEC"), fdtd.BCPec, 0, false},
		{"string pmc", strFace("PMC"), fdtd.BCPmc, 0, false},
		{"string mur", strFace("MUR"), fdtd.BCMur, 0, false},
		{"pml with thickness", strFace("PML_8"), fdtd.BCPml, 8, false},
		{"pml equals spelling", strFace("PML_=12"), fdtd.BCPml, 12, false},
		{"pml malformed", strFace("PML_x"), fdtd.BCPec, 0, true},
		{"unknown string", strFace("ABSORB"), fdtd.BCPec, 0, true},
		{"unset", config.FaceValue{}, fdtd.BCPec, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, errOut := quietSimulation()
			got, size := s.resolveFace("xmin", tt.face)
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if size != tt.wantSize {
				t.Errorf("expected pml size %d, got %d", tt.wantSize, size)
			}
			warned := strings.Contains(errOut.String(), "set to PEC")
			if warned != tt.warn {
				t.Errorf("warning mismatch: got %q", errOut.String())
			}
		})
	}
}

func TestParsePMLThickness(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"PML_8", 8, true},
		{"PML_=12", 12, true},
		{"PML_0", 0, true},
		{"PML_", 0, false},
		{"PML_abc", 0, false},
		{"PML_-3", 0, false},
		{"MUR", 0, false},
	}
	for _, tt := range tests {
		got, ok := parsePMLThickness(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%q: expected (%d, %v), got (%d, %v)", tt.in, tt.want, tt.ok, got, ok)
		}
	}
}

func TestSetup(t *testing.T) {
	s, _ := quietSimulation()
	status, err := s.Setup(testDocument(100))
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if status != StatusOK {
		t.Errorf("expected StatusOK, got %v", status)
	}
	if s.Operator() == nil || s.Engine() == nil {
		t.Error("expected operator and engine")
	}
}

func TestSetup_PreprocessOnly(t *testing.T) {
	s, _ := quietSimulation()
	s.SetNoSimulation(true)

	status, err := s.Setup(testDocument(100))
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if status != StatusPreprocessOnly {
		t.Errorf("expected StatusPreprocessOnly, got %v", status)
	}
	if s.Engine() != nil {
		t.Error("expected no engine in preprocessing mode")
	}
}

func TestSetup_NoGeometry(t *testing.T) {
	s, _ := quietSimulation()
	doc := testDocument(100)
	doc.Geometry = nil

	_, err := s.Setup(doc)
	if !errors.Is(err, ErrGeometryBind) {
		t.Errorf("expected ErrGeometryBind, got %v", err)
	}
}

func TestSetup_NoExcitation(t *testing.T) {
	s, _ := quietSimulation()
	doc := testDocument(100)
	doc.FDTD.Excitation = nil

	_, err := s.Setup(doc)
	if !errors.Is(err, ErrExcitationSetup) {
		t.Errorf("expected ErrExcitationSetup, got %v", err)
	}
}

func TestSetup_MaxTimeCapsTimesteps(t *testing.T) {
	s, _ := quietSimulation()
	doc := testDocument(1000)
	doc.FDTD.Timestep = 1e-12
	doc.FDTD.MaxTime = 1.05e-11

	if _, err := s.Setup(doc); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if s.Timesteps() != 10 {
		t.Errorf("expected cap at 10 timesteps, got %d", s.Timesteps())
	}
}

func TestSetup_MaxTimeLargerThanBudget(t *testing.T) {
	s, _ := quietSimulation()
	doc := testDocument(100)
	doc.FDTD.Timestep = 1e-12
	doc.FDTD.MaxTime = 1 // far beyond the budget, no cap

	if _, err := s.Setup(doc); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if s.Timesteps() != 100 {
		t.Errorf("expected 100 timesteps, got %d", s.Timesteps())
	}
}

func TestSetup_BoundaryComposition(t *testing.T) {
	s, _ := quietSimulation()
	doc := testDocument(100)
	v := 2e8
	doc.FDTD.BoundaryCond = &config.BoundaryCond{
		XMin:                 strFace("MUR"),
		XMax:                 strFace("PML_6"),
		MurPhaseVelocity:     1.5e8,
		MurPhaseVelocityXMin: &v,
	}

	if _, err := s.Setup(doc); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	bc := s.Operator().BoundaryConditions()
	if bc[0] != fdtd.BCMur || bc[1] != fdtd.BCPml {
		t.Errorf("expected MUR/PML on x faces, got %v/%v", bc[0], bc[1])
	}

	var mur *fdtd.MurABC
	foundPML := false
	for _, ext := range s.Operator().Extensions() {
		switch e := ext.(type) {
		case *fdtd.MurABC:
			mur = e
		case *fdtd.UPML:
			foundPML = true
		}
	}
	if mur == nil {
		t.Fatal("expected a mur extension")
	}
	if mur.PhaseVelocity() != v {
		t.Errorf("expected per-face phase velocity %g, got %g", v, mur.PhaseVelocity())
	}
	if !foundPML {
		t.Error("expected a upml extension")
	}
}

func TestRun_BudgetExhausted(t *testing.T) {
	s, _ := quietSimulation()
	if _, err := s.Setup(testDocument(50)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Reason != ReasonBudgetExhausted {
		t.Errorf("expected budget exhaustion, got %v", result.Reason)
	}
	if result.Timesteps != 50 {
		t.Errorf("expected exactly 50 timesteps, got %d", result.Timesteps)
	}
	if result.MaxEnergy <= 0 {
		t.Errorf("expected positive max energy, got %g", result.MaxEnergy)
	}
}

func TestRun_Aborted(t *testing.T) {
	s, _ := quietSimulation()
	if _, err := s.Setup(testDocument(1000)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	s.SetAbortCheck(func() bool { return true })

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Reason != ReasonAborted {
		t.Errorf("expected abort, got %v", result.Reason)
	}
	if result.Timesteps != 0 {
		t.Errorf("expected abort before the first burst, got %d timesteps", result.Timesteps)
	}
}

func TestRun_AbortFileDiagnosticFollowsSetOutput(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("ABORT", nil, 0o644); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}

	s := New()
	var out, errOut bytes.Buffer
	s.SetOutput(&out, &errOut)
	if _, err := s.Setup(testDocument(1000)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Reason != ReasonAborted {
		t.Errorf("expected abort on sentinel file, got %v", result.Reason)
	}
	if !strings.Contains(errOut.String(), "aborting simulation") {
		t.Errorf("expected abort diagnostic on the configured writer, got %q", errOut.String())
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	s, _ := quietSimulation()
	if _, err := s.Setup(testDocument(1000)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Reason != ReasonAborted {
		t.Errorf("expected abort on cancelled context, got %v", result.Reason)
	}
}

func TestRun_WithoutSetup(t *testing.T) {
	s, _ := quietSimulation()
	if _, err := s.Run(context.Background()); err == nil {
		t.Error("expected error without setup")
	}
}

func TestStopReasonString(t *testing.T) {
	tests := []struct {
		r    StopReason
		want string
	}{
		{ReasonConverged, "energy criterion reached"},
		{ReasonBudgetExhausted, "timestep budget exhausted"},
		{ReasonAborted, "aborted"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	return path
}

const minimalDoc = `
openems:
  fdtd:
    number_of_timesteps: 1000
    boundary_cond:
      xmin: PEC
      xmax: PEC
      ymin: PEC
      ymax: PEC
      zmin: PEC
      zmax: PEC
`

func TestLoad(t *testing.T) {
	doc, err := Load(writeDoc(t, minimalDoc))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if doc.FDTD.NumberOfTimesteps != 1000 {
		t.Errorf("expected 1000 timesteps, got %d", doc.FDTD.NumberOfTimesteps)
	}
	if doc.FDTD.EndCriteria != DefaultEndCriteria {
		t.Errorf("expected default end criteria %g, got %g", DefaultEndCriteria, doc.FDTD.EndCriteria)
	}
	if doc.FDTD.OverSampling != DefaultOverSampling {
		t.Errorf("expected default oversampling %d, got %d", DefaultOverSampling, doc.FDTD.OverSampling)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrReadFailed) {
		t.Errorf("expected ErrReadFailed, got %v", err)
	}
}

func TestLoad_MissingBlocks(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"no top level", "something_else: {}", ErrMissingTopLevel},
		{"no fdtd", "openems:\n  geometry: {}", ErrMissingFDTD},
		{"no boundary", "openems:\n  fdtd:\n    number_of_timesteps: 10", ErrMissingBoundary},
		{"garbage", "{{not yaml", ErrReadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeDoc(t, tt.doc))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOverSamplingClamp(t *testing.T) {
	doc, err := Load(writeDoc(t, `
openems:
  fdtd:
    number_of_timesteps: 10
    over_sampling: 1
    boundary_cond:
      xmin: 0
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if doc.FDTD.OverSampling != MinOverSampling {
		t.Errorf("expected oversampling clamped to %d, got %d", MinOverSampling, doc.FDTD.OverSampling)
	}
}

func TestFaceValue(t *testing.T) {
	doc, err := Load(writeDoc(t, `
openems:
  fdtd:
    number_of_timesteps: 10
    boundary_cond:
      xmin: 3
      xmax: PML_8
      ymin: MUR
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	bc := doc.FDTD.BoundaryCond

	if !bc.XMin.Set || !bc.XMin.IsNum || bc.XMin.Num != 3 {
		t.Errorf("xmin: expected numeric 3, got %+v", bc.XMin)
	}
	if !bc.XMax.Set || bc.XMax.IsNum || bc.XMax.Str != "PML_8" {
		t.Errorf("xmax: expected string PML_8, got %+v", bc.XMax)
	}
	if !bc.YMin.Set || bc.YMin.Str != "MUR" {
		t.Errorf("ymin: expected string MUR, got %+v", bc.YMin)
	}
	if bc.YMax.Set {
		t.Errorf("ymax: expected unset, got %+v", bc.YMax)
	}
}

func TestFaceMurPhaseVelocity(t *testing.T) {
	doc, err := Load(writeDoc(t, `
openems:
  fdtd:
    number_of_timesteps: 10
    boundary_cond:
      xmin: MUR
      mur_phase_velocity: 1.5e8
      mur_phase_velocity_xmin: 2.0e8
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	bc := doc.FDTD.BoundaryCond

	if v := bc.FaceMurPhaseVelocity(0); v == nil || *v != 2.0e8 {
		t.Errorf("expected xmin override 2.0e8, got %v", v)
	}
	if v := bc.FaceMurPhaseVelocity(1); v != nil {
		t.Errorf("expected no xmax override, got %v", *v)
	}
	if bc.MurPhaseVelocity != 1.5e8 {
		t.Errorf("expected global velocity 1.5e8, got %g", bc.MurPhaseVelocity)
	}
}

func TestMultiGridRadii(t *testing.T) {
	tests := []struct {
		in      string
		want    []float64
		wantErr bool
	}{
		{"", nil, false},
		{"5.0", []float64{5.0}, false},
		{"5.0, 20.0", []float64{5.0, 20.0}, false},
		{"5.0,abc", nil, true},
	}

	for _, tt := range tests {
		f := &FDTD{MultiGrid: tt.in}
		radii, err := f.MultiGridRadii()
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.in, err)
			continue
		}
		if len(radii) != len(tt.want) {
			t.Errorf("%q: expected %d radii, got %d", tt.in, len(tt.want), len(radii))
			continue
		}
		for i := range radii {
			if radii[i] != tt.want[i] {
				t.Errorf("%q: radius %d: expected %g, got %g", tt.in, i, tt.want[i], radii[i])
			}
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("OPENEMS_DATA_DIR", "/tmp/runs")
	t.Setenv("OPENEMS_NUM_THREADS", "4")

	e, err := FromEnv()
	if err != nil {
		t.Fatalf("env parse failed: %v", err)
	}
	if e.DataDir != "/tmp/runs" {
		t.Errorf("expected data dir /tmp/runs, got %s", e.DataDir)
	}
	if e.NumThreads != 4 {
		t.Errorf("expected 4 threads, got %d", e.NumThreads)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("OPENEMS_DATA_DIR", "")
	os.Unsetenv("OPENEMS_DATA_DIR")

	e, err := FromEnv()
	if err != nil {
		t.Fatalf("env parse failed: %v", err)
	}
	if e.DataDir != ".openems" {
		t.Errorf("expected default data dir .openems, got %s", e.DataDir)
	}
}

package storage

import (
	"testing"
)

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	history := []EnergySample{
		{Timestep: 100, Energy: 1.5e-6, DecayDB: 10.2},
		{Timestep: 200, Energy: 1.5e-8, DecayDB: 30.5},
	}
	runID, err := st.Save(RunMetadata{
		ConfigFile:  "msl.yaml",
		Operator:    "standard",
		Timesteps:   200,
		Cells:       4096,
		StopReason:  "energy criterion reached",
		FinalEnergy: 1.5e-8,
		MaxEnergy:   1.5e-6,
	}, history)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.ID != runID {
		t.Errorf("expected id %q, got %q", runID, meta.ID)
	}
	if meta.Operator != "standard" {
		t.Errorf("expected operator standard, got %q", meta.Operator)
	}
	if meta.Timesteps != 200 {
		t.Errorf("expected 200 timesteps, got %d", meta.Timesteps)
	}

	loaded, err := st.LoadEnergy(runID)
	if err != nil {
		t.Fatalf("load energy failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(loaded))
	}
	if loaded[1].Timestep != 200 {
		t.Errorf("expected timestep 200, got %d", loaded[1].Timestep)
	}
	if loaded[1].DecayDB != 30.5 {
		t.Errorf("expected decay 30.5, got %g", loaded[1].DecayDB)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}

	if _, err := st.Save(RunMetadata{Operator: "standard"}, nil); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}
}

func TestStoreList_MissingDir(t *testing.T) {
	st := New(t.TempDir() + "/nonexistent")
	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestStoreLoad_Missing(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("run_0"); err == nil {
		t.Error("expected error for missing run")
	}
}

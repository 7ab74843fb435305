package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Store persists finished runs under a base directory, one sub-directory
// per run with metadata.json and the energy decay trace.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ConfigFile  string    `json:"config_file"`
	Operator    string    `json:"operator"`
	Timesteps   uint      `json:"timesteps"`
	Cells       uint64    `json:"cells"`
	ElapsedSec  float64   `json:"elapsed_sec"`
	SpeedMCells float64   `json:"speed_mcells"`
	StopReason  string    `json:"stop_reason"`
	FinalEnergy float64   `json:"final_energy"`
	MaxEnergy   float64   `json:"max_energy"`
}

// EnergySample is one point of the convergence trace.
type EnergySample struct {
	Timestep uint
	Energy   float64
	DecayDB  float64
}

// Save writes a finished run and returns its id.
func (s *Store) Save(meta RunMetadata, history []EnergySample) (string, error) {
	runID := fmt.Sprintf("run_%d", time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	meta.ID = runID
	meta.Timestamp = time.Now()

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "energy.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	w := csv.NewWriter(csvFile)
	defer w.Flush()
	if err := w.Write([]string{"timestep", "energy", "decay_db"}); err != nil {
		return "", err
	}
	for _, h := range history {
		row := []string{
			strconv.FormatUint(uint64(h.Timestep), 10),
			strconv.FormatFloat(h.Energy, 'e', 9, 64),
			strconv.FormatFloat(h.DecayDB, 'f', 3, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadEnergy reads the convergence trace of a run.
func (s *Store) LoadEnergy(runID string) ([]EnergySample, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "energy.csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var history []EnergySample
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			continue
		}
		ts, err := strconv.ParseUint(row[0], 10, 64)
		if err != nil {
			continue
		}
		energy, _ := strconv.ParseFloat(row[1], 64)
		decay, _ := strconv.ParseFloat(row[2], 64)
		history = append(history, EnergySample{Timestep: uint(ts), Energy: energy, DecayDB: decay})
	}
	return history, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}
	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/veghal/heatgrid/internal/config"
	"github.com/veghal/heatgrid/internal/sim"
)

// Store keeps completed runs under a data directory, one subdirectory per
// run holding metadata.json and the reduced-energy trace as energy.csv.
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
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Nx        int                `json:"nx"`
	Ny        int                `json:"ny"`
	Ni        int                `json:"ni"`
	Ranks     int                `json:"ranks"`
	Transport string             `json:"transport"`
	Dx        float64            `json:"dx"`
	Dt        float64            `json:"dt"`
	Gamma     float64            `json:"gamma"`
	Metrics   map[string]float64 `json:"metrics"`
}

func (s *Store) Save(b *config.Base, cfg *config.Config, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("heat_%d", time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Timestamp: time.Now(),
		Nx:        b.Nx,
		Ny:        b.Ny,
		Ni:        b.Ni,
		Ranks:     b.Ranks,
		Transport: b.Transport,
		Dx:        cfg.Dx,
		Dt:        cfg.Dt,
		Gamma:     cfg.DiffusionNumber(),
		Metrics:   result.Metrics,
	}

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

	if err := w.Write([]string{"iter", "time", "energy"}); err != nil {
		return "", err
	}
	for i := range result.Iters {
		row := []string{
			strconv.Itoa(result.Iters[i]),
			strconv.FormatFloat(result.Times[i], 'g', -1, 64),
			strconv.FormatFloat(result.Energy[i], 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return runID, nil
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
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	return runs, nil
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

// LoadTrace reads back a run's reduced-energy trace.
func (s *Store) LoadTrace(runID string) (times, energy []float64, err error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "energy.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}

	for i := 1; i < len(records); i++ {
		if len(records[i]) < 3 {
			continue
		}
		t, err := strconv.ParseFloat(records[i][1], 64)
		if err != nil {
			return nil, nil, err
		}
		e, err := strconv.ParseFloat(records[i][2], 64)
		if err != nil {
			return nil, nil, err
		}
		times = append(times, t)
		energy = append(energy, e)
	}
	return times, energy, nil
}

package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/sim"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunInfo carries the configuration half of a run's metadata; the result
// half is filled in by Save.
type RunInfo struct {
	Model     string
	Precision string
	Source    string
	Order     int
	Dt        float64
	Duration  float64
	Vars      []string
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Model       string             `json:"model"`
	Timestamp   time.Time          `json:"timestamp"`
	Precision   string             `json:"precision"`
	Source      string             `json:"source"`
	Order       int                `json:"order,omitempty"`
	Dt          float64            `json:"dt"`
	Duration    float64            `json:"duration"`
	Vars        []string           `json:"vars,omitempty"`
	Steps       int                `json:"steps"`
	EventCount  int                `json:"event_count"`
	Halted      bool               `json:"halted"`
	HaltEvent   string             `json:"halt_event,omitempty"`
	HaltTime    float64            `json:"halt_time,omitempty"`
	EnergyDrift float64            `json:"energy_drift,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

type EventRecord struct {
	Time      float64
	Name      string
	Direction string
	Value     float64
	Ambiguous bool
}

func (s *Store) Save(info RunInfo, res *sim.Result) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	runID := info.Model + "-" + id.String()
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Model:       info.Model,
		Timestamp:   time.Now().UTC(),
		Precision:   info.Precision,
		Source:      info.Source,
		Order:       info.Order,
		Dt:          info.Dt,
		Duration:    info.Duration,
		Vars:        info.Vars,
		Steps:       res.StepsTaken,
		EventCount:  len(res.Events),
		Halted:      res.Halted(),
		EnergyDrift: res.EnergyDrift,
		Metrics:     res.Metrics,
	}
	if res.Halt != nil {
		meta.HaltEvent = res.Halt.Name
		meta.HaltTime = res.Halt.Time
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

	statesFile, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return "", err
	}
	defer statesFile.Close()
	if err := writeStates(statesFile, info.Vars, res); err != nil {
		return "", err
	}

	eventsFile, err := os.Create(filepath.Join(runDir, "events.csv"))
	if err != nil {
		return "", err
	}
	defer eventsFile.Close()
	if err := writeEvents(eventsFile, res.Events); err != nil {
		return "", err
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

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
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

func (s *Store) LoadStates(runID string) ([][]float64, []float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}

	if len(records) < 2 {
		return [][]float64{}, []float64{}, nil
	}

	times := make([]float64, 0, len(records)-1)
	states := make([][]float64, 0, len(records)-1)

	for _, record := range records[1:] {
		if len(record) < 2 {
			continue
		}

		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}

		state := make([]float64, 0, len(record)-1)
		for _, field := range record[1:] {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				continue
			}
			state = append(state, val)
		}

		times = append(times, t)
		states = append(states, state)
	}

	return states, times, nil
}

func (s *Store) LoadEvents(runID string) ([]EventRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "events.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	out := make([]EventRecord, 0)
	for i, record := range records {
		if i == 0 || len(record) < 5 {
			continue
		}

		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		val, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			continue
		}
		amb, err := strconv.ParseBool(record[4])
		if err != nil {
			continue
		}

		out = append(out, EventRecord{
			Time:      t,
			Name:      record[1],
			Direction: record[2],
			Value:     val,
			Ambiguous: amb,
		})
	}

	return out, nil
}

// Floats are written in shortest round-trip form so loading restores the
// exact values.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeStates(w io.Writer, vars []string, res *sim.Result) error {
	cw := csv.NewWriter(w)

	dim := 0
	if len(res.States) > 0 {
		dim = len(res.States[0])
	}
	if len(vars) != dim {
		vars = make([]string, dim)
		for i := range vars {
			vars[i] = fmt.Sprintf("x%d", i)
		}
	}

	header := append([]string{"time"}, vars...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, x := range res.States {
		row := make([]string, 0, 1+len(x))
		row = append(row, formatFloat(res.Times[i]))
		for _, v := range x {
			row = append(row, formatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func writeEvents(w io.Writer, firings []events.Firing) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"time", "event", "direction", "value", "ambiguous"}); err != nil {
		return err
	}
	for _, f := range firings {
		row := []string{
			formatFloat(f.Time),
			f.Name,
			f.Direction.String(),
			formatFloat(f.Value),
			strconv.FormatBool(f.Ambiguous),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

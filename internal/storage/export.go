package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/taysim/internal/sim"
)

type ExportEvent struct {
	Time      float64 `json:"time"`
	Name      string  `json:"name"`
	Direction string  `json:"direction"`
	Value     float64 `json:"value"`
	Ambiguous bool    `json:"ambiguous,omitempty"`
}

type ExportData struct {
	Model     string             `json:"model"`
	Precision string             `json:"precision"`
	Source    string             `json:"source"`
	Order     int                `json:"order,omitempty"`
	Dt        float64            `json:"dt"`
	Duration  float64            `json:"duration"`
	Steps     int                `json:"steps"`
	Vars      []string           `json:"vars,omitempty"`
	Times     []float64          `json:"times"`
	States    [][]float64        `json:"states"`
	Events    []ExportEvent      `json:"events"`
	Halted    bool               `json:"halted"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

func ExportJSON(w io.Writer, info RunInfo, res *sim.Result) error {
	data := ExportData{
		Model:     info.Model,
		Precision: info.Precision,
		Source:    info.Source,
		Order:     info.Order,
		Dt:        info.Dt,
		Duration:  info.Duration,
		Steps:     res.StepsTaken,
		Vars:      info.Vars,
		Times:     res.Times,
		States:    make([][]float64, len(res.States)),
		Events:    make([]ExportEvent, 0, len(res.Events)),
		Halted:    res.Halted(),
		Metrics:   res.Metrics,
	}

	for i, s := range res.States {
		data.States[i] = s
	}
	for _, f := range res.Events {
		data.Events = append(data.Events, ExportEvent{
			Time:      f.Time,
			Name:      f.Name,
			Direction: f.Direction.String(),
			Value:     f.Value,
			Ambiguous: f.Ambiguous,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func ExportStatesCSV(w io.Writer, vars []string, res *sim.Result) error {
	return writeStates(w, vars, res)
}

func ExportEventsCSV(w io.Writer, res *sim.Result) error {
	return writeEvents(w, res.Events)
}

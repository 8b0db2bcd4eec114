package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/blocksim/internal/sweep"
)

type ExportData struct {
	RunMetadata
	Times   []float64   `json:"times"`
	Samples [][]float64 `json:"samples"`
}

// ExportJSON writes a run with its samples as one indented JSON document.
func ExportJSON(w io.Writer, meta RunMetadata, result *sweep.Result) error {
	data := ExportData{
		RunMetadata: meta,
		Times:       result.Times,
		Samples:     make([][]float64, len(result.Samples)),
	}
	for i, s := range result.Samples {
		data.Samples[i] = s
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

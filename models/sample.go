package models

import (
	"errors"
	"math"
	"time"
)

var ErrNonFiniteValue = errors.New("sample value must be finite")

// Sample is a single observation produced by a stream source.
type Sample struct {
	Index     uint64    `json:"index"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func (s Sample) Validate() error {
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return ErrNonFiniteValue
	}
	return nil
}

// Snapshot summarises the rolling window at a point in time.
type Snapshot struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int     `json:"count"`
}

// ClassificationRecord is emitted once per processed sample. Mean, StdDev and
// WindowCount describe the window before the sample was added to it.
type ClassificationRecord struct {
	Stream      string  `json:"stream"`
	Sample      Sample  `json:"sample"`
	Mean        float64 `json:"mean_at_eval"`
	StdDev      float64 `json:"stddev_at_eval"`
	ZScore      float64 `json:"z_score"`
	IsAnomaly   bool    `json:"is_anomaly"`
	WindowCount int     `json:"window_count"`
}

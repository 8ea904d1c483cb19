package analytics

import (
	"math"

	"github.com/pkg/errors"

	"stream-anomaly-detector/models"
)

// AnomalyClassifier scores each sample against the window as it stood before
// the sample arrived, then folds the sample into the window. Anomalies stay
// in the window, so a sustained shift eventually becomes the new baseline.
//
// Calls to Process must be serialised by the caller.
type AnomalyClassifier struct {
	stream     string
	window     *RollingStatistics
	threshold  float64
	minHistory int
}

func NewAnomalyClassifier(cfg models.DetectorConfig) (*AnomalyClassifier, error) {
	return NewStreamClassifier("", cfg)
}

// NewStreamClassifier builds a classifier whose records are tagged with stream.
func NewStreamClassifier(stream string, cfg models.DetectorConfig) (*AnomalyClassifier, error) {
	if cfg.Threshold <= 0 || math.IsNaN(cfg.Threshold) || math.IsInf(cfg.Threshold, 0) {
		return nil, errors.Wrapf(ErrInvalidThreshold, "threshold %v", cfg.Threshold)
	}
	window, err := NewRollingStatistics(cfg.WindowSize)
	if err != nil {
		return nil, errors.Wrapf(err, "window size %d", cfg.WindowSize)
	}

	minHistory := cfg.MinHistory
	if minHistory == 0 {
		minHistory = models.DefaultMinHistory
	}
	// A window of one can never be scored; the default still applies to it.
	if minHistory < 2 || (minHistory > cfg.WindowSize && minHistory > models.DefaultMinHistory) {
		return nil, errors.Wrapf(ErrInvalidMinHistory, "min history %d", cfg.MinHistory)
	}

	return &AnomalyClassifier{
		stream:     stream,
		window:     window,
		threshold:  cfg.Threshold,
		minHistory: minHistory,
	}, nil
}

// Process classifies sample and advances the window. A non-finite value is
// rejected with ErrNonFiniteValue and leaves the window untouched.
func (ac *AnomalyClassifier) Process(sample models.Sample) (models.ClassificationRecord, error) {
	if err := sample.Validate(); err != nil {
		return models.ClassificationRecord{}, errors.Wrapf(err, "sample %d", sample.Index)
	}

	stats := ac.window.Snapshot()

	var zScore float64
	if stats.Count >= ac.minHistory && stats.StdDev > 0 {
		zScore = (sample.Value - stats.Mean) / stats.StdDev
	}
	isAnomaly := math.Abs(zScore) > ac.threshold

	ac.window.Update(sample.Value)

	return models.ClassificationRecord{
		Stream:      ac.stream,
		Sample:      sample,
		Mean:        stats.Mean,
		StdDev:      stats.StdDev,
		ZScore:      zScore,
		IsAnomaly:   isAnomaly,
		WindowCount: stats.Count,
	}, nil
}

func (ac *AnomalyClassifier) Snapshot() models.Snapshot {
	return ac.window.Snapshot()
}

// WarmingUp reports whether the window has not yet reached capacity.
func (ac *AnomalyClassifier) WarmingUp() bool {
	return !ac.window.Full()
}

func (ac *AnomalyClassifier) Threshold() float64 {
	return ac.threshold
}

func (ac *AnomalyClassifier) MinHistory() int {
	return ac.minHistory
}

func (ac *AnomalyClassifier) Reset() {
	ac.window.Reset()
}

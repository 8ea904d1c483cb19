package analytics

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stream-anomaly-detector/models"
)

func newClassifier(t *testing.T, window int, threshold float64) *AnomalyClassifier {
	t.Helper()
	ac, err := NewAnomalyClassifier(models.DetectorConfig{WindowSize: window, Threshold: threshold})
	require.NoError(t, err)
	return ac
}

func feed(t *testing.T, ac *AnomalyClassifier, values ...float64) []models.ClassificationRecord {
	t.Helper()
	base := time.Now()
	records := make([]models.ClassificationRecord, 0, len(values))
	for i, v := range values {
		rec, err := ac.Process(models.Sample{
			Index:     uint64(i),
			Value:     v,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
		records = append(records, rec)
	}
	return records
}

func TestNewAnomalyClassifierValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  models.DetectorConfig
		err  error
	}{
		{"zero window", models.DetectorConfig{WindowSize: 0, Threshold: 3}, ErrInvalidWindowSize},
		{"negative window", models.DetectorConfig{WindowSize: -5, Threshold: 3}, ErrInvalidWindowSize},
		{"zero threshold", models.DetectorConfig{WindowSize: 10, Threshold: 0}, ErrInvalidThreshold},
		{"negative threshold", models.DetectorConfig{WindowSize: 10, Threshold: -1}, ErrInvalidThreshold},
		{"nan threshold", models.DetectorConfig{WindowSize: 10, Threshold: math.NaN()}, ErrInvalidThreshold},
		{"min history too small", models.DetectorConfig{WindowSize: 10, Threshold: 3, MinHistory: 1}, ErrInvalidMinHistory},
		{"min history above window", models.DetectorConfig{WindowSize: 10, Threshold: 3, MinHistory: 11}, ErrInvalidMinHistory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ac, err := NewAnomalyClassifier(tc.cfg)
			assert.Nil(t, ac)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	single, err := NewAnomalyClassifier(models.DetectorConfig{WindowSize: 1, Threshold: 3})
	require.NoError(t, err)
	for _, rec := range feed(t, single, 1, 100, -100) {
		assert.False(t, rec.IsAnomaly)
	}

	ac, err := NewAnomalyClassifier(models.DefaultDetectorConfig())
	require.NoError(t, err)
	assert.Equal(t, 3.0, ac.Threshold())
	assert.Equal(t, 2, ac.MinHistory())
}

func TestProcessUsesPreUpdateStatistics(t *testing.T) {
	ac := newClassifier(t, 10, 3)
	records := feed(t, ac, 1, 2, 3)

	last := records[2]
	assert.Equal(t, 2, last.WindowCount)
	assert.Equal(t, 1.5, last.Mean)
	assert.Equal(t, 0.5, last.StdDev)
	assert.Equal(t, 3.0, last.ZScore)
	assert.False(t, last.IsAnomaly, "threshold is strict")

	snap := ac.Snapshot()
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, 2.0, snap.Mean)
}

func TestProcessNeverFlagsWithoutHistory(t *testing.T) {
	for _, v := range []float64{0, 1e9, -1e9} {
		ac := newClassifier(t, 5, 0.1)
		records := feed(t, ac, 5, v)
		for _, rec := range records {
			assert.False(t, rec.IsAnomaly)
			assert.Equal(t, 0.0, rec.ZScore)
		}
		assert.Equal(t, 0, records[0].WindowCount)
		assert.Equal(t, 1, records[1].WindowCount)
	}
}

func TestProcessFlatWindowShortCircuits(t *testing.T) {
	ac := newClassifier(t, 5, 3)
	records := feed(t, ac, 10, 10, 10, 10, 10, 1000)

	last := records[5]
	assert.Equal(t, 10.0, last.Mean)
	assert.Equal(t, 0.0, last.StdDev)
	assert.Equal(t, 0.0, last.ZScore)
	assert.False(t, last.IsAnomaly)
	for _, rec := range records {
		assert.False(t, rec.IsAnomaly)
	}
}

func TestProcessFlatWindowOfInexactValues(t *testing.T) {
	ac := newClassifier(t, 3, 3)
	records := feed(t, ac, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.2)

	last := records[6]
	assert.Equal(t, 0.1, last.Mean)
	assert.Equal(t, 0.0, last.StdDev)
	assert.Equal(t, 0.0, last.ZScore)
	assert.False(t, last.IsAnomaly)
}

func TestProcessFlatWindowAfterNoisyHistory(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	for trial := 0; trial < 200; trial++ {
		window := 2 + rng.Intn(10)
		ac := newClassifier(t, window, 3)

		var values []float64
		history := rng.Intn(5 * window)
		for i := 0; i < history; i++ {
			values = append(values, rng.NormFloat64()*50)
		}
		flat := rng.Float64() * 100
		for i := 0; i < window; i++ {
			values = append(values, flat)
		}
		values = append(values, flat+1)

		records := feed(t, ac, values...)
		next := records[len(records)-1]
		require.Equal(t, 0.0, next.StdDev, "trial %d window %d", trial, window)
		require.False(t, next.IsAnomaly, "trial %d window %d", trial, window)
	}
}

func TestProcessDetectsSpike(t *testing.T) {
	ac := newClassifier(t, 50, 3)

	// alternating +1/-1 has mean 0 and population stddev 1
	values := make([]float64, 0, 51)
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			values = append(values, 1)
		} else {
			values = append(values, -1)
		}
	}
	values = append(values, 10)

	records := feed(t, ac, values...)
	spike := records[50]
	assert.Equal(t, 50, spike.WindowCount)
	assert.InDelta(t, 0, spike.Mean, 1e-12)
	assert.InDelta(t, 1, spike.StdDev, 1e-12)
	assert.InDelta(t, 10, spike.ZScore, 1e-9)
	assert.True(t, spike.IsAnomaly)

	for _, rec := range records[:50] {
		assert.False(t, rec.IsAnomaly)
	}
}

func TestProcessNegativeSpike(t *testing.T) {
	ac := newClassifier(t, 4, 2)
	records := feed(t, ac, 1, -1, 1, -1, -5)
	assert.InDelta(t, -5, records[4].ZScore, 1e-12)
	assert.True(t, records[4].IsAnomaly)
}

func TestProcessRampAdaptsToDrift(t *testing.T) {
	ac := newClassifier(t, 50, 3)
	values := make([]float64, 2000)
	for i := range values {
		values[i] = float64(i)
	}

	anomalies := 0
	for _, rec := range feed(t, ac, values...) {
		if rec.IsAnomaly {
			anomalies++
		}
	}
	assert.Equal(t, 0, anomalies)
}

func TestProcessIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	values := make([]float64, 500)
	for i := range values {
		values[i] = 10*math.Sin(0.2*float64(i)) + rng.Float64()*2 - 1
		if i%97 == 0 {
			values[i] += 40
		}
	}

	first := feed(t, newClassifier(t, 20, 2.5), values...)
	second := feed(t, newClassifier(t, 20, 2.5), values...)
	require.Len(t, second, len(first))
	flagged := 0
	for i := range first {
		assert.Equal(t, first[i].ZScore, second[i].ZScore)
		assert.Equal(t, first[i].IsAnomaly, second[i].IsAnomaly)
		if first[i].IsAnomaly {
			flagged++
		}
	}
	assert.NotZero(t, flagged)
}

func TestProcessAnomaliesStayInWindow(t *testing.T) {
	ac := newClassifier(t, 3, 1)
	feed(t, ac, 1, 2, 3, 100)
	snap := ac.Snapshot()
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, 35.0, snap.Mean)
}

func TestProcessRejectsNonFinite(t *testing.T) {
	ac := newClassifier(t, 5, 3)
	feed(t, ac, 1, 2)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := ac.Process(models.Sample{Index: 9, Value: v})
		assert.ErrorIs(t, err, ErrNonFiniteValue)
	}
	assert.Equal(t, 2, ac.Snapshot().Count)
}

func TestProcessCustomMinHistory(t *testing.T) {
	ac, err := NewStreamClassifier("cpu", models.DetectorConfig{WindowSize: 5, Threshold: 1, MinHistory: 5})
	require.NoError(t, err)

	records := feed(t, ac, 1, -1, 1, -1, 50, 50)
	assert.False(t, records[4].IsAnomaly, "only four samples of history")
	assert.Equal(t, 0.0, records[4].ZScore)
	assert.True(t, records[5].IsAnomaly)
	assert.Equal(t, "cpu", records[5].Stream)
	assert.False(t, ac.WarmingUp())

	ac.Reset()
	assert.True(t, ac.WarmingUp())
}

package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"stream-anomaly-detector/models"
)

// MetricsSink exports classification results as prometheus series labelled
// by stream.
type MetricsSink struct {
	samplesTotal   *prometheus.CounterVec
	anomaliesTotal *prometheus.CounterVec
	rollingMean    *prometheus.GaugeVec
	rollingStdDev  *prometheus.GaugeVec
	lastZScore     *prometheus.GaugeVec
	windowCount    *prometheus.GaugeVec
	zScores        *prometheus.HistogramVec
}

func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)
	return &MetricsSink{
		samplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "samples_processed_total",
				Help: "Total number of samples classified",
			},
			[]string{"stream"},
		),
		anomaliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anomalies_detected_total",
				Help: "Total number of anomalies detected",
			},
			[]string{"stream"},
		),
		rollingMean: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rolling_mean",
				Help: "Rolling mean of the window the last sample was scored against",
			},
			[]string{"stream"},
		),
		rollingStdDev: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rolling_stddev",
				Help: "Rolling standard deviation of the window the last sample was scored against",
			},
			[]string{"stream"},
		),
		lastZScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "last_z_score",
				Help: "Z-score of the last classified sample",
			},
			[]string{"stream"},
		),
		windowCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "window_count",
				Help: "Number of samples in the window at evaluation",
			},
			[]string{"stream"},
		),
		zScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "z_score_abs",
				Help:    "Distribution of absolute z-scores",
				Buckets: []float64{0.5, 1, 1.5, 2, 2.5, 3, 4, 5, 10},
			},
			[]string{"stream"},
		),
	}
}

func (m *MetricsSink) Emit(record models.ClassificationRecord) {
	stream := record.Stream
	m.samplesTotal.WithLabelValues(stream).Inc()
	m.rollingMean.WithLabelValues(stream).Set(record.Mean)
	m.rollingStdDev.WithLabelValues(stream).Set(record.StdDev)
	m.lastZScore.WithLabelValues(stream).Set(record.ZScore)
	m.windowCount.WithLabelValues(stream).Set(float64(record.WindowCount))

	z := record.ZScore
	if z < 0 {
		z = -z
	}
	m.zScores.WithLabelValues(stream).Observe(z)

	if record.IsAnomaly {
		m.anomaliesTotal.WithLabelValues(stream).Inc()
	}
}

package sink

import (
	"github.com/sirupsen/logrus"

	"stream-anomaly-detector/models"
)

// LogSink writes one log entry per record. Anomalies are logged at warn level,
// normal points at debug.
type LogSink struct {
	logger     logrus.FieldLogger
	minHistory int
}

func NewLogSink(logger logrus.FieldLogger, minHistory int) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if minHistory < models.DefaultMinHistory {
		minHistory = models.DefaultMinHistory
	}
	return &LogSink{logger: logger, minHistory: minHistory}
}

func (s *LogSink) Emit(record models.ClassificationRecord) {
	entry := s.logger.WithFields(logrus.Fields{
		"stream": record.Stream,
		"index":  record.Sample.Index,
		"value":  record.Sample.Value,
	})

	switch {
	case record.IsAnomaly:
		entry.WithFields(logrus.Fields{
			"z_score": record.ZScore,
			"mean":    record.Mean,
			"stddev":  record.StdDev,
		}).Warn("anomaly detected")
	case record.WindowCount < s.minHistory:
		entry.WithField("window_count", record.WindowCount).Debug("collecting data")
	default:
		entry.WithField("z_score", record.ZScore).Debug("data point")
	}
}

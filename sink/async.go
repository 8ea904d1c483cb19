package sink

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"stream-anomaly-detector/models"
)

// AsyncSink decouples a slow sink from the classification path. Emit never
// blocks: when the buffer is full the record is dropped and counted.
type AsyncSink struct {
	name    string
	next    Sink
	records chan models.ClassificationRecord
	logger  logrus.FieldLogger

	dropped   atomic.Uint64
	closeOnce sync.Once
	done      chan struct{}
}

func NewAsyncSink(name string, next Sink, buffer int, logger logrus.FieldLogger) *AsyncSink {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &AsyncSink{
		name:    name,
		next:    next,
		records: make(chan models.ClassificationRecord, buffer),
		logger:  logger.WithField("sink", name),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for record := range s.records {
		s.deliver(record)
	}
}

func (s *AsyncSink) deliver(record models.ClassificationRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("sink panicked while handling record")
		}
	}()
	s.next.Emit(record)
}

func (s *AsyncSink) Emit(record models.ClassificationRecord) {
	select {
	case s.records <- record:
	default:
		if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
			s.logger.WithField("dropped", n).Warn("sink buffer is full, dropping record")
		}
	}
}

func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting records and waits until buffered ones are delivered.
// Emit must not be called after Close.
func (s *AsyncSink) Close() {
	s.closeOnce.Do(func() {
		close(s.records)
	})
	<-s.done
}

package analytics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stream-anomaly-detector/models"
	"stream-anomaly-detector/sink"
)

const DefaultQueueSize = 1024

type EngineConfig struct {
	Detector  models.DetectorConfig
	QueueSize int
}

// stream pairs a classifier with the single worker allowed to advance it.
type stream struct {
	name  string
	queue chan models.Sample

	mu         sync.Mutex
	classifier *AnomalyClassifier
}

// StreamEngine classifies any number of independent streams. Each stream has
// its own queue and worker, so samples of one stream are processed strictly in
// submission order while different streams proceed in parallel.
type StreamEngine struct {
	cfg    EngineConfig
	out    sink.Sink
	logger logrus.FieldLogger

	closeMu sync.RWMutex
	closed  bool

	streamsMu sync.Mutex
	streams   map[string]*stream
	wg        sync.WaitGroup

	processed atomic.Uint64
	rejected  atomic.Uint64
}

func NewStreamEngine(cfg EngineConfig, out sink.Sink, logger logrus.FieldLogger) (*StreamEngine, error) {
	if _, err := NewAnomalyClassifier(cfg.Detector); err != nil {
		return nil, errors.Wrap(err, "invalid detector config")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if out == nil {
		out = sink.NewFanout()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &StreamEngine{
		cfg:     cfg,
		out:     out,
		logger:  logger,
		streams: make(map[string]*stream),
	}, nil
}

// Submit queues sample for the named stream, creating the stream on first
// use. It blocks while the stream's queue is full.
func (e *StreamEngine) Submit(ctx context.Context, name string, sample models.Sample) error {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}

	st, err := e.stream(name)
	if err != nil {
		return err
	}

	select {
	case st.queue <- sample:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *StreamEngine) stream(name string) (*stream, error) {
	e.streamsMu.Lock()
	defer e.streamsMu.Unlock()

	if st, ok := e.streams[name]; ok {
		return st, nil
	}

	classifier, err := NewStreamClassifier(name, e.cfg.Detector)
	if err != nil {
		return nil, err
	}
	st := &stream{
		name:       name,
		queue:      make(chan models.Sample, e.cfg.QueueSize),
		classifier: classifier,
	}
	e.streams[name] = st

	e.logger.WithFields(logrus.Fields{
		"stream":      name,
		"window_size": e.cfg.Detector.WindowSize,
		"threshold":   e.cfg.Detector.Threshold,
	}).Info("starting stream worker")

	e.wg.Add(1)
	go e.work(st)
	return st, nil
}

func (e *StreamEngine) work(st *stream) {
	defer e.wg.Done()
	for sample := range st.queue {
		st.mu.Lock()
		record, err := st.classifier.Process(sample)
		st.mu.Unlock()

		if err != nil {
			e.rejected.Add(1)
			e.logger.WithError(err).WithField("stream", st.name).Error("rejected sample")
			continue
		}
		e.processed.Add(1)
		e.out.Emit(record)
	}
}

// Snapshot returns the current window statistics of a stream.
func (e *StreamEngine) Snapshot(name string) (models.Snapshot, bool) {
	e.streamsMu.Lock()
	st, ok := e.streams[name]
	e.streamsMu.Unlock()
	if !ok {
		return models.Snapshot{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.classifier.Snapshot(), true
}

func (e *StreamEngine) Streams() []string {
	e.streamsMu.Lock()
	defer e.streamsMu.Unlock()
	names := make([]string, 0, len(e.streams))
	for name := range e.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *StreamEngine) Processed() uint64 {
	return e.processed.Load()
}

func (e *StreamEngine) Rejected() uint64 {
	return e.rejected.Load()
}

// Close stops accepting samples, lets every worker drain its queue and waits
// for them to finish.
func (e *StreamEngine) Close() {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return
	}
	e.closed = true

	e.streamsMu.Lock()
	for _, st := range e.streams {
		close(st.queue)
	}
	e.streamsMu.Unlock()
	e.closeMu.Unlock()

	e.wg.Wait()
	e.logger.WithFields(logrus.Fields{
		"processed": e.Processed(),
		"rejected":  e.Rejected(),
	}).Info("stream engine stopped")
}

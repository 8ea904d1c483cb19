package sink

import (
	"sync"

	"stream-anomaly-detector/models"
)

// Sink consumes classification records. Emit must not retain a reference to
// anything but the record value itself.
type Sink interface {
	Emit(record models.ClassificationRecord)
}

type Func func(record models.ClassificationRecord)

func (f Func) Emit(record models.ClassificationRecord) {
	f(record)
}

// Fanout delivers every record to each registered sink in registration order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Register(s Sink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

func (f *Fanout) Emit(record models.ClassificationRecord) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	for _, s := range sinks {
		s.Emit(record)
	}
}

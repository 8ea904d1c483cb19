package sink

import (
	"sync"

	"stream-anomaly-detector/models"
)

const DefaultTableLimit = 1000

// RecordTable keeps the most recent records per stream in two views: every
// data point, and anomalies only. Each view is bounded by limit.
type RecordTable struct {
	limit int

	mu        sync.RWMutex
	all       map[string][]models.ClassificationRecord
	anomalies map[string][]models.ClassificationRecord
}

func NewRecordTable(limit int) *RecordTable {
	if limit <= 0 {
		limit = DefaultTableLimit
	}
	return &RecordTable{
		limit:     limit,
		all:       make(map[string][]models.ClassificationRecord),
		anomalies: make(map[string][]models.ClassificationRecord),
	}
}

func (t *RecordTable) Emit(record models.ClassificationRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.all[record.Stream] = appendBounded(t.all[record.Stream], record, t.limit)
	if record.IsAnomaly {
		t.anomalies[record.Stream] = appendBounded(t.anomalies[record.Stream], record, t.limit)
	}
}

func appendBounded(rows []models.ClassificationRecord, record models.ClassificationRecord, limit int) []models.ClassificationRecord {
	if len(rows) >= limit {
		copy(rows, rows[1:])
		rows = rows[:len(rows)-1]
	}
	return append(rows, record)
}

// All returns up to n of the latest records for stream, oldest first.
// n <= 0 returns everything retained.
func (t *RecordTable) All(stream string, n int) []models.ClassificationRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return tail(t.all[stream], n)
}

func (t *RecordTable) Anomalies(stream string, n int) []models.ClassificationRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return tail(t.anomalies[stream], n)
}

func (t *RecordTable) Streams() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	streams := make([]string, 0, len(t.all))
	for name := range t.all {
		streams = append(streams, name)
	}
	return streams
}

func tail(rows []models.ClassificationRecord, n int) []models.ClassificationRecord {
	if n <= 0 || n > len(rows) {
		n = len(rows)
	}
	out := make([]models.ClassificationRecord, n)
	copy(out, rows[len(rows)-n:])
	return out
}

package analytics

import (
	"fmt"
	"math"

	"stream-anomaly-detector/models"
)

// RollingStatistics keeps the mean and population variance of the last
// capacity values. Updates are O(1): a full window replaces its oldest value
// in place instead of rescanning the buffer.
//
// It is not safe for concurrent use.
type RollingStatistics struct {
	capacity int
	values   []float64
	index    int // next slot to write, also the oldest value once full
	count    int
	mean     float64
	m2       float64

	evictions int

	// lastValue repeated run times as the most recent updates.
	lastValue float64
	run       int
}

func NewRollingStatistics(capacity int) (*RollingStatistics, error) {
	if capacity <= 0 {
		return nil, ErrInvalidWindowSize
	}
	return &RollingStatistics{
		capacity: capacity,
		values:   make([]float64, capacity),
	}, nil
}

// Update adds value to the window, evicting the oldest value when the window
// is full. A non-finite value panics: it would poison the running aggregates
// for every later sample.
func (rs *RollingStatistics) Update(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		panic(fmt.Sprintf("analytics: non-finite value %v passed to RollingStatistics.Update", value))
	}

	if rs.run > 0 && value == rs.lastValue {
		rs.run++
	} else {
		rs.lastValue = value
		rs.run = 1
	}
	defer rs.settleFlat()

	if rs.count < rs.capacity {
		rs.values[rs.index] = value
		rs.index = (rs.index + 1) % rs.capacity
		rs.count++

		delta := value - rs.mean
		rs.mean += delta / float64(rs.count)
		rs.m2 += delta * (value - rs.mean)
		return
	}

	oldValue := rs.values[rs.index]
	rs.values[rs.index] = value
	rs.index = (rs.index + 1) % rs.capacity

	oldMean := rs.mean
	rs.mean += (value - oldValue) / float64(rs.count)
	rs.m2 += (value - oldValue) * (value - rs.mean + oldValue - oldMean)
	if rs.m2 < 0 {
		rs.m2 = 0
	}

	// Rounding error accumulates across replacements; a full recompute once
	// per window keeps the update amortised O(1).
	rs.evictions++
	if rs.evictions >= rs.capacity {
		rs.evictions = 0
		rs.recompute()
	}
}

// settleFlat pins the aggregates once the whole window holds one value, so
// rounding residue cannot leave a positive variance behind.
func (rs *RollingStatistics) settleFlat() {
	if rs.run >= rs.count {
		rs.mean = rs.lastValue
		rs.m2 = 0
	}
}

// recompute rebuilds mean and m2 from the buffer with a Welford pass, which
// is exact for a window of identical values.
func (rs *RollingStatistics) recompute() {
	var mean, m2 float64
	for i := 0; i < rs.count; i++ {
		delta := rs.values[i] - mean
		mean += delta / float64(i+1)
		m2 += delta * (rs.values[i] - mean)
	}
	if m2 < 0 {
		m2 = 0
	}
	rs.mean = mean
	rs.m2 = m2
}

// Snapshot returns the current mean, population standard deviation and count.
func (rs *RollingStatistics) Snapshot() models.Snapshot {
	if rs.count == 0 {
		return models.Snapshot{}
	}
	variance := rs.m2 / float64(rs.count)
	return models.Snapshot{
		Mean:   rs.mean,
		StdDev: math.Sqrt(math.Max(variance, 0)),
		Count:  rs.count,
	}
}

func (rs *RollingStatistics) Count() int {
	return rs.count
}

func (rs *RollingStatistics) Capacity() int {
	return rs.capacity
}

// Full reports whether the warm-up period is over.
func (rs *RollingStatistics) Full() bool {
	return rs.count == rs.capacity
}

// Values returns a copy of the window, oldest first.
func (rs *RollingStatistics) Values() []float64 {
	out := make([]float64, rs.count)
	if rs.count < rs.capacity {
		copy(out, rs.values[:rs.count])
		return out
	}
	n := copy(out, rs.values[rs.index:])
	copy(out[n:], rs.values[:rs.index])
	return out
}

func (rs *RollingStatistics) Reset() {
	for i := range rs.values {
		rs.values[i] = 0
	}
	rs.index = 0
	rs.count = 0
	rs.mean = 0
	rs.m2 = 0
	rs.evictions = 0
	rs.lastValue = 0
	rs.run = 0
}

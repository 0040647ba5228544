// Package metric publishes run counters through expvar.
package metric

import (
	"expvar"
	"fmt"
	"sync"

	"pipelined.dev/sequence"
)

const runsLabel = "sequence.runs"

// Metric keeps meters of all runs it measured. The zero value is not
// usable, use New.
type Metric struct {
	mu     sync.Mutex
	meters map[string]*meter
	runs   *expvar.Int
}

// New creates a new metric.
func New() *Metric {
	return &Metric{
		meters: make(map[string]*meter),
		runs:   newInt(runsLabel),
	}
}

// Meter returns the meter of a run, creating it on first use.
func (m *Metric) Meter(runID string) sequence.Meter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt, ok := m.meters[runID]; ok {
		return mt
	}
	mt := &meter{runID: runID, counters: make(map[string]*expvar.Int)}
	m.meters[runID] = mt
	m.runs.Add(1)
	return mt
}

// Values returns the current counter values of a run.
func (m *Metric) Values(runID string) map[string]int64 {
	m.mu.Lock()
	mt, ok := m.meters[runID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return mt.values()
}

// meter accumulates expvar counters of one run.
type meter struct {
	mu       sync.Mutex
	runID    string
	counters map[string]*expvar.Int
}

// Add increments a counter, publishing it on first use.
func (mt *meter) Add(counter string, value int64) {
	mt.mu.Lock()
	v, ok := mt.counters[counter]
	if !ok {
		v = newInt(key(mt.runID, counter))
		mt.counters[counter] = v
	}
	mt.mu.Unlock()
	v.Add(value)
}

func (mt *meter) values() map[string]int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	vs := make(map[string]int64, len(mt.counters))
	for c, v := range mt.counters {
		vs[c] = v.Value()
	}
	return vs
}

func key(runID, counter string) string {
	return fmt.Sprintf("sequence.run.%s.%s", runID, counter)
}

// newInt reuses an already published var, expvar panics on double publish
// otherwise.
func newInt(name string) *expvar.Int {
	if v := expvar.Get(name); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(name)
}

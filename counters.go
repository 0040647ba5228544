package sequence

import "sync/atomic"

// Counters is a snapshot of the run counters.
type Counters struct {
	// Converted frames persisted by every output.
	Converted int
	// Failed frames that could not be read or transformed.
	Failed int
	// Excluded frames filtered out before dispatch.
	Excluded int
	// Total frames in the source sequence.
	Total int
}

// runCounters are mutated by workers and writers and read by progress
// reporting. Excluded and total are fixed at prepare time.
type runCounters struct {
	converted atomic.Int64
	failed    atomic.Int64
	excluded  int
	total     int
}

func (c *runCounters) snapshot() Counters {
	return Counters{
		Converted: int(c.converted.Load()),
		Failed:    int(c.failed.Load()),
		Excluded:  c.excluded,
		Total:     c.total,
	}
}

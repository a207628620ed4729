// Package stats holds the download counters reported after every segment.
package stats

import (
	"fmt"
	"sync/atomic"
)

// Stats is a point-in-time copy of the counters.
//
//	Total:  segments the worker tried to retrieve
//	Failed: segments that failed at the primary stage (404, timeouts, HTTP errors),
//	        including ones later recovered by the retry worker
//	Missed: segments never offered to the worker because of gaps in the playlist
type Stats struct {
	Total  uint64 `json:"total"`
	Failed uint64 `json:"failed"`
	Missed uint64 `json:"missed"`
}

func (s Stats) String() string {
	return fmt.Sprintf("Total: %d Failed: %d Missed: %d", s.Total, s.Failed, s.Missed)
}

// Collector accumulates the counters. It has a single writer (the segment
// worker); any number of goroutines may call Snapshot concurrently.
// Counters never decrease.
type Collector struct {
	total  atomic.Uint64
	failed atomic.Uint64
	missed atomic.Uint64
}

// NewCollector returns a zeroed collector.
func NewCollector() *Collector {
	return &Collector{}
}

// AddTotal counts one processed task.
func (c *Collector) AddTotal() {
	c.total.Add(1)
}

// AddFailed counts one primary-stage failure.
func (c *Collector) AddFailed() {
	c.failed.Add(1)
}

// AddMissed counts n segments lost to a playlist gap.
func (c *Collector) AddMissed(n uint64) {
	c.missed.Add(n)
}

// Snapshot returns a read-only copy of the counters.
func (c *Collector) Snapshot() Stats {
	return Stats{
		Total:  c.total.Load(),
		Failed: c.failed.Load(),
		Missed: c.missed.Load(),
	}
}

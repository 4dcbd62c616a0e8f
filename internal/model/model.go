package model

import "time"

// ClassCounts holds the cumulative line crossings of one object class.
type ClassCounts struct {
	In  uint64
	Out uint64
}

// Total returns the number of crossings in both directions.
func (c ClassCounts) Total() uint64 {
	return c.In + c.Out
}

// ClassSet is the fixed, ordered list of tracked classes. Its order defines
// the column order of every report row.
type ClassSet []string

// FrameSnapshot carries the cumulative per-class counts as of one processed frame.
// Classes missing from Counts are treated as zero.
type FrameSnapshot struct {
	Counts map[string]ClassCounts
}

// StreamInfo describes the source stream. Width and Height are informational.
type StreamInfo struct {
	FrameRate float64
	Width     int
	Height    int
}

// ClassTotal is one class column pair of a bucket.
type ClassTotal struct {
	Class    string
	Total    uint64
	Interval uint64
}

// Bucket is one flushed reporting window. It is never modified after it is returned.
type Bucket struct {
	Index   int  // 1-based
	Partial bool // true for the terminal bucket that did not reach the frame threshold
	Frames  int  // frames processed in this window
	Classes []ClassTotal
}

// RunInfo identifies a single invocation of the counter.
type RunInfo struct {
	ID        string
	StartedAt time.Time
	Classes   ClassSet
}

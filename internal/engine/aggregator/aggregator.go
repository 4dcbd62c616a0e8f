package aggregator

import (
	"Go2CrossCount/internal/model"
	"fmt"
)

// Aggregator owns the cumulative and per-bucket class counts of one run.
// It is the only producer of model.Bucket values and is not safe for
// concurrent use; the run loop drives it from a single goroutine.
type Aggregator struct {
	classes model.ClassSet
	index   map[string]int

	latest   []model.ClassCounts // last accepted snapshot, in class order
	previous []uint64            // cumulative totals of the last flushed bucket

	bucketIndex int
	frames      int
}

// New creates an aggregator for the given class set with all counters at zero.
func New(classes model.ClassSet) *Aggregator {
	index := make(map[string]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}
	return &Aggregator{
		classes:  classes,
		index:    index,
		latest:   make([]model.ClassCounts, len(classes)),
		previous: make([]uint64, len(classes)),
	}
}

// Ingest stores the snapshot as the latest cumulative state. Classes outside
// the class set are ignored and missing classes count as zero. A snapshot in
// which any class went backwards is rejected as a whole and the previous state
// is kept; the returned error wraps model.ErrMonotonicityViolation.
func (a *Aggregator) Ingest(snapshot *model.FrameSnapshot) error {
	a.frames++

	next := make([]model.ClassCounts, len(a.classes))
	if snapshot != nil {
		for class, counts := range snapshot.Counts {
			if i, ok := a.index[class]; ok {
				next[i] = counts
			}
		}
	}

	for i, counts := range next {
		prev := a.latest[i]
		if counts.In < prev.In || counts.Out < prev.Out {
			return fmt.Errorf("%w: class '%s' went from in=%d out=%d to in=%d out=%d",
				model.ErrMonotonicityViolation, a.classes[i], prev.In, prev.Out, counts.In, counts.Out)
		}
	}

	a.latest = next
	return nil
}

// FlushIfBoundary closes the current bucket when crossed is true.
func (a *Aggregator) FlushIfBoundary(crossed bool) *model.Bucket {
	if !crossed {
		return nil
	}
	return a.flush(false)
}

// FlushFinal closes the terminal partial bucket. It returns nil when no
// frames are pending, i.e. the stream ended exactly on a boundary.
func (a *Aggregator) FlushFinal(framesPending int) *model.Bucket {
	if framesPending <= 0 {
		return nil
	}
	return a.flush(true)
}

// BucketIndex returns the index of the last flushed bucket, 0 before the first flush.
func (a *Aggregator) BucketIndex() int {
	return a.bucketIndex
}

// Latest returns a copy of the last accepted cumulative counts keyed by class.
func (a *Aggregator) Latest() map[string]model.ClassCounts {
	out := make(map[string]model.ClassCounts, len(a.classes))
	for i, class := range a.classes {
		out[class] = a.latest[i]
	}
	return out
}

func (a *Aggregator) flush(partial bool) *model.Bucket {
	a.bucketIndex++

	bucket := &model.Bucket{
		Index:   a.bucketIndex,
		Partial: partial,
		Frames:  a.frames,
		Classes: make([]model.ClassTotal, len(a.classes)),
	}
	for i, class := range a.classes {
		total := a.latest[i].Total()
		bucket.Classes[i] = model.ClassTotal{
			Class:    class,
			Total:    total,
			Interval: total - a.previous[i],
		}
		a.previous[i] = total
	}

	a.frames = 0
	return bucket
}

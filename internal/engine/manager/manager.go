package manager

import (
	"Go2CrossCount/internal/alerter"
	"Go2CrossCount/internal/engine/aggregator"
	"Go2CrossCount/internal/engine/clock"
	"Go2CrossCount/internal/metrics"
	"Go2CrossCount/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// RunIDLayout formats the run start time into the run id and report file names.
const RunIDLayout = "20060102_150405"

// Summary describes a completed run.
type Summary struct {
	Run         model.RunInfo
	Frames      int
	Buckets     int
	Rejected    int  // snapshots dropped for going backwards
	Interrupted bool // the context was cancelled before the source ended
}

// Manager drives one counting run: it pulls frames from a source, advances
// the frame clock, feeds the aggregator and hands every flushed bucket to the
// writers. Everything happens on the caller's goroutine.
type Manager struct {
	classes       model.ClassSet
	windowSeconds int
	writers       []model.Writer
	alerter       *alerter.Alerter
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewManager creates a new Manager. alertr may be nil.
func NewManager(classes model.ClassSet, windowSeconds int, writers []model.Writer, alertr *alerter.Alerter) *Manager {
	return &Manager{
		classes:       classes,
		windowSeconds: windowSeconds,
		writers:       writers,
		alerter:       alertr,
		now:           time.Now,
	}
}

// SetMetrics makes the manager report its progress to m.
func (m *Manager) SetMetrics(metrics *metrics.Metrics) {
	m.metrics = metrics
}

// Run processes the source until it is exhausted or ctx is cancelled.
//
// Nothing is written before the first frame arrives, so an empty source
// leaves no output behind. A cancelled context still gets the final partial
// bucket. Source and writer failures abort the run without a final flush.
// Writers are closed before Run returns.
func (m *Manager) Run(ctx context.Context, source model.Source) (*Summary, error) {
	info := source.Info()
	log.Printf("Width: %d, Height: %d, FPS: %v", info.Width, info.Height, info.FrameRate)

	clk, err := clock.New(info.FrameRate, m.windowSeconds)
	if err != nil {
		return nil, err
	}
	log.Printf("Reporting every %d frames (%d seconds of source time).", clk.FramesPerBucket(), m.windowSeconds)

	first, err := source.Next(ctx)
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: the stream has no frames", model.ErrSourceUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}

	startedAt := m.now()
	summary := &Summary{Run: model.RunInfo{
		ID:        startedAt.Format(RunIDLayout),
		StartedAt: startedAt,
		Classes:   m.classes,
	}}

	if err := m.openWriters(summary.Run); err != nil {
		return nil, err
	}
	defer m.closeWriters()

	agg := aggregator.New(m.classes)
	frame := first
	for {
		summary.Frames++
		if m.metrics != nil {
			m.metrics.FramesProcessed.Add(1)
		}
		if err := agg.Ingest(frame); err != nil {
			summary.Rejected++
			if m.metrics != nil {
				m.metrics.SnapshotsRejected.Add(1)
			}
			log.Printf("Warning: frame %d rejected, keeping the last valid counts: %v", summary.Frames, err)
		}
		if bucket := agg.FlushIfBoundary(clk.Observe()); bucket != nil {
			if err := m.emit(bucket); err != nil {
				return summary, err
			}
			summary.Buckets++
		}

		frame, err = source.Next(ctx)
		if err == io.EOF {
			log.Println("Video frame is empty or processing is complete.")
			break
		}
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				log.Println("Interrupted, flushing the pending bucket.")
				summary.Interrupted = true
				break
			}
			return summary, fmt.Errorf("failed to read frame %d: %w", summary.Frames+1, err)
		}
	}

	if bucket := agg.FlushFinal(clk.Pending()); bucket != nil {
		if err := m.emit(bucket); err != nil {
			return summary, err
		}
		summary.Buckets++
	}

	log.Printf("Run %s finished: %d frames, %d buckets, %d rejected snapshots.",
		summary.Run.ID, summary.Frames, summary.Buckets, summary.Rejected)
	return summary, nil
}

func (m *Manager) openWriters(run model.RunInfo) error {
	for i, w := range m.writers {
		if err := w.Open(run); err != nil {
			for _, opened := range m.writers[:i] {
				opened.Close()
			}
			return fmt.Errorf("%w: failed to open %s writer: %v", model.ErrSinkWrite, w.Name(), err)
		}
	}
	return nil
}

func (m *Manager) closeWriters() {
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			log.Printf("Error closing %s writer: %v", w.Name(), err)
		}
	}
}

// emit reports a bucket on the console, appends it to every writer and
// passes it to the alerter.
func (m *Manager) emit(bucket *model.Bucket) error {
	if bucket.Partial {
		log.Printf("Bucket %d (partial, %d frames):", bucket.Index, bucket.Frames)
	} else {
		log.Printf("Bucket %d:", bucket.Index)
	}
	for _, ct := range bucket.Classes {
		log.Printf("%s: Total = %d, This window = %d", capitalize(ct.Class), ct.Total, ct.Interval)
	}

	for _, w := range m.writers {
		if err := w.Append(bucket); err != nil {
			if m.metrics != nil {
				m.metrics.SinkErrors.Add(1)
			}
			return fmt.Errorf("%w: %s writer, bucket %d: %v", model.ErrSinkWrite, w.Name(), bucket.Index, err)
		}
	}

	if m.metrics != nil {
		m.metrics.ObserveBucket(bucket)
	}
	if m.alerter != nil {
		m.alerter.Observe(bucket)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

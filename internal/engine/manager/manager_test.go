package manager

import (
	"Go2CrossCount/internal/engine/impl/csvsink"
	"Go2CrossCount/internal/metrics"
	"Go2CrossCount/internal/model"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// sliceSource replays prepared snapshots. cancel, when set, is called after
// the snapshot at cancelAt has been returned.
type sliceSource struct {
	info     model.StreamInfo
	frames   []*model.FrameSnapshot
	pos      int
	failAt   int // 1-based frame that fails with a read error, 0 for never
	cancelAt int
	cancel   context.CancelFunc
}

func (s *sliceSource) Info() model.StreamInfo { return s.info }

func (s *sliceSource) Next(ctx context.Context) (*model.FrameSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	s.pos++
	if s.failAt == s.pos {
		return nil, errors.New("decoder crashed")
	}
	if s.cancel != nil && s.pos == s.cancelAt {
		s.cancel()
	}
	return s.frames[s.pos-1], nil
}

func (s *sliceSource) Close() error { return nil }

type memWriter struct {
	opens   int
	buckets []*model.Bucket
	failAt  int // bucket index whose Append fails, 0 for never
	closed  bool
}

func (w *memWriter) Name() string { return "memory" }

func (w *memWriter) Open(run model.RunInfo) error {
	w.opens++
	return nil
}

func (w *memWriter) Append(b *model.Bucket) error {
	if b.Index == w.failAt {
		return errors.New("disk full")
	}
	w.buckets = append(w.buckets, b)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

// carFrames builds n frames where car's cumulative IN count at frame i is in(i).
func carFrames(n int, in func(i int) uint64) []*model.FrameSnapshot {
	frames := make([]*model.FrameSnapshot, n)
	for i := range frames {
		frames[i] = &model.FrameSnapshot{Counts: map[string]model.ClassCounts{"car": {In: in(i + 1)}}}
	}
	return frames
}

func total(b *model.Bucket, class string) model.ClassTotal {
	for _, ct := range b.Classes {
		if ct.Class == class {
			return ct
		}
	}
	return model.ClassTotal{}
}

func TestManager_Run_FullAndPartialBuckets(t *testing.T) {
	frames := carFrames(1800, func(i int) uint64 { return uint64(i * 50 / 1800) })
	frames = append(frames, carFrames(900, func(i int) uint64 { return 50 + uint64(i*20/900) })...)
	source := &sliceSource{info: model.StreamInfo{FrameRate: 30, Width: 1920, Height: 1080}, frames: frames}
	writer := &memWriter{}

	m := NewManager(model.ClassSet{"car", "bus"}, 60, []model.Writer{writer}, nil)
	summary, err := m.Run(context.Background(), source)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Frames != 2700 || summary.Buckets != 2 || summary.Rejected != 0 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if writer.opens != 1 || !writer.closed {
		t.Errorf("Expected writer to be opened once and closed, got opens=%d closed=%v", writer.opens, writer.closed)
	}
	if len(writer.buckets) != 2 {
		t.Fatalf("Expected 2 buckets, got %d", len(writer.buckets))
	}
	if car := total(writer.buckets[0], "car"); car.Total != 50 || car.Interval != 50 {
		t.Errorf("Expected car_total=50 car_interval=50, got %+v", car)
	}
	if car := total(writer.buckets[1], "car"); car.Total != 70 || car.Interval != 20 || !writer.buckets[1].Partial {
		t.Errorf("Expected partial car_total=70 car_interval=20, got %+v", writer.buckets[1])
	}
	if bus := total(writer.buckets[1], "bus"); bus.Class != "bus" || bus.Total != 0 || bus.Interval != 0 {
		t.Errorf("Expected bus column 0/0, got %+v", bus)
	}
}

func TestManager_Run_ExactMultiple(t *testing.T) {
	source := &sliceSource{info: model.StreamInfo{FrameRate: 2}, frames: carFrames(12, func(i int) uint64 { return uint64(i) })}
	writer := &memWriter{}

	summary, err := NewManager(model.ClassSet{"car"}, 2, []model.Writer{writer}, nil).Run(context.Background(), source)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Buckets != 3 || len(writer.buckets) != 3 {
		t.Fatalf("Expected exactly 3 buckets for 12 frames of 4, got %d", len(writer.buckets))
	}
	for _, b := range writer.buckets {
		if b.Partial {
			t.Errorf("Bucket %d should not be partial", b.Index)
		}
	}
}

func TestManager_Run_MonotonicityViolationIsRecovered(t *testing.T) {
	frames := carFrames(4, func(i int) uint64 { return []uint64{10, 50, 40, 55}[i-1] })
	source := &sliceSource{info: model.StreamInfo{FrameRate: 1}, frames: frames}
	writer := &memWriter{}

	summary, err := NewManager(model.ClassSet{"car"}, 60, []model.Writer{writer}, nil).Run(context.Background(), source)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Rejected != 1 {
		t.Errorf("Expected 1 rejected snapshot, got %d", summary.Rejected)
	}
	if len(writer.buckets) != 1 {
		t.Fatalf("Expected a single partial bucket, got %d", len(writer.buckets))
	}
	if car := total(writer.buckets[0], "car"); car.Total != 55 || car.Interval != 55 {
		t.Errorf("Expected car_total=55 after the rejected frame, got %+v", car)
	}
	if writer.buckets[0].Frames != 4 {
		t.Errorf("Expected the rejected frame to count towards the bucket, got %d frames", writer.buckets[0].Frames)
	}
}

func TestManager_Run_EmptySourceWritesNothing(t *testing.T) {
	writer := &memWriter{}
	_, err := NewManager(model.ClassSet{"car"}, 60, []model.Writer{writer}, nil).
		Run(context.Background(), &sliceSource{info: model.StreamInfo{FrameRate: 30}})
	if !errors.Is(err, model.ErrSourceUnavailable) {
		t.Fatalf("Expected ErrSourceUnavailable, got %v", err)
	}
	if writer.opens != 0 {
		t.Errorf("Expected no writer to be opened for an empty source")
	}
}

func TestManager_Run_InvalidFrameRate(t *testing.T) {
	writer := &memWriter{}
	source := &sliceSource{info: model.StreamInfo{FrameRate: 0}, frames: carFrames(3, func(int) uint64 { return 0 })}
	_, err := NewManager(model.ClassSet{"car"}, 60, []model.Writer{writer}, nil).Run(context.Background(), source)
	if !errors.Is(err, model.ErrInvalidFrameRate) {
		t.Fatalf("Expected ErrInvalidFrameRate, got %v", err)
	}
	if writer.opens != 0 {
		t.Errorf("Expected no writer to be opened for an invalid frame rate")
	}
}

func TestManager_Run_SinkFailureAborts(t *testing.T) {
	source := &sliceSource{info: model.StreamInfo{FrameRate: 1}, frames: carFrames(5, func(i int) uint64 { return uint64(i) })}
	writer := &memWriter{failAt: 2}

	_, err := NewManager(model.ClassSet{"car"}, 2, []model.Writer{writer}, nil).Run(context.Background(), source)
	if !errors.Is(err, model.ErrSinkWrite) {
		t.Fatalf("Expected ErrSinkWrite, got %v", err)
	}
	if len(writer.buckets) != 1 {
		t.Errorf("Expected only the first bucket to be kept, got %d", len(writer.buckets))
	}
	if source.pos != 4 {
		t.Errorf("Expected the run to stop at frame 4, stopped at %d", source.pos)
	}
	if !writer.closed {
		t.Errorf("Expected the writer to be closed after a failure")
	}
}

func TestManager_Run_SourceFailureAborts(t *testing.T) {
	source := &sliceSource{info: model.StreamInfo{FrameRate: 1}, frames: carFrames(5, func(i int) uint64 { return uint64(i) }), failAt: 3}
	writer := &memWriter{}

	_, err := NewManager(model.ClassSet{"car"}, 60, []model.Writer{writer}, nil).Run(context.Background(), source)
	if err == nil || !strings.Contains(err.Error(), "decoder crashed") {
		t.Fatalf("Expected the source error, got %v", err)
	}
	if len(writer.buckets) != 0 {
		t.Errorf("Expected no final flush after a source failure, got %d buckets", len(writer.buckets))
	}
}

func TestManager_Run_CancelFlushesPartialBucket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &sliceSource{
		info:     model.StreamInfo{FrameRate: 1},
		frames:   carFrames(10, func(i int) uint64 { return uint64(i) }),
		cancelAt: 5,
		cancel:   cancel,
	}
	writer := &memWriter{}

	summary, err := NewManager(model.ClassSet{"car"}, 4, []model.Writer{writer}, nil).Run(ctx, source)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !summary.Interrupted {
		t.Errorf("Expected the run to be marked interrupted")
	}
	if len(writer.buckets) != 2 || !writer.buckets[1].Partial {
		t.Fatalf("Expected one full and one partial bucket, got %+v", writer.buckets)
	}
	if car := total(writer.buckets[1], "car"); car.Total != 5 || car.Interval != 1 {
		t.Errorf("Unexpected partial bucket after cancel: %+v", car)
	}
}

func TestManager_Run_WritesCSVReport(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "manager_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	writer := csvsink.NewWriter(tmpDir, "vehicle_counts")
	m := NewManager(model.ClassSet{"car", "bus"}, 1, []model.Writer{writer}, nil)
	m.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local) }

	source := &sliceSource{info: model.StreamInfo{FrameRate: 2}, frames: carFrames(5, func(i int) uint64 { return uint64(i) })}
	summary, err := m.Run(context.Background(), source)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Run.ID != "20250102_030405" {
		t.Errorf("Unexpected run id '%s'", summary.Run.ID)
	}

	file, err := os.Open(writer.Path())
	if err != nil {
		t.Fatalf("Failed to open report: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse report: %v", err)
	}

	expected := []string{
		"Bucket,car_total,car_interval,bus_total,bus_interval",
		"1,2,2,0,0",
		"2,4,2,0,0",
		"3,5,1,0,0",
	}
	if len(rows) != len(expected) {
		t.Fatalf("Expected %d rows, got %d: %v", len(expected), len(rows), rows)
	}
	for i, row := range rows {
		if got := strings.Join(row, ","); got != expected[i] {
			t.Errorf("Row %d: expected %s, got %s", i, expected[i], got)
		}
	}
}

func TestManager_Run_ReportsMetrics(t *testing.T) {
	frames := carFrames(5, func(i int) uint64 { return []uint64{1, 3, 2, 4, 6}[i-1] })
	source := &sliceSource{info: model.StreamInfo{FrameRate: 1}, frames: frames}
	writer := &memWriter{}
	reg := metrics.New()

	m := NewManager(model.ClassSet{"car"}, 2, []model.Writer{writer}, nil)
	m.SetMetrics(reg)
	if _, err := m.Run(context.Background(), source); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := reg.FramesProcessed.Load(); got != 5 {
		t.Errorf("Expected 5 frames, got %d", got)
	}
	if got := reg.SnapshotsRejected.Load(); got != 1 {
		t.Errorf("Expected 1 rejected snapshot, got %d", got)
	}
	if got := reg.BucketsFlushed.Load(); got != 3 {
		t.Errorf("Expected 3 buckets, got %d", got)
	}
	if got := reg.SinkErrors.Load(); got != 0 {
		t.Errorf("Expected no sink errors, got %d", got)
	}
}

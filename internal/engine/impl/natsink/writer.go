package natsink

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/factory"
	"Go2CrossCount/internal/model"
	"Go2CrossCount/internal/probe"
	"fmt"
)

func init() {
	factory.RegisterWriter("nats", func(def config.WriterDef) (model.Writer, error) {
		if def.NATS.Subject == "" {
			return nil, fmt.Errorf("nats writer requires a subject")
		}
		pub, err := probe.NewPublisher(def.NATS.URL, def.NATS.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return NewWriter(pub), nil
	})
}

// Writer publishes every flushed bucket to a NATS subject.
// It implements the model.Writer interface.
type Writer struct {
	pub   *probe.Publisher
	runID string
}

// NewWriter wraps a connected publisher.
func NewWriter(pub *probe.Publisher) *Writer {
	return &Writer{pub: pub}
}

// Name returns the writer type.
func (w *Writer) Name() string {
	return "nats"
}

// Open records the run id that tags every published bucket.
func (w *Writer) Open(run model.RunInfo) error {
	if w.runID != "" {
		return fmt.Errorf("nats writer already opened for run '%s'", w.runID)
	}
	w.runID = run.ID
	return nil
}

// Append publishes the bucket and waits for the server to acknowledge the flush.
func (w *Writer) Append(bucket *model.Bucket) error {
	if w.runID == "" {
		return fmt.Errorf("nats writer is not open")
	}
	if err := w.pub.PublishBucket(w.runID, bucket); err != nil {
		return fmt.Errorf("failed to publish bucket %d: %w", bucket.Index, err)
	}
	if err := w.pub.Flush(); err != nil {
		return fmt.Errorf("failed to flush bucket %d: %w", bucket.Index, err)
	}
	return nil
}

// Close drains the NATS connection.
func (w *Writer) Close() error {
	w.pub.Close()
	return nil
}

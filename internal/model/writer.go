package model

// Writer defines a generic interface for persisting flushed buckets.
type Writer interface {
	// Name identifies the writer in logs.
	Name() string

	// Open prepares the output for a run and writes its header, once.
	Open(run RunInfo) error

	// Append persists one bucket. It must not return before the row is durable.
	Append(bucket *Bucket) error

	Close() error
}

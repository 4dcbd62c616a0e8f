package model

import "context"

// Source yields the per-frame snapshot stream of the upstream detector.
type Source interface {
	// Info returns the stream properties reported when the source was opened.
	Info() StreamInfo

	// Next blocks until the next frame snapshot is available.
	// It returns io.EOF once the stream is exhausted.
	Next(ctx context.Context) (*FrameSnapshot, error)

	Close() error
}

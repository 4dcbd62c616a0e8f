package model

import "errors"

var (
	// ErrSourceUnavailable is returned when the event source cannot be opened or yields no frames.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrInvalidFrameRate is returned when the source reports a frame rate that cannot size a bucket.
	ErrInvalidFrameRate = errors.New("invalid frame rate")
	// ErrMonotonicityViolation is returned when a snapshot's cumulative counts decrease.
	ErrMonotonicityViolation = errors.New("monotonicity violation")
	// ErrSinkWrite is returned when a report writer cannot persist a row.
	ErrSinkWrite = errors.New("sink write failure")
)

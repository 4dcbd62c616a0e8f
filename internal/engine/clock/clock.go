package clock

import (
	"Go2CrossCount/internal/model"
	"fmt"
	"math"
)

// Clock turns frame arrivals into bucket boundaries. Boundaries depend on the
// frame count only, so replaying a recording always yields the same buckets.
type Clock struct {
	framesPerBucket int
	frames          int
}

// FramesPerBucket computes round(frameRate) * windowSeconds.
func FramesPerBucket(frameRate float64, windowSeconds int) (int, error) {
	if math.IsNaN(frameRate) || math.IsInf(frameRate, 0) || frameRate <= 0 {
		return 0, fmt.Errorf("%w: %v", model.ErrInvalidFrameRate, frameRate)
	}
	if windowSeconds <= 0 {
		return 0, fmt.Errorf("window must be positive, got %d seconds", windowSeconds)
	}
	n := int(math.Round(frameRate)) * windowSeconds
	if n <= 0 {
		// e.g. 0.4 fps rounds to zero
		return 0, fmt.Errorf("%w: %v rounds to zero frames per second", model.ErrInvalidFrameRate, frameRate)
	}
	return n, nil
}

// New creates a clock for the given stream frame rate and window length.
func New(frameRate float64, windowSeconds int) (*Clock, error) {
	n, err := FramesPerBucket(frameRate, windowSeconds)
	if err != nil {
		return nil, err
	}
	return &Clock{framesPerBucket: n}, nil
}

// Observe counts one processed frame and reports whether the current bucket
// reached its threshold. The counter restarts from zero after a crossing.
func (c *Clock) Observe() bool {
	c.frames++
	if c.frames >= c.framesPerBucket {
		c.frames = 0
		return true
	}
	return false
}

// Pending returns the number of frames observed since the last boundary.
func (c *Clock) Pending() int {
	return c.frames
}

// FramesPerBucket returns the configured bucket length in frames.
func (c *Clock) FramesPerBucket() int {
	return c.framesPerBucket
}

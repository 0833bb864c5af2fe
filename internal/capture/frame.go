package capture

import (
	"errors"
	"fmt"
	"time"
)

// Frame validation errors.
var (
	ErrEmptyFrame  = errors.New("capture: empty frame")
	ErrFrameSize   = errors.New("capture: unexpected frame size")
	ErrLowVariance = errors.New("capture: frame variance too low")
)

// Frame is one decoded image: row-major 8-bit pixels with Channels
// interleaved samples per pixel.
type Frame struct {
	Width      int
	Height     int
	Channels   int
	Data       []byte
	CapturedAt time.Time
	// Seq is assigned by the Source when the frame is published.
	Seq uint64
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	c := f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return c
}

// Variance returns the population variance of all samples in the frame.
func Variance(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var hist [256]uint64
	for _, b := range data {
		hist[b]++
	}
	n := float64(len(data))
	var sum float64
	for v, c := range hist {
		sum += float64(v) * float64(c)
	}
	mean := sum / n
	var sq float64
	for v, c := range hist {
		if c == 0 {
			continue
		}
		d := float64(v) - mean
		sq += d * d * float64(c)
	}
	return sq / n
}

// Validate checks that f is non-empty, matches the expected size and is not
// a solid or frozen image. A zero width or height skips that dimension.
func Validate(f Frame, width, height int, varianceThreshold float64) error {
	if f.Empty() {
		return ErrEmptyFrame
	}
	if (width > 0 && f.Width != width) || (height > 0 && f.Height != height) {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize, f.Width, f.Height, width, height)
	}
	if v := Variance(f.Data); v <= varianceThreshold {
		return fmt.Errorf("%w: %.2f <= %.2f", ErrLowVariance, v, varianceThreshold)
	}
	return nil
}

// Package capture acquires frames from a network camera in the background,
// keeping only the newest valid frame and reconnecting when the feed stalls.
package capture

import "context"

// Device is an open camera stream. Read and Grab are only ever called from
// one goroutine at a time.
type Device interface {
	// Read blocks until the next frame is decoded.
	Read() (Frame, error)
	// Grab discards one buffered frame without decoding it.
	Grab() error
	Close() error
}

// Dialer opens a new Device.
type Dialer func(ctx context.Context) (Device, error)

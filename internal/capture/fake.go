package capture

import (
	"context"
	"errors"
	"sync"
)

// FakeRead is one scripted result of FakeDevice.Read.
type FakeRead struct {
	Frame Frame
	Err   error
}

// FakeDevice is a test double that returns scripted reads.
// Safe for concurrent use so tests can inspect it while a Source runs.
type FakeDevice struct {
	mu     sync.Mutex
	reads  []FakeRead
	index  int
	nread  int
	ngrab  int
	closed bool

	// GrabError, if set, is returned by Grab.
	GrabError error
}

// NewFakeDevice creates a device that returns reads in order.
// Once exhausted, the last read is repeated.
func NewFakeDevice(reads ...FakeRead) *FakeDevice {
	return &FakeDevice{reads: reads}
}

// Read returns the next scripted read.
func (d *FakeDevice) Read() (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Frame{}, errors.New("fake device closed")
	}
	if len(d.reads) == 0 {
		return Frame{}, errors.New("no reads configured")
	}
	r := d.reads[d.index]
	if d.index < len(d.reads)-1 {
		d.index++
	}
	d.nread++
	return r.Frame.Clone(), r.Err
}

// Grab counts the discard.
func (d *FakeDevice) Grab() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ngrab++
	return d.GrabError
}

// Close marks the device as closed.
func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *FakeDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Reads returns how many times Read was called.
func (d *FakeDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nread
}

// Grabs returns how many times Grab was called.
func (d *FakeDevice) Grabs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ngrab
}

// FakeDialer hands out scripted devices.
type FakeDialer struct {
	mu      sync.Mutex
	devices []*FakeDevice
	index   int
	calls   int
	err     error
}

// NewFakeDialer creates a dialer returning devs in order; the last one is
// returned again once exhausted.
func NewFakeDialer(devs ...*FakeDevice) *FakeDialer {
	return &FakeDialer{devices: devs}
}

// SetError makes subsequent dials fail with err; nil restores success.
func (d *FakeDialer) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dial implements Dialer.
func (d *FakeDialer) Dial(ctx context.Context) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	if len(d.devices) == 0 {
		return nil, errors.New("no devices configured")
	}
	dev := d.devices[d.index]
	if d.index < len(d.devices)-1 {
		d.index++
	}
	return dev, nil
}

// Calls returns how many times Dial was called.
func (d *FakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// TestPattern returns a single-channel frame with a diagonal gradient,
// which passes the variance check.
func TestPattern(width, height int) Frame {
	data := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data[y*width+x] = byte((x + y) * 7)
		}
	}
	return Frame{Width: width, Height: height, Channels: 1, Data: data}
}

// SolidFrame returns a single-channel frame of one value.
func SolidFrame(width, height int, v byte) Frame {
	data := make([]byte, width*height)
	for i := range data {
		data[i] = v
	}
	return Frame{Width: width, Height: height, Channels: 1, Data: data}
}

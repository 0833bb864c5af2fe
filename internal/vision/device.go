// Package vision binds the monitor to OpenCV: the RTSP camera device, the
// ArUco marker detector and the JPEG preview encoder.
package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/sweeney/feeding-monitor/internal/capture"
)

// ErrReadFailed is returned when the stream yields no frame.
var ErrReadFailed = errors.New("vision: read failed")

// DeviceConfig holds the stream open parameters.
type DeviceConfig struct {
	URL        string
	Width      int
	Height     int
	BufferSize int
}

// RTSPDevice is a capture.Device backed by an FFmpeg VideoCapture.
type RTSPDevice struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Open connects to the stream and applies the requested size and buffering.
func Open(cfg DeviceConfig) (*RTSPDevice, error) {
	vc, err := gocv.VideoCaptureFileWithAPI(cfg.URL, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return nil, fmt.Errorf("vision: open stream: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.New("vision: stream did not open")
	}
	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.BufferSize > 0 {
		vc.Set(gocv.VideoCaptureBufferSize, float64(cfg.BufferSize))
	}
	return &RTSPDevice{vc: vc, mat: gocv.NewMat()}, nil
}

// Dialer returns a capture.Dialer that opens cfg. Open is synchronous, so
// ctx is only checked before dialing.
func Dialer(cfg DeviceConfig) capture.Dialer {
	return func(ctx context.Context) (capture.Device, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := Open(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Read decodes the next frame.
func (d *RTSPDevice) Read() (capture.Frame, error) {
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return capture.Frame{}, ErrReadFailed
	}
	return capture.Frame{
		Width:      d.mat.Cols(),
		Height:     d.mat.Rows(),
		Channels:   d.mat.Channels(),
		Data:       d.mat.ToBytes(),
		CapturedAt: time.Now(),
	}, nil
}

// Grab skips one buffered frame.
func (d *RTSPDevice) Grab() error {
	d.vc.Grab(1)
	return nil
}

// Close releases the stream.
func (d *RTSPDevice) Close() error {
	err := d.mat.Close()
	if cerr := d.vc.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// toMat wraps f's pixels in a Mat. The caller closes it.
func toMat(f capture.Frame) (gocv.Mat, error) {
	var typ gocv.MatType
	switch f.Channels {
	case 1:
		typ = gocv.MatTypeCV8UC1
	case 3:
		typ = gocv.MatTypeCV8UC3
	case 4:
		typ = gocv.MatTypeCV8UC4
	default:
		return gocv.Mat{}, fmt.Errorf("vision: unsupported channel count %d", f.Channels)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, typ, f.Data)
}

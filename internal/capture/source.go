package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/feeding-monitor/internal/log"
)

// ErrDisconnected is returned when no camera connection is available.
var ErrDisconnected = errors.New("capture: camera disconnected")

// ErrClosed is returned by Connect once the source has been closed.
var ErrClosed = errors.New("capture: source closed")

// Config controls connection retries, draining and the failure policy.
type Config struct {
	// Width and Height are the expected frame size; zero disables the check.
	Width  int
	Height int

	MaxRetries int
	RetryDelay time.Duration

	// MaxDiscardFrames bounds how many buffered frames are dropped before
	// each read. DrainFastGrab is the longest a discard may take before the
	// buffer is considered empty.
	MaxDiscardFrames int
	DrainFastGrab    time.Duration

	// ResetFrameCount forces a reconnect after that many published frames;
	// zero disables it.
	ResetFrameCount int

	VarianceThreshold      float64
	MaxConsecutiveFailures int
	// FailureDelay is the pause after a failed read.
	FailureDelay time.Duration

	StopTimeout          time.Duration
	ReconnectLogInterval time.Duration
}

// DefaultConfig returns the production capture settings.
func DefaultConfig() Config {
	return Config{
		Width:                  1920,
		Height:                 1080,
		MaxRetries:             3,
		RetryDelay:             2 * time.Second,
		MaxDiscardFrames:       3,
		DrainFastGrab:          5 * time.Millisecond,
		VarianceThreshold:      5,
		MaxConsecutiveFailures: 3,
		FailureDelay:           100 * time.Millisecond,
		StopTimeout:            5 * time.Second,
		ReconnectLogInterval:   10 * time.Second,
	}
}

// Stats is a snapshot of the source counters.
type Stats struct {
	Connected bool
	Frames    uint64
	// Dropped counts published frames superseded before anyone read them.
	Dropped             uint64
	Failures            uint64
	ConsecutiveFailures int
	Reconnects          uint64
	Coalesced           uint64
	LastError           string
}

// Source reads frames from a Device in a background goroutine and keeps
// only the newest valid one.
type Source struct {
	cfg  Config
	dial Dialer

	// mu guards everything below it. It is never held across a device call.
	mu            sync.Mutex
	dev           Device
	retired       []Device
	connected     bool
	latest        *Frame
	seq           uint64
	stats         Stats
	lastCoalesced time.Time
	closed        bool

	reconnecting atomic.Bool
	reconnectWG  sync.WaitGroup

	cancel context.CancelFunc
	done   chan struct{}

	// Loop-only state
	sinceReset int
}

// NewSource creates a disconnected source that opens devices with dial.
func NewSource(cfg Config, dial Dialer) *Source {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.MaxConsecutiveFailures < 1 {
		cfg.MaxConsecutiveFailures = 1
	}
	return &Source{cfg: cfg, dial: dial}
}

// Connect dials the camera, retrying up to MaxRetries times with RetryDelay
// between attempts. Each attempt must yield one probe frame. On success the
// new device replaces the current one; on exhaustion the source is left
// disconnected.
func (s *Source) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		log.Info("capture: connecting", "attempt", attempt, "max_retries", s.cfg.MaxRetries)

		dev, err := s.open(ctx)
		if err == nil {
			if !s.install(dev, true) {
				return ErrClosed
			}
			log.Info("capture: camera connected")
			return nil
		}
		lastErr = err
		s.setLastError(err)
		log.Warn("capture: connection attempt failed", "attempt", attempt, "err", err)

		if attempt == s.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(s.cfg.RetryDelay):
		case <-ctx.Done():
			s.install(nil, false)
			return ctx.Err()
		}
	}

	s.install(nil, false)
	log.Error("capture: giving up after retries", "max_retries", s.cfg.MaxRetries, "err", lastErr)
	return fmt.Errorf("%w: %d attempts: %v", ErrDisconnected, s.cfg.MaxRetries, lastErr)
}

func (s *Source) open(ctx context.Context) (Device, error) {
	dev, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if _, err := dev.Read(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("probe frame: %w", err)
	}
	return dev, nil
}

// install swaps in dev. The previous device is retired and closed by the
// acquisition loop, which is the only goroutine reading from it. Once the
// source is closed nothing drains the retired list, so a late device is
// closed here and install reports false.
func (s *Source) install(dev Device, connected bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if dev != nil {
			if err := dev.Close(); err != nil {
				log.Warn("capture: closing device opened after close", "err", err)
			}
		}
		return false
	}
	defer s.mu.Unlock()
	if s.dev != nil && s.dev != dev {
		s.retired = append(s.retired, s.dev)
	}
	s.dev = dev
	s.connected = connected
	s.stats.Connected = connected
	if connected {
		s.stats.ConsecutiveFailures = 0
		s.stats.LastError = ""
	}
	return true
}

// Start launches the acquisition loop. Calling Start twice is a no-op.
func (s *Source) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil || s.closed {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.loop(ctx)
	}()
}

func (s *Source) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.captureOnce(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.FailureDelay):
		}
	}
}

// captureOnce performs one drain-read-validate cycle and reports whether a
// frame was published.
func (s *Source) captureOnce(ctx context.Context) bool {
	s.closeRetired()

	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()
	if dev == nil {
		s.fail(ctx, ErrDisconnected)
		return false
	}

	s.drain(dev)

	f, err := dev.Read()
	if err == nil {
		err = Validate(f, s.cfg.Width, s.cfg.Height, s.cfg.VarianceThreshold)
	}
	if err != nil {
		s.fail(ctx, err)
		return false
	}

	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	s.publish(f)

	if s.cfg.ResetFrameCount > 0 {
		s.sinceReset++
		if s.sinceReset >= s.cfg.ResetFrameCount {
			s.sinceReset = 0
			log.Info("capture: periodic reconnect", "frames", s.cfg.ResetFrameCount)
			s.RequestReconnect(ctx)
		}
	}
	return true
}

// drain discards buffered frames so the next Read returns a fresh one.
// A discard that blocks means the buffer is already empty.
func (s *Source) drain(dev Device) {
	for i := 0; i < s.cfg.MaxDiscardFrames; i++ {
		start := time.Now()
		if err := dev.Grab(); err != nil {
			return
		}
		if time.Since(start) > s.cfg.DrainFastGrab {
			return
		}
	}
}

func (s *Source) publish(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	f.Seq = s.seq
	if s.latest != nil {
		s.stats.Dropped++
	}
	s.latest = &f
	s.stats.Frames++
	s.stats.ConsecutiveFailures = 0
}

func (s *Source) fail(ctx context.Context, err error) {
	s.mu.Lock()
	s.stats.Failures++
	s.stats.ConsecutiveFailures++
	s.stats.LastError = err.Error()
	n := s.stats.ConsecutiveFailures
	trigger := n >= s.cfg.MaxConsecutiveFailures
	if trigger {
		s.stats.ConsecutiveFailures = 0
	}
	s.mu.Unlock()

	log.Debug("capture: frame failure", "consecutive", n, "err", err)
	if trigger {
		log.Warn("capture: too many consecutive failures", "count", n, "err", err)
		s.RequestReconnect(ctx)
	}
}

// RequestReconnect starts an asynchronous reconnect unless one is already
// running, in which case the request is counted and dropped. It reports
// whether a reconnect was started.
func (s *Source) RequestReconnect(ctx context.Context) bool {
	if !s.reconnecting.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.stats.Coalesced++
		n := s.stats.Coalesced
		now := time.Now()
		logIt := now.Sub(s.lastCoalesced) >= s.cfg.ReconnectLogInterval
		if logIt {
			s.lastCoalesced = now
		}
		s.mu.Unlock()
		if logIt {
			log.Info("capture: reconnect already in progress", "coalesced", n)
		}
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.reconnecting.Store(false)
		return false
	}
	s.stats.Reconnects++
	s.reconnectWG.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.reconnectWG.Done()
		defer s.reconnecting.Store(false)
		if err := s.Connect(ctx); err != nil {
			log.Error("capture: reconnect failed", "err", err)
		}
	}()
	return true
}

// NextFrame returns the newest frame and clears the slot, so each frame is
// handed out at most once.
func (s *Source) NextFrame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil || !s.connected {
		return Frame{}, false
	}
	f := *s.latest
	s.latest = nil
	return f, true
}

// Connected reports whether a camera connection is established.
func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Stats returns a snapshot of the counters.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Source) setLastError(err error) {
	s.mu.Lock()
	s.stats.LastError = err.Error()
	s.mu.Unlock()
}

func (s *Source) closeRetired() {
	s.mu.Lock()
	old := s.retired
	s.retired = nil
	s.mu.Unlock()
	for _, d := range old {
		if err := d.Close(); err != nil {
			log.Warn("capture: closing old device", "err", err)
		}
	}
}

// Close stops the acquisition loop, waits up to StopTimeout for it and any
// reconnect to finish, then releases the device. A loop that does not stop
// in time is logged, not returned as an error.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	finished := make(chan struct{})
	go func() {
		if done != nil {
			<-done
		}
		s.reconnectWG.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(s.cfg.StopTimeout):
		log.Error("capture: acquisition loop did not stop in time", "timeout", s.cfg.StopTimeout)
	}

	s.mu.Lock()
	devs := append(s.retired, s.dev)
	s.retired = nil
	s.dev = nil
	s.connected = false
	s.stats.Connected = false
	s.latest = nil
	s.mu.Unlock()

	var errs []error
	for _, d := range devs {
		if d == nil {
			continue
		}
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	log.Info("capture: camera released")
	return errors.Join(errs...)
}

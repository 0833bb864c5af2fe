// Package monitor runs the processing loop: it pulls frames from the
// capture source, detects markers, drives the tracker and routes the
// resulting events to the activity service, MQTT, the LED and status.
package monitor

import (
	"context"
	"time"

	"github.com/sweeney/feeding-monitor/internal/capture"
	"github.com/sweeney/feeding-monitor/internal/gpio"
	"github.com/sweeney/feeding-monitor/internal/log"
	"github.com/sweeney/feeding-monitor/internal/logic"
	"github.com/sweeney/feeding-monitor/internal/mqtt"
	"github.com/sweeney/feeding-monitor/internal/notify"
	"github.com/sweeney/feeding-monitor/internal/status"
	"github.com/sweeney/feeding-monitor/internal/telemetry"
)

// FrameSource is the consumer side of capture.Source.
type FrameSource interface {
	NextFrame() (capture.Frame, bool)
	Stats() capture.Stats
	Close() error
}

// Detector finds markers in a frame.
type Detector interface {
	Detect(f capture.Frame) ([]logic.Detection, error)
}

// Encoder compresses a frame for the preview stream.
type Encoder interface {
	Encode(f capture.Frame) ([]byte, error)
}

// PreviewSink receives encoded preview frames.
type PreviewSink interface {
	Set(jpeg []byte)
}

// Config holds the loop settings.
type Config struct {
	Tracker logic.TrackerConfig
	// PollInterval is the pause after a processed frame.
	PollInterval time.Duration
	// IdleDelay is the pause when no frame was ready.
	IdleDelay time.Duration
	// HeartbeatInterval of 0 disables heartbeats.
	HeartbeatInterval time.Duration
	// StartRetryInterval is the pause between attempts to register a
	// session whose start notification failed. Defaults to
	// DefaultStartRetryInterval.
	StartRetryInterval time.Duration
}

// DefaultStartRetryInterval is used when Config.StartRetryInterval is unset.
const DefaultStartRetryInterval = 5 * time.Second

// Deps are the collaborators of a Monitor. Source and Detector are
// required; every other field has a working default.
type Deps struct {
	Source    FrameSource
	Detector  Detector
	Notifier  *notify.Notifier
	Publisher mqtt.Publisher
	LED       gpio.Indicator
	Status    *status.Tracker
	Metrics   *telemetry.Metrics
	Encoder   Encoder
	Preview   PreviewSink
	// Network refreshes network info for heartbeats. Optional.
	Network func() *status.NetworkInfo
	// Now defaults to time.Now.
	Now func() time.Time
}

// Monitor owns the tracker and is driven from a single goroutine.
type Monitor struct {
	cfg  Config
	deps Deps

	tracker        *logic.Tracker
	lastFrame      time.Time
	lastBowl       logic.BowlSource
	lastReconnects uint64
	ledOn          bool
	ledSet         bool

	// unregistered holds sessions the tracker reports as eating whose
	// start notification failed, with the time of the last attempt.
	unregistered map[notify.Key]time.Time
}

// New creates a Monitor. The tracker clock starts at deps.Now().
func New(cfg Config, deps Deps) *Monitor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.New(nil, false, nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = mqtt.NopPublisher{}
	}
	if deps.LED == nil {
		deps.LED = gpio.NopIndicator{}
	}
	if cfg.StartRetryInterval <= 0 {
		cfg.StartRetryInterval = DefaultStartRetryInterval
	}
	start := deps.Now()
	if deps.Status == nil {
		deps.Status = status.NewTracker(start, status.Config{})
	}
	return &Monitor{
		cfg:      cfg,
		deps:     deps,
		tracker:  logic.NewTracker(cfg.Tracker, start),
		lastBowl: logic.BowlNone,

		unregistered: make(map[notify.Key]time.Time),
	}
}

// Tracker exposes the tracker for inspection. It must only be used from the
// loop goroutine.
func (m *Monitor) Tracker() *logic.Tracker {
	return m.tracker
}

// Startup publishes the retained STARTUP event.
func (m *Monitor) Startup() {
	m.refreshStatus()
	snap := m.deps.Status.Snapshot()
	m.publishSystem(mqtt.SystemEvent{
		Timestamp:  m.deps.Now(),
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})
}

// Run calls Tick until ctx is cancelled, pausing PollInterval after a
// processed frame and IdleDelay otherwise. It returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info("monitor: started",
		"enter", m.cfg.Tracker.Machine.EnterThreshold,
		"exit", m.cfg.Tracker.Machine.ExitThreshold,
		"heartbeat", m.cfg.HeartbeatInterval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		delay := m.cfg.IdleDelay
		if m.Tick(ctx) {
			delay = m.cfg.PollInterval
		}
		timer.Reset(delay)
	}
}

// Tick processes at most one frame, then sweeps inactive animals and
// refreshes status, LED and heartbeat. It reports whether a frame was
// processed.
func (m *Monitor) Tick(ctx context.Context) bool {
	now := m.deps.Now()

	f, ok := m.deps.Source.NextFrame()
	if ok {
		m.process(ctx, f, now)
	}

	m.handle(ctx, m.tracker.Sweep(now))
	m.retryStarts(ctx, now)
	m.deps.Status.Update(m.lastFrame, m.tracker.Animals(), m.tracker.Cache(now), m.lastBowl, m.tracker.Counts())
	m.refreshStatus()
	m.updateLED()
	m.checkHeartbeat(now)
	return ok
}

func (m *Monitor) process(ctx context.Context, f capture.Frame, now time.Time) {
	dets, err := m.deps.Detector.Detect(f)
	if err != nil {
		log.Warn("monitor: detection failed", "seq", f.Seq, "err", err)
		return
	}
	m.lastFrame = now
	m.deps.Metrics.FrameProcessed(ctx)

	var animals, landmarks int
	for _, d := range dets {
		if d.Kind == logic.KindLandmark {
			landmarks++
		} else {
			animals++
		}
	}
	m.deps.Metrics.Detections(ctx, logic.KindAnimal.String(), animals)
	m.deps.Metrics.Detections(ctx, logic.KindLandmark.String(), landmarks)

	res := m.tracker.Update(dets, now)
	if res.Bowl == logic.BowlNone && animals > 0 {
		log.Debug("monitor: no bowl position, animals skipped", "animals", animals)
	}
	m.lastBowl = res.Bowl
	m.handle(ctx, res.Events)

	if m.deps.Encoder != nil && m.deps.Preview != nil {
		jpeg, err := m.deps.Encoder.Encode(f)
		if err != nil {
			log.Debug("monitor: preview encode failed", "err", err)
			return
		}
		m.deps.Preview.Set(jpeg)
	}
}

// handle routes events in order. Failures are logged and counted; they
// never stop the loop.
func (m *Monitor) handle(ctx context.Context, events []logic.Event) {
	if len(events) == 0 {
		return
	}
	n := m.deps.Notifier
	for _, e := range events {
		log.Info("monitor: event",
			"type", e.Type,
			"entity_id", e.EntityID,
			"landmark", e.Landmark,
			"duration", e.Duration)
		m.deps.Metrics.Event(ctx, string(e.Type))

		key := notify.Key{EntityID: e.EntityID, ActivityType: e.ActivityType}
		_, unregistered := m.unregistered[key]
		if unregistered && e.Type != logic.EventStart {
			delete(m.unregistered, key)
			log.Warn("monitor: session ended before its start was recorded",
				"entity_id", e.EntityID, "type", e.Type)
		}

		var err error
		switch {
		case e.Type == logic.EventStart:
			err = n.OnStart(ctx, e.EntityID, e.ActivityType, e.StartedAt)
			if err != nil && n.Enabled() {
				m.unregistered[key] = e.Timestamp
			}
		case e.Type == logic.EventDiscarded:
			n.Discard(e.EntityID, e.ActivityType)
			continue
		case unregistered:
			// Nothing was created at the service, so there is nothing to finish.
		case e.Type == logic.EventEnd:
			err = n.OnEnd(ctx, e.EntityID, e.ActivityType, e.StartedAt, e.Timestamp)
		case e.Type == logic.EventForcedEnd:
			err = n.ForceEnd(ctx, e.EntityID, e.ActivityType, e.Timestamp)
		}
		if err != nil {
			m.deps.Metrics.NotifyError(ctx, string(e.Type))
		}

		if err := m.deps.Publisher.Publish(e); err != nil {
			log.Warn("monitor: mqtt publish failed", "type", e.Type, "err", err)
		}
	}
	m.deps.Status.SetActiveActivities(len(n.Active()))
}

// retryStarts re-issues failed start notifications for sessions that are
// still open, at most once per StartRetryInterval each.
func (m *Monitor) retryStarts(ctx context.Context, now time.Time) {
	if len(m.unregistered) == 0 {
		return
	}
	started := make(map[int]time.Time)
	for _, a := range m.tracker.Animals() {
		if a.State == logic.StateEating {
			started[a.ID] = a.StartedAt
		}
	}
	for key, last := range m.unregistered {
		startedAt, ok := started[key.EntityID]
		if !ok {
			delete(m.unregistered, key)
			continue
		}
		if now.Sub(last) < m.cfg.StartRetryInterval {
			continue
		}
		if err := m.deps.Notifier.OnStart(ctx, key.EntityID, key.ActivityType, startedAt); err != nil {
			m.unregistered[key] = now
			m.deps.Metrics.NotifyError(ctx, string(logic.EventStart))
			continue
		}
		delete(m.unregistered, key)
		log.Info("monitor: session registered after retry", "entity_id", key.EntityID, "started_at", startedAt)
	}
	m.deps.Status.SetActiveActivities(len(m.deps.Notifier.Active()))
}

func (m *Monitor) refreshStatus() {
	stats := m.deps.Source.Stats()
	if stats.Reconnects > m.lastReconnects {
		m.deps.Metrics.Reconnects(context.Background(), int64(stats.Reconnects-m.lastReconnects))
		m.lastReconnects = stats.Reconnects
	}
	m.deps.Status.SetCamera(stats)
	if cs, ok := m.deps.Publisher.(mqtt.ConnectionStatus); ok {
		m.deps.Status.SetMQTTConnected(cs.IsConnected())
	}
}

func (m *Monitor) updateLED() {
	on := m.tracker.Eating() > 0
	if m.ledSet && on == m.ledOn {
		return
	}
	if err := m.deps.LED.Set(on); err != nil {
		log.Warn("monitor: set LED", "on", on, "err", err)
		return
	}
	m.ledOn, m.ledSet = on, true
}

func (m *Monitor) checkHeartbeat(now time.Time) {
	hb := m.tracker.CheckHeartbeat(now, m.cfg.HeartbeatInterval)
	if hb == nil {
		return
	}
	log.Info("monitor: heartbeat",
		"uptime", hb.Uptime,
		"animals", hb.Animals,
		"eating", hb.Eating,
		"starts", hb.Counts.Starts,
		"ends", hb.Counts.Ends,
		"forced_ends", hb.Counts.ForcedEnds,
		"discarded", hb.Counts.Discarded)

	if m.deps.Network != nil {
		if net := m.deps.Network(); net != nil {
			m.deps.Status.SetNetwork(net)
		}
	}
	snap := m.deps.Status.Snapshot()
	m.publishSystem(mqtt.SystemEvent{
		Timestamp:  hb.Timestamp,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	})
}

// Shutdown stops capture, closes every open activity at the service, turns
// the LED off and publishes the retained SHUTDOWN event. Individual
// failures are logged.
func (m *Monitor) Shutdown(ctx context.Context, reason string) {
	log.Info("monitor: shutting down", "reason", reason)

	if err := m.deps.Source.Close(); err != nil {
		log.Warn("monitor: closing frame source", "err", err)
	}

	now := m.deps.Now()
	if open := len(m.deps.Notifier.Active()); open > 0 {
		closed := m.deps.Notifier.CleanupAll(ctx, now)
		log.Info("monitor: closed open activities", "closed", closed, "open", open)
	}

	if err := m.deps.LED.Close(); err != nil {
		log.Warn("monitor: closing LED", "err", err)
	}

	m.deps.Status.SetActiveActivities(len(m.deps.Notifier.Active()))
	m.refreshStatus()
	snap := m.deps.Status.Snapshot()
	m.publishSystem(mqtt.SystemEvent{
		Timestamp:  now,
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	})
}

func (m *Monitor) publishSystem(e mqtt.SystemEvent) {
	if err := m.deps.Publisher.PublishSystem(e); err != nil {
		log.Warn("monitor: publish system event failed", "event", e.Event, "err", err)
		return
	}
	log.Debug("monitor: published system event", "event", e.Event)
}

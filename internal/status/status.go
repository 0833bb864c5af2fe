// Package status provides a thread-safe status tracker for the feeding monitor.
// It is written by the monitor loop and read by HTTP handlers and MQTT
// lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/feeding-monitor/internal/capture"
	"github.com/sweeney/feeding-monitor/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	BowlMarkerID     int
	EnterThreshold   float64
	ExitThreshold    float64
	WindowSize       int
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
	APIEnabled       bool
	StreamingEnabled bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Animals          []logic.AnimalStatus
	Bowl             logic.CacheInfo
	BowlSource       logic.BowlSource
	Counts           logic.EventCounts
	Camera           capture.Stats
	ActiveActivities int
	LastFrame        time.Time
	StartTime        time.Time
	Now              time.Time
	MQTTConnected    bool
	Network          *NetworkInfo
	Config           Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Eating returns the number of animals currently eating.
func (s Snapshot) Eating() int {
	n := 0
	for _, a := range s.Animals {
		if a.State == logic.StateEating {
			n++
		}
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:  startTime,
			BowlSource: logic.BowlNone,
			Config:     cfg,
		},
	}
}

// Update records the result of one processed frame.
func (t *Tracker) Update(at time.Time, animals []logic.AnimalStatus, bowl logic.CacheInfo, source logic.BowlSource, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.LastFrame = at
	t.snap.Animals = animals
	t.snap.Bowl = bowl
	t.snap.BowlSource = source
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetCamera sets the frame source statistics.
func (t *Tracker) SetCamera(stats capture.Stats) {
	t.mu.Lock()
	t.snap.Camera = stats
	t.mu.Unlock()
}

// SetActiveActivities sets the number of activities open at the service.
func (t *Tracker) SetActiveActivities(n int) {
	t.mu.Lock()
	t.snap.ActiveActivities = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Animals = append([]logic.AnimalStatus(nil), t.snap.Animals...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

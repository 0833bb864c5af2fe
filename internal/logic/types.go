// Package logic contains pure business logic for feeding-session tracking.
// This package has NO external dependencies (no camera, HTTP, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"time"

	"github.com/sweeney/feeding-monitor/internal/geom"
)

// Kind tags a detected entity as the fixed landmark or a mobile subject.
type Kind int

const (
	KindAnimal Kind = iota
	KindLandmark
)

func (k Kind) String() string {
	if k == KindLandmark {
		return "landmark"
	}
	return "animal"
}

// Detection is one marker found in a frame.
type Detection struct {
	ID       int
	Kind     Kind
	Position geom.Vec3
}

// State represents the debounced feeding state of one animal at the bowl.
type State string

const (
	StateNotEating State = "NOT_EATING"
	StateEating    State = "EATING"
)

// ActivityEating is the internal activity type produced by the tracker.
const ActivityEating = "eating"

// EventType represents a feeding-session lifecycle event.
type EventType string

const (
	// EventStart is emitted when an animal is confirmed eating.
	EventStart EventType = "ACTIVITY_START"
	// EventEnd is emitted when an animal is confirmed to have left the bowl.
	EventEnd EventType = "ACTIVITY_END"
	// EventForcedEnd is emitted by the sweep for an evicted animal whose
	// session lasted long enough to be recorded.
	EventForcedEnd EventType = "ACTIVITY_FORCED_END"
	// EventDiscarded is emitted by the sweep for an evicted animal whose
	// session was too short to be recorded. It must not reach the API.
	EventDiscarded EventType = "ACTIVITY_DISCARDED"
)

// Event represents a feeding-session transition to be reported.
type Event struct {
	Timestamp    time.Time
	Type         EventType
	EntityID     int
	Landmark     string
	ActivityType string
	StartedAt    time.Time
	// Duration is zero for EventStart.
	Duration time.Duration
}

// BowlSource describes where the bowl position for a tick came from.
type BowlSource string

const (
	BowlNone   BowlSource = "none"
	BowlLive   BowlSource = "live"
	BowlCached BowlSource = "cached"
)

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Starts     int
	Ends       int
	ForcedEnds int
	Discarded  int
	Evicted    int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
	Animals   int
	Eating    int
}

// AnimalStatus is a read-only view of one tracked animal.
type AnimalStatus struct {
	ID           int
	State        State
	StartedAt    time.Time
	MeanDistance float64
	Samples      int
	LastSeen     time.Time
}

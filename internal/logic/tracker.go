package logic

import (
	"sort"
	"time"

	"github.com/sweeney/feeding-monitor/internal/geom"
)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Machine MachineConfig
	Cache   CacheConfig
	// BowlID is the marker id of the landmark.
	BowlID int
	// Landmark is the name reported on events.
	Landmark string
	// InactivityTimeout is how long an animal may go unseen before the
	// sweep evicts it.
	InactivityTimeout time.Duration
	// MinActivityDuration is the shortest session the sweep reports as a
	// forced end; shorter ones are discarded.
	MinActivityDuration time.Duration
}

// DefaultTrackerConfig returns the production tracker settings.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Machine:             DefaultMachineConfig(),
		Cache:               DefaultCacheConfig(),
		BowlID:              0,
		Landmark:            "bowl",
		InactivityTimeout:   5 * time.Second,
		MinActivityDuration: 5 * time.Second,
	}
}

// Result is the outcome of one Update.
type Result struct {
	Events []Event
	Bowl   BowlSource
	// BowlPosition is valid unless Bowl is BowlNone.
	BowlPosition geom.Vec3
}

type animal struct {
	machine  *EatingMachine
	lastSeen time.Time
}

// Tracker owns the bowl cache and one EatingMachine per animal.
// Not safe for concurrent use.
type Tracker struct {
	cfg     TrackerConfig
	cache   *BowlCache
	animals map[int]*animal

	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewTracker creates a tracker with no animals. The startTime is used for
// calculating uptime in heartbeat events.
func NewTracker(cfg TrackerConfig, startTime time.Time) *Tracker {
	if cfg.Landmark == "" {
		cfg.Landmark = "bowl"
	}
	return &Tracker{
		cfg:           cfg,
		cache:         NewBowlCache(cfg.Cache),
		animals:       make(map[int]*animal),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Update feeds one frame's detections into the tracker.
// The bowl position comes from a live detection when present, otherwise
// from the cache. Every detected animal is marked as seen; distance samples
// are only taken when a bowl position is available.
func (t *Tracker) Update(dets []Detection, now time.Time) Result {
	res := Result{Bowl: BowlNone}

	for _, d := range dets {
		if d.Kind == KindLandmark && d.ID == t.cfg.BowlID {
			t.cache.Observe(d.Position, now)
			res.Bowl = BowlLive
			res.BowlPosition = d.Position
			break
		}
	}
	if res.Bowl == BowlNone {
		if pos, ok := t.cache.Get(now); ok {
			res.Bowl = BowlCached
			res.BowlPosition = pos
		}
	}

	for _, d := range dets {
		if d.Kind != KindAnimal {
			continue
		}
		a := t.animals[d.ID]
		if a == nil {
			a = &animal{machine: NewEatingMachine(t.cfg.Machine)}
			t.animals[d.ID] = a
		}
		a.lastSeen = now

		if res.Bowl == BowlNone {
			continue
		}
		tr := a.machine.Process(geom.Distance(d.Position, res.BowlPosition), now)
		if tr == nil {
			continue
		}
		e := Event{
			Timestamp:    now,
			EntityID:     d.ID,
			Landmark:     t.cfg.Landmark,
			ActivityType: ActivityEating,
			StartedAt:    tr.StartedAt,
		}
		if tr.To == StateEating {
			e.Type = EventStart
		} else {
			e.Type = EventEnd
			e.Duration = tr.Duration
		}
		t.count(e.Type)
		res.Events = append(res.Events, e)
	}

	return res
}

// Sweep evicts animals unseen for longer than InactivityTimeout. An animal
// evicted while eating yields EventForcedEnd when the session reached
// MinActivityDuration, EventDiscarded otherwise. Events are ordered by id.
func (t *Tracker) Sweep(now time.Time) []Event {
	var stale []int
	for id, a := range t.animals {
		if now.Sub(a.lastSeen) > t.cfg.InactivityTimeout {
			stale = append(stale, id)
		}
	}
	sort.Ints(stale)

	var events []Event
	for _, id := range stale {
		a := t.animals[id]
		if started, eating := a.machine.StartedAt(); eating {
			e := Event{
				Timestamp:    now,
				Type:         EventForcedEnd,
				EntityID:     id,
				Landmark:     t.cfg.Landmark,
				ActivityType: ActivityEating,
				StartedAt:    started,
				Duration:     now.Sub(started),
			}
			if e.Duration < t.cfg.MinActivityDuration {
				e.Type = EventDiscarded
			}
			t.count(e.Type)
			events = append(events, e)
		}
		delete(t.animals, id)
		t.eventCounts.Evicted++
	}
	return events
}

func (t *Tracker) count(et EventType) {
	switch et {
	case EventStart:
		t.eventCounts.Starts++
	case EventEnd:
		t.eventCounts.Ends++
	case EventForcedEnd:
		t.eventCounts.ForcedEnds++
	case EventDiscarded:
		t.eventCounts.Discarded++
	}
}

// Animals returns the tracked animals ordered by id.
func (t *Tracker) Animals() []AnimalStatus {
	out := make([]AnimalStatus, 0, len(t.animals))
	for id, a := range t.animals {
		started, _ := a.machine.StartedAt()
		out = append(out, AnimalStatus{
			ID:           id,
			State:        a.machine.State(),
			StartedAt:    started,
			MeanDistance: a.machine.Mean(),
			Samples:      a.machine.Samples(),
			LastSeen:     a.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Eating returns the number of animals currently eating.
func (t *Tracker) Eating() int {
	n := 0
	for _, a := range t.animals {
		if a.machine.State() == StateEating {
			n++
		}
	}
	return n
}

// Cache returns a snapshot of the bowl cache.
func (t *Tracker) Cache(now time.Time) CacheInfo {
	return t.cache.Info(now)
}

// Counts returns the event counts since startup.
func (t *Tracker) Counts() EventCounts {
	return t.eventCounts
}

// Landmark returns the configured landmark name.
func (t *Tracker) Landmark() string {
	return t.cfg.Landmark
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (t *Tracker) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(t.lastHeartbeat) < interval {
		return nil
	}

	t.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(t.startTime),
		Counts:    t.eventCounts,
		Animals:   len(t.animals),
		Eating:    t.Eating(),
	}
}

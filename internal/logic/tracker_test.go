package logic

import (
	"testing"
	"time"

	"github.com/sweeney/feeding-monitor/internal/geom"
)

func testTrackerConfig() TrackerConfig {
	cfg := DefaultTrackerConfig()
	cfg.Machine = MachineConfig{
		EnterThreshold: 0.15,
		ExitThreshold:  0.20,
		MinTimeStart:   time.Second,
		MinTimeStop:    time.Second,
		WindowSize:     1,
	}
	cfg.Cache.ConfidenceThreshold = 1
	cfg.InactivityTimeout = 5 * time.Second
	cfg.MinActivityDuration = 10 * time.Second
	return cfg
}

func bowl(pos geom.Vec3) Detection {
	return Detection{ID: 0, Kind: KindLandmark, Position: pos}
}

func cat(id int, x float64) Detection {
	return Detection{ID: id, Kind: KindAnimal, Position: geom.Vec3{X: x}}
}

// run updates the tracker every tick in [from, to) and collects events.
func run(tr *Tracker, from, to int, dets ...Detection) []Event {
	var out []Event
	for i := from; i < to; i++ {
		out = append(out, tr.Update(dets, at(i)).Events...)
	}
	return out
}

func TestTrackerStartEvent(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	events := run(tr, 0, 20, bowl(geom.Vec3{}), cat(7, 0.05))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Type != EventStart {
		t.Errorf("type: got %s, want %s", e.Type, EventStart)
	}
	if e.EntityID != 7 {
		t.Errorf("entity: got %d, want 7", e.EntityID)
	}
	if e.ActivityType != ActivityEating || e.Landmark != "bowl" {
		t.Errorf("activity/landmark: got %s/%s", e.ActivityType, e.Landmark)
	}
	if !e.Timestamp.Equal(at(10)) || !e.StartedAt.Equal(at(10)) {
		t.Errorf("timestamp: got %v, want %v", e.Timestamp, at(10))
	}
	if tr.Eating() != 1 {
		t.Errorf("eating: got %d, want 1", tr.Eating())
	}
	if tr.Counts().Starts != 1 {
		t.Errorf("starts: got %d, want 1", tr.Counts().Starts)
	}
}

func TestTrackerEndEvent(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	run(tr, 0, 20, bowl(geom.Vec3{}), cat(7, 0.05))
	events := run(tr, 20, 40, bowl(geom.Vec3{}), cat(7, 1.0))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Type != EventEnd {
		t.Errorf("type: got %s, want %s", e.Type, EventEnd)
	}
	if !e.Timestamp.Equal(at(30)) {
		t.Errorf("timestamp: got %v, want %v", e.Timestamp, at(30))
	}
	if e.Duration != 2*time.Second {
		t.Errorf("duration: got %v, want 2s", e.Duration)
	}
	if !e.StartedAt.Equal(at(10)) {
		t.Errorf("started at: got %v, want %v", e.StartedAt, at(10))
	}
}

func TestTrackerUsesCachedBowl(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	res := tr.Update([]Detection{bowl(geom.Vec3{X: 0.5})}, at(0))
	if res.Bowl != BowlLive {
		t.Errorf("bowl source: got %s, want %s", res.Bowl, BowlLive)
	}

	// Bowl no longer detected; cat sits right next to where it was
	var events []Event
	for i := 1; i < 20; i++ {
		res = tr.Update([]Detection{cat(3, 0.55)}, at(i))
		if res.Bowl != BowlCached {
			t.Fatalf("tick %d: bowl source got %s, want %s", i, res.Bowl, BowlCached)
		}
		events = append(events, res.Events...)
	}
	if len(events) != 1 || events[0].Type != EventStart {
		t.Fatalf("expected one start from cached bowl, got %v", events)
	}
}

func TestTrackerNoBowlSkipsDistance(t *testing.T) {
	cfg := testTrackerConfig()
	cfg.Cache.ConfidenceThreshold = 5
	tr := NewTracker(cfg, epoch)

	// Two detections are not enough to trust the cache
	tr.Update([]Detection{bowl(geom.Vec3{})}, at(0))
	tr.Update([]Detection{bowl(geom.Vec3{})}, at(1))

	var events []Event
	for i := 2; i < 40; i++ {
		res := tr.Update([]Detection{cat(3, 0.01)}, at(i))
		if res.Bowl != BowlNone {
			t.Fatalf("bowl source: got %s, want %s", res.Bowl, BowlNone)
		}
		events = append(events, res.Events...)
	}
	if len(events) != 0 {
		t.Errorf("expected no events without a bowl, got %d", len(events))
	}

	animals := tr.Animals()
	if len(animals) != 1 || animals[0].ID != 3 {
		t.Fatalf("animals: got %+v", animals)
	}
	if animals[0].Samples != 0 {
		t.Errorf("samples: got %d, want 0", animals[0].Samples)
	}
	if !animals[0].LastSeen.Equal(at(39)) {
		t.Errorf("last seen: got %v, want %v", animals[0].LastSeen, at(39))
	}
}

func TestTrackerIgnoresOtherLandmarks(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	other := Detection{ID: 42, Kind: KindLandmark, Position: geom.Vec3{}}
	res := tr.Update([]Detection{other, cat(1, 0.01)}, at(0))
	if res.Bowl != BowlNone {
		t.Errorf("bowl source: got %s, want %s", res.Bowl, BowlNone)
	}
}

func TestTrackerIndependentAnimals(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	events := run(tr, 0, 20, bowl(geom.Vec3{}), cat(1, 0.05), cat(2, 2.0))
	if len(events) != 1 || events[0].EntityID != 1 {
		t.Fatalf("expected only animal 1 to start, got %+v", events)
	}
	if len(tr.Animals()) != 2 {
		t.Errorf("animals: got %d, want 2", len(tr.Animals()))
	}
}

func TestSweepForcedEnd(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	// Starts at 1.0s, last seen at 9.9s
	run(tr, 0, 100, bowl(geom.Vec3{}), cat(7, 0.05))

	if events := tr.Sweep(at(149)); len(events) != 0 {
		t.Fatalf("sweep at exactly the timeout should not evict, got %d events", len(events))
	}
	if len(tr.Animals()) != 1 {
		t.Fatal("animal evicted too early")
	}

	events := tr.Sweep(at(150))
	if len(events) != 1 {
		t.Fatalf("expected 1 forced end, got %d", len(events))
	}
	e := events[0]
	if e.Type != EventForcedEnd {
		t.Errorf("type: got %s, want %s", e.Type, EventForcedEnd)
	}
	if e.Duration != 14*time.Second {
		t.Errorf("duration: got %v, want 14s", e.Duration)
	}
	if !e.StartedAt.Equal(at(10)) {
		t.Errorf("started at: got %v, want %v", e.StartedAt, at(10))
	}
	if len(tr.Animals()) != 0 {
		t.Error("animal should be evicted")
	}
	if got := tr.Sweep(at(200)); len(got) != 0 {
		t.Errorf("second sweep: got %d events, want 0", len(got))
	}

	c := tr.Counts()
	if c.ForcedEnds != 1 || c.Evicted != 1 {
		t.Errorf("counts: got %+v", c)
	}
}

func TestSweepDiscardsShortActivity(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	// Starts at 1.0s, last seen at 2.9s
	run(tr, 0, 30, bowl(geom.Vec3{}), cat(7, 0.05))

	events := tr.Sweep(at(80))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventDiscarded {
		t.Errorf("type: got %s, want %s", events[0].Type, EventDiscarded)
	}
	if len(tr.Animals()) != 0 {
		t.Error("animal should be evicted")
	}
	if tr.Counts().Discarded != 1 {
		t.Errorf("discarded: got %d, want 1", tr.Counts().Discarded)
	}
}

func TestSweepEvictsIdleAnimalSilently(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	run(tr, 0, 5, bowl(geom.Vec3{}), cat(7, 3.0))
	if events := tr.Sweep(at(100)); len(events) != 0 {
		t.Errorf("expected no events for a non-eating animal, got %d", len(events))
	}
	if len(tr.Animals()) != 0 {
		t.Error("animal should be evicted")
	}
}

func TestSweepOrderedByID(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	run(tr, 0, 150, bowl(geom.Vec3{}), cat(9, 0.05), cat(2, 0.05), cat(5, 0.05))
	events := tr.Sweep(at(300))
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []int{2, 5, 9} {
		if events[i].EntityID != want {
			t.Errorf("event %d: got entity %d, want %d", i, events[i].EntityID, want)
		}
	}
}

func TestTrackerHeartbeat(t *testing.T) {
	tr := NewTracker(testTrackerConfig(), epoch)

	if hb := tr.CheckHeartbeat(epoch.Add(time.Minute), 0); hb != nil {
		t.Error("zero interval should disable heartbeat")
	}
	if hb := tr.CheckHeartbeat(epoch.Add(59*time.Second), time.Minute); hb != nil {
		t.Error("heartbeat before interval")
	}

	run(tr, 0, 20, bowl(geom.Vec3{}), cat(7, 0.05))

	hb := tr.CheckHeartbeat(epoch.Add(time.Minute), time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != time.Minute {
		t.Errorf("uptime: got %v, want 1m", hb.Uptime)
	}
	if hb.Counts.Starts != 1 || hb.Animals != 1 || hb.Eating != 1 {
		t.Errorf("heartbeat data: got %+v", hb)
	}
	if again := tr.CheckHeartbeat(epoch.Add(90*time.Second), time.Minute); again != nil {
		t.Error("heartbeat interval should restart from the last heartbeat")
	}
	if next := tr.CheckHeartbeat(epoch.Add(2*time.Minute), time.Minute); next == nil {
		t.Error("expected second heartbeat")
	}
}

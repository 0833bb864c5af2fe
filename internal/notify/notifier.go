// Package notify reports feeding-session starts and ends to the activity
// service, keeping the id of every activity it has opened.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/feeding-monitor/internal/log"
)

// ErrNoActiveActivity is returned when an end is reported for a key that
// has no open activity.
var ErrNoActiveActivity = errors.New("notify: no active activity")

// Recorder is the remote activity store.
type Recorder interface {
	CreateActivity(ctx context.Context, entityID int, title string, startedAt time.Time) (int64, error)
	FinishActivity(ctx context.Context, activityID int64, endedAt time.Time) error
}

// Key identifies an open activity.
type Key struct {
	EntityID     int
	ActivityType string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.EntityID, k.ActivityType)
}

// DefaultMapping maps internal activity types to service titles.
func DefaultMapping() map[string]string {
	return map[string]string{
		"eating":   "eat",
		"drinking": "drink",
		"sleeping": "sleep",
		"playing":  "play",
	}
}

// Notifier turns lifecycle transitions into service calls. At most one
// activity is open per Key. Safe for concurrent use; the lock is never held
// across a Recorder call.
type Notifier struct {
	rec     Recorder
	enabled bool
	mapping map[string]string

	mu       sync.Mutex
	active   map[Key]int64
	inflight map[Key]bool
}

// New creates a Notifier. When enabled is false every operation succeeds
// without calling rec or keeping state.
func New(rec Recorder, enabled bool, mapping map[string]string) *Notifier {
	if mapping == nil {
		mapping = DefaultMapping()
	}
	return &Notifier{
		rec:      rec,
		enabled:  enabled && rec != nil,
		mapping:  mapping,
		active:   make(map[Key]int64),
		inflight: make(map[Key]bool),
	}
}

// Enabled reports whether notifications are sent.
func (n *Notifier) Enabled() bool {
	return n.enabled
}

// Title returns the service title for an activity type.
func (n *Notifier) Title(activityType string) string {
	if t, ok := n.mapping[activityType]; ok {
		return t
	}
	return activityType
}

// OnStart opens an activity. A second start for an open key is ignored.
// On failure no state is kept, so a later start may retry.
func (n *Notifier) OnStart(ctx context.Context, entityID int, activityType string, ts time.Time) error {
	if !n.enabled {
		return nil
	}
	key := Key{EntityID: entityID, ActivityType: activityType}

	n.mu.Lock()
	if id, ok := n.active[key]; ok || n.inflight[key] {
		n.mu.Unlock()
		log.Warn("notify: activity already open", "key", key.String(), "activity_id", id)
		return nil
	}
	n.inflight[key] = true
	n.mu.Unlock()

	id, err := n.rec.CreateActivity(ctx, entityID, n.Title(activityType), ts)

	n.mu.Lock()
	delete(n.inflight, key)
	if err == nil {
		n.active[key] = id
	}
	n.mu.Unlock()

	if err != nil {
		log.Error("notify: create activity failed", "key", key.String(), "err", err)
		return fmt.Errorf("notify: start %s: %w", key, err)
	}
	log.Info("notify: activity opened", "key", key.String(), "activity_id", id)
	return nil
}

// OnEnd closes the open activity for the key at end.
func (n *Notifier) OnEnd(ctx context.Context, entityID int, activityType string, start, end time.Time) error {
	if !n.enabled {
		return nil
	}
	err := n.finish(ctx, Key{EntityID: entityID, ActivityType: activityType}, end)
	if err == nil {
		log.Info("notify: activity closed", "entity_id", entityID, "duration", end.Sub(start))
	}
	return err
}

// ForceEnd closes the open activity for the key at ts, used when the
// animal disappears mid-session.
func (n *Notifier) ForceEnd(ctx context.Context, entityID int, activityType string, ts time.Time) error {
	if !n.enabled {
		return nil
	}
	err := n.finish(ctx, Key{EntityID: entityID, ActivityType: activityType}, ts)
	if err == nil {
		log.Info("notify: activity force-closed", "entity_id", entityID)
	}
	return err
}

// Discard forgets the open activity for the key without calling the
// service. It reports whether one was open.
func (n *Notifier) Discard(entityID int, activityType string) bool {
	if !n.enabled {
		return false
	}
	key := Key{EntityID: entityID, ActivityType: activityType}
	n.mu.Lock()
	id, ok := n.active[key]
	delete(n.active, key)
	n.mu.Unlock()
	if ok {
		log.Info("notify: activity discarded", "key", key.String(), "activity_id", id)
	}
	return ok
}

func (n *Notifier) finish(ctx context.Context, key Key, ts time.Time) error {
	n.mu.Lock()
	id, ok := n.active[key]
	n.mu.Unlock()
	if !ok {
		log.Error("notify: end without matching start", "key", key.String())
		return fmt.Errorf("%w: %s", ErrNoActiveActivity, key)
	}

	if err := n.rec.FinishActivity(ctx, id, ts); err != nil {
		log.Error("notify: finish activity failed", "key", key.String(), "activity_id", id, "err", err)
		return fmt.Errorf("notify: end %s: %w", key, err)
	}

	n.mu.Lock()
	if n.active[key] == id {
		delete(n.active, key)
	}
	n.mu.Unlock()
	return nil
}

// CleanupAll closes every open activity at ts and returns how many were
// closed. Failures are logged and left open.
func (n *Notifier) CleanupAll(ctx context.Context, ts time.Time) int {
	if !n.enabled {
		return 0
	}
	snapshot := n.Active()
	if len(snapshot) == 0 {
		return 0
	}

	keys := make([]Key, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].EntityID != keys[j].EntityID {
			return keys[i].EntityID < keys[j].EntityID
		}
		return keys[i].ActivityType < keys[j].ActivityType
	})

	closed := 0
	for _, key := range keys {
		id := snapshot[key]
		if err := n.rec.FinishActivity(ctx, id, ts); err != nil {
			log.Error("notify: cleanup failed", "key", key.String(), "activity_id", id, "err", err)
			continue
		}
		n.mu.Lock()
		if n.active[key] == id {
			delete(n.active, key)
		}
		n.mu.Unlock()
		closed++
	}
	log.Info("notify: cleanup complete", "closed", closed, "open", len(keys)-closed)
	return closed
}

// Active returns a copy of the open activities.
func (n *Notifier) Active() map[Key]int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[Key]int64, len(n.active))
	for k, v := range n.active {
		out[k] = v
	}
	return out
}

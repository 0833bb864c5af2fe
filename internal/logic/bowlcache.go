package logic

import (
	"time"

	"github.com/sweeney/feeding-monitor/internal/geom"
)

// detectionCountCeiling bounds detectionCount; on reaching it the count is
// halved and the reliable flag kept.
const detectionCountCeiling = 100000

// CacheConfig controls the bowl position cache.
type CacheConfig struct {
	Enabled             bool
	UpdateInterval      time.Duration
	MaxAge              time.Duration
	ConfidenceThreshold int
}

// DefaultCacheConfig returns the production cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:             true,
		UpdateInterval:      10 * time.Second,
		MaxAge:              300 * time.Second,
		ConfidenceThreshold: 5,
	}
}

// CacheInfo is a point-in-time view of the cache for status output.
type CacheInfo struct {
	HasPosition    bool
	Reliable       bool
	DetectionCount int
	Position       geom.Vec3
	// Age is the time since the last detection; zero when never detected.
	Age time.Duration
	// SinceUpdate is the time since the cached position was refreshed.
	SinceUpdate time.Duration
}

// BowlCache holds the last trusted bowl position so distances can still be
// computed while the bowl marker is momentarily not detected.
type BowlCache struct {
	cfg CacheConfig

	position       geom.Vec3
	hasPosition    bool
	lastDetectedAt time.Time
	lastUpdatedAt  time.Time
	detectionCount int
	reliable       bool
}

// NewBowlCache creates an empty cache.
func NewBowlCache(cfg CacheConfig) *BowlCache {
	return &BowlCache{cfg: cfg}
}

// Observe records a live detection of the bowl at pos.
// Every call counts toward confidence; the stored position is refreshed at
// most once per UpdateInterval.
func (c *BowlCache) Observe(pos geom.Vec3, now time.Time) {
	c.detectionCount++
	if c.detectionCount >= detectionCountCeiling {
		c.detectionCount = detectionCountCeiling / 2
	}
	c.lastDetectedAt = now

	if !c.hasPosition || now.Sub(c.lastUpdatedAt) >= c.cfg.UpdateInterval {
		c.position = pos
		c.hasPosition = true
		c.lastUpdatedAt = now
	}

	if !c.reliable && c.detectionCount >= c.cfg.ConfidenceThreshold {
		c.reliable = true
	}
}

// Get returns the cached position if it is reliable and not stale.
func (c *BowlCache) Get(now time.Time) (geom.Vec3, bool) {
	if !c.cfg.Enabled || !c.hasPosition || !c.reliable {
		return geom.Vec3{}, false
	}
	if now.Sub(c.lastDetectedAt) > c.cfg.MaxAge {
		return geom.Vec3{}, false
	}
	return c.position, true
}

// Reliable reports whether the confidence threshold has been reached.
func (c *BowlCache) Reliable() bool {
	return c.reliable
}

// Reset clears the cache to its creation defaults.
func (c *BowlCache) Reset() {
	*c = BowlCache{cfg: c.cfg}
}

// Info returns a snapshot of the cache state.
func (c *BowlCache) Info(now time.Time) CacheInfo {
	info := CacheInfo{
		HasPosition:    c.hasPosition,
		Reliable:       c.reliable,
		DetectionCount: c.detectionCount,
		Position:       c.position,
	}
	if !c.lastDetectedAt.IsZero() {
		info.Age = now.Sub(c.lastDetectedAt)
	}
	if !c.lastUpdatedAt.IsZero() {
		info.SinceUpdate = now.Sub(c.lastUpdatedAt)
	}
	return info
}

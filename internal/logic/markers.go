package logic

import "github.com/sweeney/feeding-monitor/internal/geom"

// Marker is one fiducial found in an image: its id and its four corners in
// detector order.
type Marker struct {
	ID      int
	Corners [4]geom.Point2
}

// LocateConfig describes how markers map to detections.
type LocateConfig struct {
	BowlID     int
	BowlSize   float64
	AnimalSize float64
	Intrinsics geom.Intrinsics
}

// Locate estimates a position for every marker. The bowl id becomes the
// landmark, every other id an animal. Markers whose pose cannot be
// estimated are dropped.
func Locate(markers []Marker, cfg LocateConfig) []Detection {
	out := make([]Detection, 0, len(markers))
	for _, m := range markers {
		kind, size := KindAnimal, cfg.AnimalSize
		if m.ID == cfg.BowlID {
			kind, size = KindLandmark, cfg.BowlSize
		}
		pos, ok := geom.EstimateMarkerPosition(m.Corners, size, cfg.Intrinsics)
		if !ok {
			continue
		}
		out = append(out, Detection{ID: m.ID, Kind: kind, Position: pos})
	}
	return out
}

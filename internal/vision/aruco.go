package vision

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/sweeney/feeding-monitor/internal/capture"
	"github.com/sweeney/feeding-monitor/internal/geom"
	"github.com/sweeney/feeding-monitor/internal/logic"
)

// ArucoDetector finds 6x6 ArUco markers and turns them into detections.
type ArucoDetector struct {
	mu       sync.Mutex
	detector gocv.ArucoDetector
	cfg      logic.LocateConfig
}

// NewArucoDetector creates a detector for the 6x6_250 dictionary.
func NewArucoDetector(cfg logic.LocateConfig) *ArucoDetector {
	dict := gocv.GetPredefinedDictionary(gocv.ArucoDict6x6_250)
	params := gocv.NewArucoDetectorParameters()
	return &ArucoDetector{
		detector: gocv.NewArucoDetectorWithParams(dict, params),
		cfg:      cfg,
	}
}

// Detect returns the located markers in f.
func (d *ArucoDetector) Detect(f capture.Frame) ([]logic.Detection, error) {
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	d.mu.Lock()
	corners, ids, _ := d.detector.DetectMarkers(img)
	d.mu.Unlock()

	markers := make([]logic.Marker, 0, len(ids))
	for i, id := range ids {
		if i >= len(corners) || len(corners[i]) != 4 {
			continue
		}
		m := logic.Marker{ID: id}
		for j, p := range corners[i] {
			m.Corners[j] = geom.Point2{X: float64(p.X), Y: float64(p.Y)}
		}
		markers = append(markers, m)
	}
	return logic.Locate(markers, d.cfg), nil
}

// Close releases the detector.
func (d *ArucoDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// Package geom holds the small amount of 3D math the monitor needs:
// camera-frame vectors and a pinhole position estimate for square markers.
package geom

import "math"

// Vec3 is a point or displacement in camera-frame coordinates (metres).
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vec3) float64 {
	return a.Sub(b).Norm()
}

// Point2 is an image-plane point in pixels.
type Point2 struct {
	X, Y float64
}

// Intrinsics are the pinhole camera parameters (pixels).
type Intrinsics struct {
	FX, FY float64
	CX, CY float64
}

// DefaultIntrinsics matches a 1280x720 sensor with a 1000px focal length.
func DefaultIntrinsics() Intrinsics {
	return Intrinsics{FX: 1000, FY: 1000, CX: 640, CY: 360}
}

// EstimateMarkerPosition returns the camera-frame position of the centre of
// a square marker of side markerSize (metres) from its four image corners.
// Depth comes from the mean apparent side length; lateral offsets from the
// corner centroid. ok is false for degenerate input.
func EstimateMarkerPosition(corners [4]Point2, markerSize float64, in Intrinsics) (Vec3, bool) {
	if markerSize <= 0 || in.FX <= 0 || in.FY <= 0 {
		return Vec3{}, false
	}

	var side, u, v float64
	for i := 0; i < 4; i++ {
		a, b := corners[i], corners[(i+1)%4]
		side += math.Hypot(b.X-a.X, b.Y-a.Y)
		u += a.X
		v += a.Y
	}
	side /= 4
	u /= 4
	v /= 4
	if side <= 0 || math.IsNaN(side) {
		return Vec3{}, false
	}

	f := (in.FX + in.FY) / 2
	z := f * markerSize / side
	return Vec3{
		X: (u - in.CX) * z / in.FX,
		Y: (v - in.CY) * z / in.FY,
		Z: z,
	}, true
}

package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: 6, Z: 3}
	assert.InDelta(t, 5.0, Distance(a, b), 1e-9)
	assert.InDelta(t, 0.0, Distance(a, a), 1e-9)
}

func TestEstimateMarkerPositionCentred(t *testing.T) {
	in := DefaultIntrinsics()
	// 100px square centred on the principal point.
	corners := [4]Point2{
		{X: 590, Y: 310}, {X: 690, Y: 310}, {X: 690, Y: 410}, {X: 590, Y: 410},
	}

	pos, ok := EstimateMarkerPosition(corners, 0.05, in)
	require.True(t, ok)
	// z = 1000 * 0.05 / 100
	assert.InDelta(t, 0.5, pos.Z, 1e-9)
	assert.InDelta(t, 0.0, pos.X, 1e-9)
	assert.InDelta(t, 0.0, pos.Y, 1e-9)
}

func TestEstimateMarkerPositionOffset(t *testing.T) {
	in := DefaultIntrinsics()
	// 50px square centred 200px right of the principal point.
	corners := [4]Point2{
		{X: 815, Y: 335}, {X: 865, Y: 335}, {X: 865, Y: 385}, {X: 815, Y: 385},
	}

	pos, ok := EstimateMarkerPosition(corners, 0.05, in)
	require.True(t, ok)
	assert.InDelta(t, 1.0, pos.Z, 1e-9)
	assert.InDelta(t, 0.2, pos.X, 1e-9)
	assert.InDelta(t, 0.0, pos.Y, 1e-9)
}

func TestEstimateMarkerPositionCloserMarkerIsNearer(t *testing.T) {
	in := DefaultIntrinsics()
	small := [4]Point2{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 20}, {X: 0, Y: 20}}
	large := [4]Point2{{X: 0, Y: 0}, {X: 80, Y: 0}, {X: 80, Y: 80}, {X: 0, Y: 80}}

	far, ok := EstimateMarkerPosition(small, 0.02, in)
	require.True(t, ok)
	near, ok := EstimateMarkerPosition(large, 0.02, in)
	require.True(t, ok)
	assert.Less(t, near.Z, far.Z)
}

func TestEstimateMarkerPositionDegenerate(t *testing.T) {
	in := DefaultIntrinsics()
	point := [4]Point2{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}}

	_, ok := EstimateMarkerPosition(point, 0.02, in)
	assert.False(t, ok, "zero-area marker")

	square := [4]Point2{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	_, ok = EstimateMarkerPosition(square, 0, in)
	assert.False(t, ok, "zero marker size")

	_, ok = EstimateMarkerPosition(square, 0.02, Intrinsics{})
	assert.False(t, ok, "zero focal length")

	nan := [4]Point2{{X: math.NaN(), Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	_, ok = EstimateMarkerPosition(nan, 0.02, in)
	assert.False(t, ok, "NaN corner")
}

package ground

import (
	"math"

	"github.com/cfoust/kbsync/pkg/host"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"
)

const (
	DefaultWidth = 0.6
	// Pulls each corner inwards so a ray does not clip the side of a block
	// the entity is only touching.
	DefaultInset = 0.01

	DefaultMaxProbeDistance = 5.0
)

type Footprint struct {
	Width            float64
	Inset            float64
	MaxProbeDistance float64
}

func DefaultFootprint() Footprint {
	return Footprint{
		Width:            DefaultWidth,
		Inset:            DefaultInset,
		MaxProbeDistance: DefaultMaxProbeDistance,
	}
}

// Corners returns the four bottom corners of a footprint centered on
// position.
func (f Footprint) Corners(position mgl64.Vec3) [4]mgl64.Vec3 {
	half := f.Width/2 - f.Inset
	return [4]mgl64.Vec3{
		position.Add(mgl64.Vec3{-half, 0, -half}),
		position.Add(mgl64.Vec3{-half, 0, half}),
		position.Add(mgl64.Vec3{half, 0, -half}),
		position.Add(mgl64.Vec3{half, 0, half}),
	}
}

// DistanceToGround traces down from each footprint corner and returns the
// shortest distance to a solid surface. If nothing is hit the probe
// distance is returned.
func (f Footprint) DistanceToGround(world host.World, self string, position mgl64.Vec3) float64 {
	distance := f.MaxProbeDistance

	for _, corner := range f.Corners(position) {
		hit := world.RayTraceDown(corner, f.MaxProbeDistance, host.FluidNone, self)
		if opt.IsNone(hit) {
			continue
		}

		distance = math.Min(distance, hit.Value)
	}

	return distance
}

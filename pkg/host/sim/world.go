package sim

import (
	"math"

	"github.com/cfoust/kbsync/pkg/host"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"
	"github.com/sasha-s/go-deadlock"
)

type Material uint8

const (
	Solid Material = iota
	Liquid
	LiquidSource
)

// Box is an axis aligned block of material. Boxes with an Owner belong to
// that entity (its own collision geometry) and are skipped when it traces.
type Box struct {
	Min      mgl64.Vec3
	Max      mgl64.Vec3
	Material Material
	Owner    string
}

func (b Box) containsColumn(x, z float64) bool {
	return x >= b.Min.X() && x <= b.Max.X() && z >= b.Min.Z() && z <= b.Max.Z()
}

func (b Box) stops(fluids host.FluidHandling) bool {
	switch b.Material {
	case Liquid:
		return fluids == host.FluidAlways
	case LiquidSource:
		return fluids != host.FluidNone
	}
	return true
}

type World struct {
	mutex deadlock.RWMutex
	boxes []Box
}

var _ host.World = (*World)(nil)

func NewWorld() *World {
	return &World{}
}

func (w *World) Add(box Box) {
	w.mutex.Lock()
	w.boxes = append(w.boxes, box)
	w.mutex.Unlock()
}

// Floor adds an unbounded slab whose top surface is at height y.
func (w *World) Floor(y float64) {
	w.Add(Box{
		Min: mgl64.Vec3{math.Inf(-1), y - 1, math.Inf(-1)},
		Max: mgl64.Vec3{math.Inf(1), y, math.Inf(1)},
	})
}

// Block adds a unit cube with its minimum corner at x, y, z.
func (w *World) Block(x, y, z float64, material Material) {
	w.Add(Box{
		Min:      mgl64.Vec3{x, y, z},
		Max:      mgl64.Vec3{x + 1, y + 1, z + 1},
		Material: material,
	})
}

func (w *World) RayTraceDown(origin mgl64.Vec3, maxDistance float64, fluids host.FluidHandling, ignore string) opt.Option[float64] {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	best := math.Inf(1)
	for _, box := range w.boxes {
		if ignore != "" && box.Owner == ignore {
			continue
		}
		if !box.stops(fluids) || !box.containsColumn(origin.X(), origin.Z()) {
			continue
		}

		// Rays starting inside a box hit nothing in it
		top := box.Max.Y()
		if top > origin.Y() {
			continue
		}

		distance := origin.Y() - top
		if distance <= maxDistance && distance < best {
			best = distance
		}
	}

	if math.IsInf(best, 1) {
		return opt.None[float64]()
	}
	return opt.Some(best)
}

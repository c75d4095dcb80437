package knockback

import "math"

const (
	// Attack charge above which a hit counts as fully charged.
	FullChargeThreshold = 0.848

	// Vertical knockback of a fully charged or enchanted hit.
	MaxVertical = 0.4

	// Vertical knockback of a partially charged hit.
	PartialVertical = 0.36080000519752503

	// Vertical reduction per point of knockback resistance when the
	// attacker is not sprinting.
	ResistanceFactor = 0.04000000119 * 10
)

type Attack struct {
	Sprinting bool
	// Attack charge progress in [0, 1].
	Cooldown       float64
	KnockbackLevel int
	// Knockback resistance attribute of the defender in [0, 1].
	Resistance float64
}

// VerticalComponent computes the upward velocity a grounded defender
// receives from an attack. It is used to turn knockback the server computed
// for a falling entity into the rising knockback the client expects.
func VerticalComponent(a Attack) float64 {
	vertical := PartialVertical
	if a.Cooldown > FullChargeThreshold {
		vertical = MaxVertical
	}

	if !a.Sprinting {
		vertical = PartialVertical - ResistanceFactor*clampUnit(a.Resistance)
	}

	// Enchanted weapons always knock up at the maximum
	if a.KnockbackLevel > 0 {
		vertical = MaxVertical
	}

	return vertical
}

func clampUnit(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return math.Max(0, math.Min(1, value))
}

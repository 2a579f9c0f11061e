package forecasting

import (
	"math"
	"math/rand"
	"time"
)

// Noise perturbs forecast values. Implementations return a value in [-bound, bound].
type Noise interface {
	Perturb(bound float64) float64
}

// SeededNoise draws uniform perturbations from a seeded generator.
// A SeededNoise is not safe for concurrent use; create one per request.
type SeededNoise struct {
	rng *rand.Rand
}

// NewSeededNoise returns a reproducible noise source.
func NewSeededNoise(seed int64) *SeededNoise {
	return &SeededNoise{rng: rand.New(rand.NewSource(seed))}
}

// NewTimeSeededNoise returns a noise source seeded from the wall clock.
func NewTimeSeededNoise() *SeededNoise {
	return NewSeededNoise(time.Now().UnixNano())
}

// Perturb returns a uniform draw from [-bound, bound].
func (n *SeededNoise) Perturb(bound float64) float64 {
	if n == nil || n.rng == nil || bound <= 0 {
		return 0
	}
	return (n.rng.Float64()*2 - 1) * bound
}

// noiseBound scales the perturbation to the baseline's magnitude.
func noiseBound(scale, baseline float64) float64 {
	if scale <= 0 {
		return 0
	}
	return scale * math.Max(math.Abs(baseline), 1)
}

package widget

import (
	"math/rand"
)

// Star is one twinkling point of the night background. Top and Left are
// percentages of the viewport, Duration is the twinkle period in seconds.
type Star struct {
	Top      float64 `json:"top"`
	Left     float64 `json:"left"`
	Duration float64 `json:"duration"`
}

// NewStarField scatters n stars uniformly with periods between 1s and 3s.
func NewStarField(n int, rng *rand.Rand) []Star {
	if n <= 0 {
		return nil
	}
	stars := make([]Star, n)
	for i := range stars {
		stars[i] = Star{
			Top:      rng.Float64() * 100,
			Left:     rng.Float64() * 100,
			Duration: 1 + rng.Float64()*2,
		}
	}
	return stars
}

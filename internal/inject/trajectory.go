// File: internal/inject/trajectory.go
package inject

import (
	"math"

	"github.com/aquilax/go-perlin"

	"github.com/mverte/visor-cli/api/schemas"
)

// Standard perlin parameters.
const (
	perlinAlpha = 2.0
	perlinBeta  = 2.0
	perlinN     = 3
)

// easeInOutCubic provides a smooth acceleration and deceleration profile
// for cursor travel.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// GeneratePath builds a cursor trajectory from start to end: an eased
// straight line deformed by perlin noise perpendicular to the travel
// direction. The deviation tapers to zero at both endpoints, so the path
// always starts at start and lands exactly on end. For a fixed seed the
// path is deterministic.
func GeneratePath(start, end schemas.Point, steps int, amplitude float64, seed int64) []schemas.Point {
	if steps < 2 {
		return []schemas.Point{end}
	}

	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	dist := math.Hypot(dx, dy)
	if dist < 1 {
		return []schemas.Point{end}
	}

	// Unit normal to the travel direction; jitter is applied along it.
	nx := -dy / dist
	ny := dx / dist

	noise := perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed)

	path := make([]schemas.Point, steps)
	for i := 0; i < steps; i++ {
		t := float64(i) / float64(steps-1)
		eased := easeInOutCubic(t)

		x := float64(start.X) + dx*eased
		y := float64(start.Y) + dy*eased

		// Taper keeps the endpoints exact.
		taper := math.Sin(math.Pi * t)
		offset := noise.Noise1D(t*3) * amplitude * taper
		x += nx * offset
		y += ny * offset

		path[i] = schemas.Point{X: int(math.Round(x)), Y: int(math.Round(y))}
	}
	path[steps-1] = end
	return path
}

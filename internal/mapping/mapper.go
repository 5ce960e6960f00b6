// File: internal/mapping/mapper.go
// Converts image-space points from screenshots into absolute input-injection
// coordinates. MapToScreen is a pure function of its inputs: no hidden
// state, bit-for-bit reproducible for identical arguments, which the
// verifier's before/after comparison relies on.
package mapping

import (
	"errors"
	"fmt"
	"math"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/window"
)

var (
	// ErrPointOutOfBounds marks a caller error: the image point lies outside
	// the captured image. It is reported, not silently clamped.
	ErrPointOutOfBounds = errors.New("image point outside image bounds")
	// ErrWindowNotActionable rejects mapping against a handle whose state
	// does not permit input injection. Coordinates computed against a stale
	// or lost handle must never be dispatched.
	ErrWindowNotActionable = errors.New("window state does not permit coordinate mapping")
)

// MapToScreen maps a point in a captured image onto the absolute screen
// coordinate to inject at. The mapping scales linearly by the ratio of image
// dimensions to client-rectangle dimensions, adds the client rectangle's
// screen offset, clamps the result into the client rectangle, and finally
// applies the window's DPI scale factor to reach physical pixels.
func MapToScreen(p schemas.ImagePoint, imgWidth, imgHeight int, h window.Handle) (schemas.Point, error) {
	if !h.State.Actionable() {
		return schemas.Point{}, fmt.Errorf("%w: state=%s", ErrWindowNotActionable, h.State)
	}
	if imgWidth <= 0 || imgHeight <= 0 {
		return schemas.Point{}, fmt.Errorf("invalid image dimensions %dx%d", imgWidth, imgHeight)
	}
	if p.X < 0 || p.Y < 0 || p.X > float64(imgWidth) || p.Y > float64(imgHeight) {
		return schemas.Point{}, fmt.Errorf("%w: (%.1f, %.1f) not in [0,%d]x[0,%d]",
			ErrPointOutOfBounds, p.X, p.Y, imgWidth, imgHeight)
	}

	client := h.ClientRect
	if client.Empty() {
		return schemas.Point{}, fmt.Errorf("window client rect is empty")
	}

	x := float64(client.Left) + p.X/float64(imgWidth)*float64(client.Width())
	y := float64(client.Top) + p.Y/float64(imgHeight)*float64(client.Height())

	// Never let an injected coordinate land outside the target window.
	x = clamp(x, float64(client.Left), float64(client.Right-1))
	y = clamp(y, float64(client.Top), float64(client.Bottom-1))

	scale := h.DPIScale
	if scale <= 0 {
		scale = 1.0
	}
	return schemas.Point{
		X: int(math.Round(x * scale)),
		Y: int(math.Round(y * scale)),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

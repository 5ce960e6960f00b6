// File: internal/perception/detector.go
// The detector is an external collaborator: a black box that turns an image
// tile into labeled boxes with confidences. This file defines the contract
// the coordination core needs from it, plus the tiling of a full screenshot
// into overlapping sub-regions that preserve small-object accuracy.
package perception

import (
	"context"
	"image"
	"time"

	"github.com/mverte/visor-cli/api/schemas"
)

// Tile is a rectangular sub-region of a full screenshot processed
// independently by the detector. Detections come back in tile-local
// coordinates; OffsetX/OffsetY translate them into full-image space.
type Tile struct {
	Image   image.Image
	OffsetX int
	OffsetY int
	// Threshold is the per-tile confidence floor handed to the detector.
	Threshold float64
}

// Detector produces labeled boxes for one tile. Implementations must be
// deterministic for a fixed model and threshold; confidence is a ranking
// signal only and is never reinterpreted by the core.
type Detector interface {
	Detect(ctx context.Context, tile Tile) ([]schemas.Detection, error)
}

// Frame is one full screenshot of the target window's client area.
type Frame struct {
	Image      image.Image
	Width      int
	Height     int
	CapturedAt time.Time
}

// Capturer grabs the current content of a screen rectangle.
type Capturer interface {
	Capture(ctx context.Context, rect schemas.Rect) (Frame, error)
}

// subImager is satisfied by the stdlib raster image types.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// TileFrame cuts a frame into a grid of tiles of at most tileSize pixels a
// side, with adjacent tiles sharing an overlap margin. The margin is the
// safeguard against boxes clipped at tile boundaries, so boxes touching a
// boundary are kept downstream, not dropped. A frame smaller than one tile
// yields a single tile covering the whole image.
func TileFrame(frame Frame, tileSize, overlap int, threshold float64) []Tile {
	if frame.Width <= 0 || frame.Height <= 0 || frame.Image == nil {
		return nil
	}

	stride := tileSize - overlap
	if stride <= 0 {
		stride = tileSize
	}

	var tiles []Tile
	for y := 0; ; y += stride {
		if y >= frame.Height {
			break
		}
		y2 := min(y+tileSize, frame.Height)
		for x := 0; ; x += stride {
			if x >= frame.Width {
				break
			}
			x2 := min(x+tileSize, frame.Width)
			tiles = append(tiles, Tile{
				Image:     cropImage(frame.Image, image.Rect(x, y, x2, y2)),
				OffsetX:   x,
				OffsetY:   y,
				Threshold: threshold,
			})
			if x2 >= frame.Width {
				break
			}
		}
		if y2 >= frame.Height {
			break
		}
	}
	return tiles
}

// cropImage returns the sub-region of img. Raster types share pixels via
// SubImage; anything else is copied.
func cropImage(img image.Image, r image.Rectangle) image.Image {
	r = r.Add(img.Bounds().Min)
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			dst.Set(x, y, img.At(r.Min.X+x, r.Min.Y+y))
		}
	}
	return dst
}

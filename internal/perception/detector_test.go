// File: internal/perception/detector_test.go
package perception

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(w, h int) Frame {
	return Frame{
		Image:      image.NewRGBA(image.Rect(0, 0, w, h)),
		Width:      w,
		Height:     h,
		CapturedAt: time.Now(),
	}
}

func TestTileFrame(t *testing.T) {
	t.Run("small frame yields a single full tile", func(t *testing.T) {
		tiles := TileFrame(testFrame(400, 300), 640, 96, 0.35)
		require.Len(t, tiles, 1)
		assert.Equal(t, 0, tiles[0].OffsetX)
		assert.Equal(t, 0, tiles[0].OffsetY)
		assert.Equal(t, 400, tiles[0].Image.Bounds().Dx())
		assert.Equal(t, 300, tiles[0].Image.Bounds().Dy())
		assert.InDelta(t, 0.35, tiles[0].Threshold, 1e-9)
	})

	t.Run("tiles cover every pixel of the frame", func(t *testing.T) {
		const w, h = 1600, 900
		tiles := TileFrame(testFrame(w, h), 640, 96, 0.35)
		require.NotEmpty(t, tiles)

		covered := make([][]bool, h)
		for y := range covered {
			covered[y] = make([]bool, w)
		}
		for _, tile := range tiles {
			b := tile.Image.Bounds()
			for y := 0; y < b.Dy(); y++ {
				for x := 0; x < b.Dx(); x++ {
					covered[tile.OffsetY+y][tile.OffsetX+x] = true
				}
			}
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				require.True(t, covered[y][x], "pixel (%d,%d) not covered", x, y)
			}
		}
	})

	t.Run("adjacent tiles share the overlap margin", func(t *testing.T) {
		tiles := TileFrame(testFrame(1200, 640), 640, 96, 0.35)
		// Horizontal stride is tileSize-overlap.
		require.GreaterOrEqual(t, len(tiles), 2)
		assert.Equal(t, 0, tiles[0].OffsetX)
		assert.Equal(t, 544, tiles[1].OffsetX)
	})

	t.Run("no tile exceeds the tile size", func(t *testing.T) {
		for _, tile := range TileFrame(testFrame(1999, 1201), 640, 96, 0.35) {
			b := tile.Image.Bounds()
			assert.LessOrEqual(t, b.Dx(), 640)
			assert.LessOrEqual(t, b.Dy(), 640)
		}
	})

	t.Run("degenerate frames yield no tiles", func(t *testing.T) {
		assert.Nil(t, TileFrame(Frame{}, 640, 96, 0.35))
		assert.Nil(t, TileFrame(Frame{Width: 100, Height: 0}, 640, 96, 0.35))
	})
}

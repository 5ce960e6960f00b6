// File: internal/perception/static_detector_test.go
package perception

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverte/visor-cli/api/schemas"
)

func TestStaticDetector(t *testing.T) {
	fixture := []schemas.Detection{
		det1("ok_button", 700, 100, 760, 140, 0.9),
		det1("toolbar", 10, 10, 200, 50, 0.8),
		det1("faint", 300, 300, 340, 340, 0.1),
	}
	sd := NewStaticDetector(fixture)

	t.Run("rebases detections into tile-local coordinates", func(t *testing.T) {
		frame := testFrame(1200, 640)
		tiles := TileFrame(frame, 640, 96, 0.35)
		require.GreaterOrEqual(t, len(tiles), 2)

		// ok_button lies in the second column tile (offset 544).
		dets, err := sd.Detect(context.Background(), tiles[1])
		require.NoError(t, err)
		require.Len(t, dets, 1)
		assert.Equal(t, "ok_button", dets[0].Label)
		assert.Equal(t, schemas.BBox{X1: 156, Y1: 100, X2: 216, Y2: 140}, dets[0].BBox)
	})

	t.Run("applies the tile confidence threshold", func(t *testing.T) {
		frame := testFrame(640, 640)
		tiles := TileFrame(frame, 640, 96, 0.35)
		require.Len(t, tiles, 1)

		dets, err := sd.Detect(context.Background(), tiles[0])
		require.NoError(t, err)
		for _, d := range dets {
			assert.NotEqual(t, "faint", d.Label)
		}
	})

	t.Run("round-trips through the merge stage", func(t *testing.T) {
		frame := testFrame(1200, 640)
		tiles := TileFrame(frame, 640, 96, 0.35)

		var perTile []TileDetections
		for _, tile := range tiles {
			dets, err := sd.Detect(context.Background(), tile)
			require.NoError(t, err)
			perTile = append(perTile, TileDetections{OffsetX: tile.OffsetX, OffsetY: tile.OffsetY, Detections: dets})
		}

		merged := Merge(perTile, 0.45)
		// The fixture boxes come back at their original full-image positions,
		// deduplicated across the overlap.
		require.Len(t, merged, 2)
		ok := merged[0]
		assert.Equal(t, "ok_button", ok.Label)
		assert.Equal(t, schemas.BBox{X1: 700, Y1: 100, X2: 760, Y2: 140}, ok.BBox)
	})
}

func TestLoadStaticDetector(t *testing.T) {
	t.Run("loads a fixture file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "detections.json")
		payload := `{"detections": [
			{"label": "ok_button", "bbox": [700, 100, 760, 140], "confidence": 0.9}
		]}`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

		sd, err := LoadStaticDetector(path)
		require.NoError(t, err)

		tiles := TileFrame(testFrame(1200, 640), 1200, 0, 0.35)
		require.Len(t, tiles, 1)
		dets, err := sd.Detect(context.Background(), tiles[0])
		require.NoError(t, err)
		assert.Len(t, dets, 1)
	})

	t.Run("rejects malformed boxes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "detections.json")
		payload := `{"detections": [
			{"label": "broken", "bbox": [100, 100, 50, 50], "confidence": 0.9}
		]}`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

		_, err := LoadStaticDetector(path)
		assert.Error(t, err)
	})

	t.Run("rejects a missing file", func(t *testing.T) {
		_, err := LoadStaticDetector(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}

// File: internal/perception/merger_test.go
package perception

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverte/visor-cli/api/schemas"
)

func det(label string, x1, y1, x2, y2, conf float64) schemas.Detection {
	return schemas.Detection{
		Label:      label,
		BBox:       schemas.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Confidence: conf,
	}
}

func TestMerge(t *testing.T) {
	const iou = 0.45

	t.Run("translates detections into full-image coordinates", func(t *testing.T) {
		tiles := []TileDetections{
			{OffsetX: 640, OffsetY: 320, Detections: []schemas.Detection{
				det("ok_button", 10, 20, 50, 60, 0.9),
			}},
		}
		out := Merge(tiles, iou)
		require.Len(t, out, 1)
		assert.Equal(t, schemas.BBox{X1: 650, Y1: 340, X2: 690, Y2: 380}, out[0].BBox)
	})

	t.Run("suppresses duplicates of the same label across tiles", func(t *testing.T) {
		// Both tiles saw the same button inside their shared overlap margin.
		tiles := []TileDetections{
			{OffsetX: 0, OffsetY: 0, Detections: []schemas.Detection{
				det("ok_button", 600, 100, 640, 140, 0.85),
			}},
			{OffsetX: 544, OffsetY: 0, Detections: []schemas.Detection{
				det("ok_button", 58, 101, 97, 141, 0.92),
			}},
		}
		out := Merge(tiles, iou)
		require.Len(t, out, 1)
		// The higher-confidence box wins.
		assert.InDelta(t, 0.92, out[0].Confidence, 1e-9)
	})

	t.Run("never suppresses across different labels", func(t *testing.T) {
		tiles := []TileDetections{
			{Detections: []schemas.Detection{
				det("ok_button", 100, 100, 200, 200, 0.9),
				det("cancel_button", 100, 100, 200, 200, 0.8),
			}},
		}
		out := Merge(tiles, iou)
		assert.Len(t, out, 2)
	})

	t.Run("keeps overlapping boxes below the threshold", func(t *testing.T) {
		// Two adjacent buttons with a sliver of overlap.
		tiles := []TileDetections{
			{Detections: []schemas.Detection{
				det("icon", 0, 0, 100, 100, 0.9),
				det("icon", 90, 0, 190, 100, 0.8),
			}},
		}
		out := Merge(tiles, iou)
		assert.Len(t, out, 2)
	})

	t.Run("no two kept boxes of a label overlap above the threshold", func(t *testing.T) {
		tiles := []TileDetections{
			{Detections: []schemas.Detection{
				det("icon", 0, 0, 100, 100, 0.9),
				det("icon", 5, 5, 105, 105, 0.8),
				det("icon", 10, 10, 110, 110, 0.7),
				det("icon", 300, 300, 400, 400, 0.6),
			}},
		}
		out := Merge(tiles, iou)
		for i := range out {
			for j := i + 1; j < len(out); j++ {
				if out[i].Label != out[j].Label {
					continue
				}
				assert.LessOrEqual(t, out[i].BBox.IoU(out[j].BBox), iou)
			}
		}
	})

	t.Run("orders output by descending confidence", func(t *testing.T) {
		tiles := []TileDetections{
			{Detections: []schemas.Detection{
				det("a", 0, 0, 10, 10, 0.3),
				det("b", 100, 0, 110, 10, 0.9),
				det("c", 200, 0, 210, 10, 0.6),
			}},
		}
		out := Merge(tiles, iou)
		require.Len(t, out, 3)
		for i := 1; i < len(out); i++ {
			assert.GreaterOrEqual(t, out[i-1].Confidence, out[i].Confidence)
		}
	})

	t.Run("confidence ties prefer the larger box", func(t *testing.T) {
		tiles := []TileDetections{
			{Detections: []schemas.Detection{
				det("icon", 0, 0, 50, 50, 0.8),
				det("icon", 0, 0, 100, 100, 0.8),
			}},
		}
		out := Merge(tiles, iou)
		require.NotEmpty(t, out)
		assert.Equal(t, schemas.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, out[0].BBox)
	})

	t.Run("empty input yields an empty non-nil result", func(t *testing.T) {
		out := Merge(nil, iou)
		require.NotNil(t, out)
		assert.Empty(t, out)

		out = Merge([]TileDetections{{Detections: nil}}, iou)
		require.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("merges a multi-tile scene", func(t *testing.T) {
		// A toolbar icon in the first tile, a dialog straddling the overlap
		// margin (seen by both tiles), and a button only the second tile saw.
		tiles := []TileDetections{
			{OffsetX: 0, OffsetY: 0, Detections: []schemas.Detection{
				det("save_icon", 10, 10, 42, 42, 0.97),
				det("dialog", 500, 200, 640, 400, 0.74),
			}},
			{OffsetX: 544, OffsetY: 0, Detections: []schemas.Detection{
				det("dialog", 0, 201, 98, 399, 0.81),
				det("ok_button", 300, 500, 380, 540, 0.88),
			}},
		}

		want := []schemas.UIElement{
			{Label: "save_icon", BBox: schemas.BBox{X1: 10, Y1: 10, X2: 42, Y2: 42}, Confidence: 0.97},
			{Label: "ok_button", BBox: schemas.BBox{X1: 844, Y1: 500, X2: 924, Y2: 540}, Confidence: 0.88},
			{Label: "dialog", BBox: schemas.BBox{X1: 544, Y1: 201, X2: 642, Y2: 399}, Confidence: 0.81},
		}

		got := Merge(tiles, iou)
		if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("drops malformed boxes", func(t *testing.T) {
		tiles := []TileDetections{
			{Detections: []schemas.Detection{
				det("icon", 100, 100, 50, 50, 0.9),
			}},
		}
		assert.Empty(t, Merge(tiles, iou))
	})
}

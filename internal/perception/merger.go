// File: internal/perception/merger.go
package perception

import (
	"sort"

	"github.com/mverte/visor-cli/api/schemas"
)

// TileDetections is the raw detector output for one tile, still in
// tile-local coordinates.
type TileDetections struct {
	OffsetX    int
	OffsetY    int
	Detections []schemas.Detection
}

// Merge turns per-tile detection lists into a single deduplicated set of
// UIElements in full-image coordinates. Boxes are translated by their tile's
// offset, grouped by label, and deduplicated with non-maximum suppression:
// within a label, a box is suppressed when its IoU with a kept
// higher-confidence box of the same label exceeds iouThreshold. Ties are
// broken by higher confidence, then by larger box area. The output is
// ordered stably by descending confidence.
//
// An empty detector output is not an error; it yields an empty (non-nil)
// result meaning "nothing recognized".
func Merge(tiles []TileDetections, iouThreshold float64) []schemas.UIElement {
	byLabel := make(map[string][]schemas.UIElement)
	for _, t := range tiles {
		for _, d := range t.Detections {
			if !d.BBox.Valid() {
				continue
			}
			byLabel[d.Label] = append(byLabel[d.Label], schemas.UIElement{
				Label:      d.Label,
				BBox:       d.BBox.Translate(float64(t.OffsetX), float64(t.OffsetY)),
				Confidence: d.Confidence,
			})
		}
	}

	merged := make([]schemas.UIElement, 0)
	for _, candidates := range byLabel {
		merged = append(merged, suppress(candidates, iouThreshold)...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}

// suppress applies greedy non-maximum suppression over candidates sharing a
// label.
func suppress(candidates []schemas.UIElement, iouThreshold float64) []schemas.UIElement {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].BBox.Area() > candidates[j].BBox.Area()
	})

	kept := make([]schemas.UIElement, 0, len(candidates))
	for _, c := range candidates {
		dup := false
		for _, k := range kept {
			if c.BBox.IoU(k.BBox) > iouThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}

// File: internal/perception/static_detector.go
package perception

import (
	"context"
	"fmt"
	"os"

	"github.com/mverte/visor-cli/api/schemas"
)

// StaticDetector replays a fixed set of full-image detections, for dry runs
// and tests without an inference service. Detect clips its fixture set to
// the tile's bounds and rebases the boxes into tile-local coordinates, so
// the merge stage sees the same shape of input the live detector produces.
type StaticDetector struct {
	detections []schemas.Detection
}

// staticFixture is the on-disk shape of a detection fixture file.
type staticFixture struct {
	Detections []struct {
		Label      string     `json:"label"`
		BBox       [4]float64 `json:"bbox"`
		Confidence float64    `json:"confidence"`
	} `json:"detections"`
}

// NewStaticDetector creates a detector over an in-memory detection set.
func NewStaticDetector(detections []schemas.Detection) *StaticDetector {
	return &StaticDetector{detections: detections}
}

// LoadStaticDetector reads a detection fixture file.
func LoadStaticDetector(path string) (*StaticDetector, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detection fixture: %w", err)
	}

	var fixture staticFixture
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse detection fixture %s: %w", path, err)
	}

	dets := make([]schemas.Detection, 0, len(fixture.Detections))
	for _, d := range fixture.Detections {
		det := schemas.Detection{
			Label:      d.Label,
			BBox:       schemas.BBox{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]},
			Confidence: d.Confidence,
		}
		if !det.BBox.Valid() {
			return nil, fmt.Errorf("fixture %s has a malformed box for %q", path, d.Label)
		}
		dets = append(dets, det)
	}
	return &StaticDetector{detections: dets}, nil
}

// Detect implements Detector.
func (s *StaticDetector) Detect(_ context.Context, tile Tile) ([]schemas.Detection, error) {
	bounds := tile.Image.Bounds()
	tileBox := schemas.BBox{
		X1: float64(tile.OffsetX),
		Y1: float64(tile.OffsetY),
		X2: float64(tile.OffsetX + bounds.Dx()),
		Y2: float64(tile.OffsetY + bounds.Dy()),
	}

	var out []schemas.Detection
	for _, det := range s.detections {
		if det.Confidence < tile.Threshold {
			continue
		}
		if !intersects(det.BBox, tileBox) {
			continue
		}
		out = append(out, schemas.Detection{
			Label:      det.Label,
			BBox:       det.BBox.Translate(-float64(tile.OffsetX), -float64(tile.OffsetY)),
			Confidence: det.Confidence,
		})
	}
	return out, nil
}

func intersects(a, b schemas.BBox) bool {
	return a.X1 < b.X2 && b.X1 < a.X2 && a.Y1 < b.Y2 && b.Y1 < a.Y2
}

// File: internal/perception/pipeline.go
package perception

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/config"
)

// Snapshot is the merged perception of one frame: everything the detector
// recognized, in full-image coordinates, together with the image dimensions
// the elements were measured in.
type Snapshot struct {
	Elements    []schemas.UIElement
	ImageWidth  int
	ImageHeight int
	CapturedAt  time.Time
}

// FindAll returns every element carrying the label, preserving the
// snapshot's confidence ordering.
func (s *Snapshot) FindAll(label string) []schemas.UIElement {
	var out []schemas.UIElement
	for _, e := range s.Elements {
		if e.Label == label {
			out = append(out, e)
		}
	}
	return out
}

// Empty reports whether the detector recognized nothing in the frame.
func (s *Snapshot) Empty() bool { return len(s.Elements) == 0 }

// Pipeline runs tiled detection over captured frames. Tile inference fans
// out across a bounded worker pool, but a snapshot is only produced once
// every tile of the frame has been inferred; partial merges are never
// exposed.
type Pipeline struct {
	capturer Capturer
	detector Detector
	cfg      config.DetectorConfig
	logger   *zap.Logger
}

// NewPipeline wires a capturer and a detector into a perception pipeline.
func NewPipeline(capturer Capturer, detector Detector, cfg config.DetectorConfig, logger *zap.Logger) (*Pipeline, error) {
	if capturer == nil {
		return nil, fmt.Errorf("capturer cannot be nil")
	}
	if detector == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pipeline{
		capturer: capturer,
		detector: detector,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "perception")),
	}, nil
}

// Snapshot captures the given screen rectangle and runs tiled detection
// over it.
func (p *Pipeline) Snapshot(ctx context.Context, rect schemas.Rect) (*Snapshot, error) {
	frame, err := p.capturer.Capture(ctx, rect)
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	return p.DetectFrame(ctx, frame)
}

// DetectFrame infers all tiles of the frame concurrently and merges the
// results. Any tile error fails the whole frame.
func (p *Pipeline) DetectFrame(ctx context.Context, frame Frame) (*Snapshot, error) {
	tiles := TileFrame(frame, p.cfg.TileSize, p.cfg.TileOverlap, p.cfg.ConfidenceThreshold)
	if len(tiles) == 0 {
		return nil, fmt.Errorf("frame has no content to tile (%dx%d)", frame.Width, frame.Height)
	}

	results := make([]TileDetections, len(tiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, tile := range tiles {
		g.Go(func() error {
			dets, err := p.detector.Detect(gctx, tile)
			if err != nil {
				return fmt.Errorf("tile (%d,%d): %w", tile.OffsetX, tile.OffsetY, err)
			}
			results[i] = TileDetections{OffsetX: tile.OffsetX, OffsetY: tile.OffsetY, Detections: dets}
			return nil
		})
	}
	// Full-frame barrier: wait for every tile before merging.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	elements := Merge(results, p.cfg.IoUThreshold)
	p.logger.Debug("Frame detected",
		zap.Int("tiles", len(tiles)),
		zap.Int("elements", len(elements)))

	return &Snapshot{
		Elements:    elements,
		ImageWidth:  frame.Width,
		ImageHeight: frame.Height,
		CapturedAt:  frame.CapturedAt,
	}, nil
}

// File: internal/perception/http_detector.go
package perception

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mverte/visor-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPDetector talks to an external inference service: it posts a PNG-encoded
// tile and receives labeled boxes in tile-local coordinates. The service owns
// the model; this client only carries the contract.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// detectionResponse is the wire shape returned by the inference service.
type detectionResponse struct {
	Detections []struct {
		Label      string     `json:"label"`
		BBox       [4]float64 `json:"bbox"`
		Confidence float64    `json:"confidence"`
	} `json:"detections"`
}

// NewHTTPDetector creates a detector client for the given inference endpoint.
func NewHTTPDetector(endpoint string, timeout time.Duration, logger *zap.Logger) (*HTTPDetector, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("detector endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDetector{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("component", "http_detector")),
	}, nil
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, tile Tile) ([]schemas.Detection, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, tile.Image); err != nil {
		return nil, fmt.Errorf("failed to encode tile: %w", err)
	}

	url := d.endpoint + "?threshold=" + strconv.FormatFloat(tile.Threshold, 'f', -1, 64)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed detectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}

	out := make([]schemas.Detection, 0, len(parsed.Detections))
	for _, raw := range parsed.Detections {
		det := schemas.Detection{
			Label:      raw.Label,
			BBox:       schemas.BBox{X1: raw.BBox[0], Y1: raw.BBox[1], X2: raw.BBox[2], Y2: raw.BBox[3]},
			Confidence: raw.Confidence,
		}
		if !det.BBox.Valid() {
			d.logger.Warn("Discarding malformed detection box", zap.String("label", raw.Label))
			continue
		}
		out = append(out, det)
	}
	return out, nil
}

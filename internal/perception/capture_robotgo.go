// File: internal/perception/capture_robotgo.go
package perception

import (
	"context"
	"fmt"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/mverte/visor-cli/api/schemas"
)

// ScreenCapturer grabs screen content through robotgo. Capture is not
// cancellable mid-flight; the context is only checked before the grab
// starts.
type ScreenCapturer struct{}

// NewScreenCapturer returns a robotgo-backed capturer.
func NewScreenCapturer() *ScreenCapturer { return &ScreenCapturer{} }

// Capture implements Capturer for a screen rectangle.
func (c *ScreenCapturer) Capture(ctx context.Context, rect schemas.Rect) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if rect.Empty() {
		return Frame{}, fmt.Errorf("cannot capture empty rect %+v", rect)
	}

	img, err := robotgo.CaptureImg(rect.Left, rect.Top, rect.Width(), rect.Height())
	if err != nil {
		return Frame{}, fmt.Errorf("screen capture failed: %w", err)
	}

	bounds := img.Bounds()
	return Frame{
		Image:      img,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: time.Now(),
	}, nil
}

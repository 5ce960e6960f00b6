// File: api/schemas/schemas.go
// Shared data types exchanged between the perception, window, dispatch and
// verification layers. These types carry no behavior beyond small geometric
// helpers; ownership and mutation rules live with the components that
// produce them.
package schemas

import (
	"time"
)

// -- Geometry --

// Point is an absolute screen coordinate in physical pixels, ready for
// input injection.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ImagePoint is a coordinate in screenshot space. It is only meaningful
// together with the dimensions of the image it was measured in.
type ImagePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in screen coordinates,
// left/top inclusive, right/bottom exclusive.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Right <= r.Left || r.Bottom <= r.Top }

// BBox is a detection bounding box in image-space pixels, x1<x2, y1<y2.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether the box is well formed.
func (b BBox) Valid() bool { return b.X1 < b.X2 && b.Y1 < b.Y2 }

// Area returns the box area in square pixels.
func (b BBox) Area() float64 { return (b.X2 - b.X1) * (b.Y2 - b.Y1) }

// Center returns the midpoint of the box.
func (b BBox) Center() ImagePoint {
	return ImagePoint{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Translate returns the box shifted by (dx, dy).
func (b BBox) Translate(dx, dy float64) BBox {
	return BBox{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// IoU computes intersection-over-union with another box. Disjoint boxes
// yield 0.
func (b BBox) IoU(o BBox) float64 {
	ix1 := max(b.X1, o.X1)
	iy1 := max(b.Y1, o.Y1)
	ix2 := min(b.X2, o.X2)
	iy2 := min(b.Y2, o.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// -- Perception --

// Detection is one raw labeled box as produced by the detector for a single
// tile, in tile-local coordinates.
type Detection struct {
	Label      string  `json:"label"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// UIElement is a detected, labeled region of a full screenshot believed to
// correspond to an interactive control. Elements are created per detection
// cycle and discarded once the operation they served completes; there is no
// persistent identity across frames.
type UIElement struct {
	Label      string  `json:"label"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Center returns the element's click point in image space.
func (e UIElement) Center() ImagePoint { return e.BBox.Center() }

// -- Window --

// WindowState tracks the lifecycle of the target application's window.
type WindowState string

const (
	WindowNotFound           WindowState = "not_found"
	WindowFound              WindowState = "found"
	WindowActivated          WindowState = "activated"
	WindowActivationDegraded WindowState = "activation_degraded"
	WindowLost               WindowState = "lost"
)

// Actionable reports whether coordinates computed against a window in this
// state may be dispatched for input injection.
func (s WindowState) Actionable() bool {
	return s == WindowActivated || s == WindowActivationDegraded
}

// -- Modality --

// Modality is the chosen execution path for an operation: a structured
// backend call, a simulated visual interaction, or structured-with-visual
// fallback.
type Modality string

const (
	ModalityStructured Modality = "structured"
	ModalityVisual     Modality = "visual"
	ModalityHybrid     Modality = "hybrid"
)

// -- Error taxonomy --

// ErrorKind classifies a failure so that the retry loop can pick the right
// recovery: re-detect, re-activate the window, fall back, or abandon.
type ErrorKind string

const (
	ErrKindNone                     ErrorKind = ""
	ErrKindWindowNotFound           ErrorKind = "WINDOW_NOT_FOUND"
	ErrKindActivationDegraded       ErrorKind = "ACTIVATION_DEGRADED"
	ErrKindTargetNotResolved        ErrorKind = "TARGET_NOT_RESOLVED"
	ErrKindInjectionFailed          ErrorKind = "INJECTION_FAILED"
	ErrKindBackendRejected          ErrorKind = "BACKEND_REJECTED"
	ErrKindVerificationInconclusive ErrorKind = "VERIFICATION_INCONCLUSIVE"
	ErrKindVerificationRefuted      ErrorKind = "VERIFICATION_REFUTED"
	ErrKindTimeout                  ErrorKind = "SESSION_TIMEOUT"
	ErrKindInvalidRequest           ErrorKind = "INVALID_REQUEST"
)

// Retryable reports whether the dispatcher/verifier loop may handle the
// failure internally instead of surfacing it.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindWindowNotFound, ErrKindTargetNotResolved, ErrKindInjectionFailed,
		ErrKindBackendRejected, ErrKindVerificationInconclusive, ErrKindVerificationRefuted:
		return true
	}
	return false
}

// -- Verification --

// VerificationOutcome is the verdict of comparing the post-action snapshot
// against an expected-effect predicate.
type VerificationOutcome string

const (
	VerificationConfirmed    VerificationOutcome = "confirmed"
	VerificationRefuted      VerificationOutcome = "refuted"
	VerificationInconclusive VerificationOutcome = "inconclusive"
	// VerificationSkipped marks operations whose success is already proven by
	// the structured backend's own result.
	VerificationSkipped VerificationOutcome = "skipped"
)

// EffectKind selects the predicate evaluated over before/after detection
// snapshots.
type EffectKind string

const (
	// EffectNone disables visual verification for the operation.
	EffectNone EffectKind = "none"
	// EffectElementAppears expects an element with the given label to be
	// present after the action that was absent before it.
	EffectElementAppears EffectKind = "element_appears"
	// EffectElementVanishes expects a previously present element with the
	// given label to be gone.
	EffectElementVanishes EffectKind = "element_vanishes"
	// EffectElementNearPoint expects an element with the given label within
	// Radius image pixels of Near.
	EffectElementNearPoint EffectKind = "element_near_point"
)

// EffectSpec describes the expected effect of an operation. The zero value
// means "no visual verification".
type EffectSpec struct {
	Kind   EffectKind  `json:"kind"`
	Label  string      `json:"label,omitempty"`
	Near   *ImagePoint `json:"near,omitempty"`
	Radius float64     `json:"radius,omitempty"`
}

// -- Requests --

// TargetSpec is a closed set of ways an operation can name its target:
// a literal screen point, a reference to a detected element, or a structured
// backend call. The sealed interface lets the dispatcher switch exhaustively
// over the variants.
type TargetSpec interface {
	targetSpec()
}

// PointTarget aims the action at a literal screen coordinate.
type PointTarget struct {
	Point Point `json:"point"`
}

// ElementTarget aims the action at a detected UI element by label. Hint, when
// set, disambiguates between multiple candidates sharing the label.
type ElementTarget struct {
	Label string      `json:"label"`
	Hint  *ImagePoint `json:"hint,omitempty"`
}

// CallTarget routes the operation to the structured backend with encoded,
// schema-typed parameters.
type CallTarget struct {
	Params []byte `json:"params,omitempty"`
}

func (PointTarget) targetSpec()   {}
func (ElementTarget) targetSpec() {}
func (CallTarget) targetSpec()    {}

// ActionRequest is one requested operation against the target application.
type ActionRequest struct {
	ID        string
	Operation string
	Target    TargetSpec
	// ModalityHint overrides the registry's classification when non-nil.
	ModalityHint *Modality
	// Expected overrides the registry's default effect predicate when
	// non-nil.
	Expected *EffectSpec
	// Text and Key feed the typing/key-press verbs for visual operations.
	Text string
	Key  string
}

// -- Results --

// AttemptRecord is one entry in the trail of what was tried for a request.
type AttemptRecord struct {
	Attempt    int                 `json:"attempt"`
	Modality   Modality            `json:"modality"`
	Fallback   bool                `json:"fallback"`
	Outcome    VerificationOutcome `json:"outcome,omitempty"`
	ErrorKind  ErrorKind           `json:"error_kind,omitempty"`
	Error      string              `json:"error,omitempty"`
	Escalation bool                `json:"escalation,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	Duration   time.Duration       `json:"duration"`
}

// ActionResult is the terminal outcome of one ActionRequest. It is immutable
// after creation; only Succeeded or Failed (with the trail of what was tried)
// ever crosses the module boundary.
type ActionResult struct {
	RequestID    string              `json:"request_id"`
	Operation    string              `json:"operation"`
	Success      bool                `json:"success"`
	ModalityUsed Modality            `json:"modality_used"`
	FallbackUsed bool                `json:"fallback_used"`
	ErrorKind    ErrorKind           `json:"error_kind,omitempty"`
	Verification VerificationOutcome `json:"verification"`
	Attempts     []AttemptRecord     `json:"attempts"`
	FinishedAt   time.Time           `json:"finished_at"`
}

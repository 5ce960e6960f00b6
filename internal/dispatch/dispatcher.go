// File: internal/dispatch/dispatcher.go
// The dispatcher is the central decision point for how an ActionRequest is
// carried out: it selects an execution modality, runs the request through
// the structured backend or the visual-action path, and applies the
// fallback policy when the structured path fails.
package dispatch

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/backend"
	"github.com/mverte/visor-cli/internal/config"
	"github.com/mverte/visor-cli/internal/inject"
	"github.com/mverte/visor-cli/internal/mapping"
	"github.com/mverte/visor-cli/internal/perception"
	"github.com/mverte/visor-cli/internal/window"
)

// Outcome is the result of one execution pass, before verification.
// Target-resolution failures, injection failures and backend rejections
// carry distinct error kinds because their recovery differs: re-detect,
// re-activate the window, or abandon.
type Outcome struct {
	Modality     schemas.Modality
	FallbackUsed bool
	ErrKind      schemas.ErrorKind
	Err          error
}

// Failed reports whether the execution pass failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// Stats counts dispatcher activity across a session.
type Stats struct {
	StructuredCalls int64
	VisualCalls     int64
	Fallbacks       int64
	Failures        int64
}

// Dispatcher routes requests between the structured backend and the visual
// action path.
type Dispatcher struct {
	backend  *backend.Registry
	injector inject.Injector
	ops      *Registry
	cfg      config.DispatcherConfig
	logger   *zap.Logger

	statsMu sync.Mutex
	stats   Stats
}

// New creates a dispatcher.
func New(
	reg *backend.Registry,
	injector inject.Injector,
	ops *Registry,
	cfg config.DispatcherConfig,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("backend registry cannot be nil")
	}
	if injector == nil {
		return nil, fmt.Errorf("injector cannot be nil")
	}
	if ops == nil {
		return nil, fmt.Errorf("operation registry cannot be nil")
	}
	return &Dispatcher{
		backend:  reg,
		injector: injector,
		ops:      ops,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "dispatcher")),
	}, nil
}

// Ops exposes the operation registry for spec lookups.
func (d *Dispatcher) Ops() *Registry { return d.ops }

// Stats returns a copy of the execution counters.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// SelectModality resolves the execution modality for a request: the
// request's hint wins, otherwise the registry classifies the operation
// name. Total and deterministic.
func (d *Dispatcher) SelectModality(req schemas.ActionRequest) schemas.Modality {
	if req.ModalityHint != nil {
		return *req.ModalityHint
	}
	return d.ops.Classify(req.Operation)
}

// Execute carries out one execution pass of the request against the given
// perception snapshot and window handle. Verification happens afterwards in
// the verifier; Execute never retries on its own, but it does apply the
// modality fallback policy.
func (d *Dispatcher) Execute(ctx context.Context, req schemas.ActionRequest, snap *perception.Snapshot, h window.Handle) Outcome {
	modality := d.SelectModality(req)
	d.logger.Info("Executing operation",
		zap.String("operation", req.Operation),
		zap.String("modality", string(modality)))

	var out Outcome
	switch modality {
	case schemas.ModalityStructured:
		out = d.execStructured(ctx, req)
		// A rejected structured call is re-classified as visual and retried
		// once when fallback is enabled.
		if out.Failed() && d.cfg.EnableFallback {
			d.noteFallback()
			out = d.execVisual(ctx, req, snap, h)
			out.FallbackUsed = true
		}
	case schemas.ModalityVisual:
		out = d.execVisual(ctx, req, snap, h)
	case schemas.ModalityHybrid:
		// Structured first; on any failure fall through to visual
		// unconditionally, with no second structured attempt.
		out = d.execStructured(ctx, req)
		if out.Failed() {
			d.noteFallback()
			out = d.execVisual(ctx, req, snap, h)
			out.FallbackUsed = true
		}
	default:
		out = Outcome{Modality: modality, ErrKind: schemas.ErrKindInvalidRequest,
			Err: fmt.Errorf("unknown modality %q", modality)}
	}

	if out.Failed() {
		d.statsMu.Lock()
		d.stats.Failures++
		d.statsMu.Unlock()
	}
	return out
}

// execStructured invokes the structured backend.
func (d *Dispatcher) execStructured(ctx context.Context, req schemas.ActionRequest) Outcome {
	d.statsMu.Lock()
	d.stats.StructuredCalls++
	d.statsMu.Unlock()

	out := Outcome{Modality: schemas.ModalityStructured}

	var params []byte
	if call, ok := req.Target.(schemas.CallTarget); ok {
		params = call.Params
	}

	result, err := d.backend.Invoke(ctx, req.Operation, params)
	if err != nil {
		out.ErrKind = schemas.ErrKindBackendRejected
		out.Err = fmt.Errorf("backend call %q: %w", req.Operation, err)
		return out
	}
	if !result.Success {
		out.ErrKind = schemas.ErrKindBackendRejected
		out.Err = fmt.Errorf("backend rejected %q: %s", req.Operation, result.Message)
		return out
	}
	return out
}

// execVisual resolves the request's target to a screen point and dispatches
// the operation's input verb. It requires a valid window handle and current
// detections.
func (d *Dispatcher) execVisual(ctx context.Context, req schemas.ActionRequest, snap *perception.Snapshot, h window.Handle) Outcome {
	d.statsMu.Lock()
	d.stats.VisualCalls++
	d.statsMu.Unlock()

	out := Outcome{Modality: schemas.ModalityVisual}

	point, errKind, err := d.resolveTarget(req, snap, h)
	if err != nil {
		out.ErrKind = errKind
		out.Err = err
		return out
	}

	verb := VerbClick
	if spec, ok := d.ops.Spec(req.Operation); ok {
		verb = spec.Verb
	}

	if err := d.dispatchVerb(ctx, verb, point, req); err != nil {
		out.ErrKind = schemas.ErrKindInjectionFailed
		out.Err = fmt.Errorf("input injection for %q: %w", req.Operation, err)
		return out
	}
	return out
}

// resolveTarget turns a TargetSpec into an absolute screen point.
func (d *Dispatcher) resolveTarget(req schemas.ActionRequest, snap *perception.Snapshot, h window.Handle) (schemas.Point, schemas.ErrorKind, error) {
	switch target := req.Target.(type) {
	case schemas.PointTarget:
		// A literal point is caller-supplied and bypasses detection.
		return target.Point, schemas.ErrKindNone, nil

	case schemas.ElementTarget:
		return d.resolveElement(target.Label, target.Hint, snap, h)

	case schemas.CallTarget:
		// A structured call arriving on the visual path (hybrid fallback)
		// targets the toolbar control sharing the operation's label in the
		// detector vocabulary.
		return d.resolveElement(req.Operation, nil, snap, h)

	case nil:
		return schemas.Point{}, schemas.ErrKindInvalidRequest,
			fmt.Errorf("request %q has no target", req.Operation)

	default:
		return schemas.Point{}, schemas.ErrKindInvalidRequest,
			fmt.Errorf("request %q has unsupported target %T", req.Operation, target)
	}
}

// resolveElement finds the best matching detection for a label: exact label
// match, then highest confidence, then smallest distance to the coordinate
// hint.
func (d *Dispatcher) resolveElement(label string, hint *schemas.ImagePoint, snap *perception.Snapshot, h window.Handle) (schemas.Point, schemas.ErrorKind, error) {
	if snap == nil {
		return schemas.Point{}, schemas.ErrKindTargetNotResolved,
			fmt.Errorf("no detections available to resolve %q", label)
	}

	candidates := snap.FindAll(label)
	if len(candidates) == 0 {
		// An empty snapshot means "nothing recognized": retryable after
		// re-detection, not an execution failure.
		return schemas.Point{}, schemas.ErrKindTargetNotResolved,
			fmt.Errorf("no element labeled %q among %d detections", label, len(snap.Elements))
	}

	if len(candidates) > 1 {
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Confidence != candidates[j].Confidence {
				return candidates[i].Confidence > candidates[j].Confidence
			}
			if hint != nil {
				return dist(candidates[i].Center(), *hint) < dist(candidates[j].Center(), *hint)
			}
			return false
		})
	}
	chosen := candidates[0]

	point, err := mapping.MapToScreen(chosen.Center(), snap.ImageWidth, snap.ImageHeight, h)
	if err != nil {
		return schemas.Point{}, schemas.ErrKindTargetNotResolved,
			fmt.Errorf("mapping element %q: %w", label, err)
	}
	return point, schemas.ErrKindNone, nil
}

// dispatchVerb performs the input gesture at the resolved point.
func (d *Dispatcher) dispatchVerb(ctx context.Context, verb Verb, p schemas.Point, req schemas.ActionRequest) error {
	switch verb {
	case VerbClick:
		return d.injector.MoveAndClick(ctx, p)
	case VerbDoubleClick:
		return d.injector.DoubleClick(ctx, p)
	case VerbType:
		if err := d.injector.MoveAndClick(ctx, p); err != nil {
			return err
		}
		return d.injector.TypeText(ctx, req.Text)
	case VerbKey:
		return d.injector.PressKey(ctx, req.Key)
	default:
		return fmt.Errorf("unknown verb %q", verb)
	}
}

func (d *Dispatcher) noteFallback() {
	d.statsMu.Lock()
	d.stats.Fallbacks++
	d.statsMu.Unlock()
	d.logger.Warn("Structured path failed, falling back to visual")
}

func dist(a schemas.ImagePoint, b schemas.ImagePoint) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

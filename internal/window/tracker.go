// File: internal/window/tracker.go
// The tracker owns the WindowHandle: it finds the target application's
// window, maintains its geometry and DPI scale, and runs the best-effort
// activation state machine. No other component mutates the handle.
package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/config"
)

var (
	// ErrWindowNotFound is recoverable: the target application is not
	// running (yet). Callers may wait and poll.
	ErrWindowNotFound = errors.New("target window not found")
	// ErrWindowLost means a previously located window disappeared. The
	// handle must be reacquired with Locate, never silently reused.
	ErrWindowLost = errors.New("target window lost")
	// ErrActivationFailed means every activation strategy failed and the
	// window is not even visible.
	ErrActivationFailed = errors.New("all window activation strategies failed")
)

// rateFallbackInterval guards against a zero locate interval in config.
const rateFallbackInterval = 500 * time.Millisecond

// ID is a native window identifier, opaque to everything but the System
// adapter that produced it.
type ID int64

// Info identifies a located top-level window.
type Info struct {
	ID    ID
	Title string
}

// Geometry is the current screen placement of a window.
type Geometry struct {
	Outer    schemas.Rect
	Client   schemas.Rect
	DPIScale float64
}

// System is the window-system interface the tracker consumes.
type System interface {
	// FindWindow returns the first visible top-level window whose title
	// matches the pattern, or ErrWindowNotFound.
	FindWindow(titlePattern string) (Info, error)
	// IsValid reports whether the window still exists.
	IsValid(id ID) bool
	// IsVisible reports whether the window is shown on screen.
	IsVisible(id ID) bool
	// IsForeground reports whether the window currently has input focus.
	IsForeground(id ID) bool
	// Restore un-minimizes the window if needed.
	Restore(id ID) error
	// Geometry returns the window's current rectangles and DPI scale.
	Geometry(id ID) (Geometry, error)
}

// ActivationStrategy is one way of bringing a window to the foreground.
// Strategies are tried in order until one leaves the window focused; each
// reports its own distinct outcome instead of being swallowed into a single
// boolean.
type ActivationStrategy interface {
	Name() string
	Activate(id ID) error
}

// Handle is the tracker's view of the target window. Copies handed out by
// the tracker are snapshots; only the tracker mutates the live state.
type Handle struct {
	ID         ID
	Title      string
	OuterRect  schemas.Rect
	ClientRect schemas.Rect
	DPIScale   float64
	State      schemas.WindowState
}

// Tracker drives the NotFound → Found → Activated state machine, with
// ActivationDegraded reached when the environment refuses to focus a window
// that is nonetheless locatable and visible.
type Tracker struct {
	mu         sync.Mutex
	sys        System
	strategies []ActivationStrategy
	cfg        config.WindowConfig
	logger     *zap.Logger
	handle     Handle
}

// NewTracker builds a tracker over the given window system and ordered
// activation strategies.
func NewTracker(sys System, strategies []ActivationStrategy, cfg config.WindowConfig, logger *zap.Logger) (*Tracker, error) {
	if sys == nil {
		return nil, fmt.Errorf("window system cannot be nil")
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("at least one activation strategy is required")
	}
	if cfg.TitlePattern == "" {
		return nil, fmt.Errorf("window.title_pattern cannot be empty")
	}
	return &Tracker{
		sys:        sys,
		strategies: strategies,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "window_tracker")),
		handle:     Handle{State: schemas.WindowNotFound},
	}, nil
}

// Handle returns a snapshot of the current window handle.
func (t *Tracker) Handle() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle
}

// State returns the current window state.
func (t *Tracker) State() schemas.WindowState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle.State
}

// Locate performs a single search for the target window. On a match the
// state moves NotFound→Found (or re-acquires after Lost); otherwise the
// state stays NotFound and ErrWindowNotFound is returned.
func (t *Tracker) Locate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := t.sys.FindWindow(t.cfg.TitlePattern)
	if err != nil {
		t.mu.Lock()
		t.handle = Handle{State: schemas.WindowNotFound}
		t.mu.Unlock()
		if errors.Is(err, ErrWindowNotFound) {
			return fmt.Errorf("%w: no window matching %q", ErrWindowNotFound, t.cfg.TitlePattern)
		}
		return fmt.Errorf("window search failed: %w", err)
	}

	t.mu.Lock()
	t.handle = Handle{ID: info.ID, Title: info.Title, State: schemas.WindowFound}
	t.mu.Unlock()

	t.logger.Info("Target window located",
		zap.Int64("window_id", int64(info.ID)),
		zap.String("title", info.Title))
	return nil
}

// WaitForWindow polls Locate until the window appears, the configured locate
// timeout elapses, or the context is cancelled.
func (t *Tracker) WaitForWindow(ctx context.Context) error {
	interval := t.cfg.LocateInterval
	if interval <= 0 {
		interval = rateFallbackInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	ctx, cancel := context.WithTimeout(ctx, t.cfg.LocateTimeout)
	defer cancel()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: gave up waiting: %v", ErrWindowNotFound, err)
		}
		if err := t.Locate(ctx); err == nil {
			return nil
		} else if !errors.Is(err, ErrWindowNotFound) {
			return err
		}
	}
}

// Activate tries each strategy in order until one leaves the window
// focused, transitioning Found→Activated. If every strategy fails but the
// window remains visible, the state becomes ActivationDegraded and Activate
// returns nil: many actions only need the window visible, not focused, so
// callers are warned rather than blocked.
func (t *Tracker) Activate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	h := t.handle
	t.mu.Unlock()

	if h.State == schemas.WindowNotFound || h.State == schemas.WindowLost {
		if err := t.Locate(ctx); err != nil {
			return err
		}
		h = t.Handle()
	}

	if !t.sys.IsValid(h.ID) {
		t.markLost()
		return fmt.Errorf("%w: window %d gone before activation", ErrWindowLost, h.ID)
	}

	// Restore first: a minimized window cannot be focused on most systems.
	if err := t.sys.Restore(h.ID); err != nil {
		t.logger.Debug("Window restore failed", zap.Error(err))
	}

	for _, strategy := range t.strategies {
		if err := strategy.Activate(h.ID); err != nil {
			t.logger.Debug("Activation strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.Error(err))
			continue
		}
		if t.sys.IsForeground(h.ID) {
			t.setState(schemas.WindowActivated)
			t.logger.Info("Window activated", zap.String("strategy", strategy.Name()))
			return nil
		}
		t.logger.Debug("Strategy completed but window not foreground",
			zap.String("strategy", strategy.Name()))
	}

	if t.sys.IsVisible(h.ID) {
		t.setState(schemas.WindowActivationDegraded)
		t.logger.Warn("Window visible but could not be focused; proceeding degraded",
			zap.Int64("window_id", int64(h.ID)))
		return nil
	}

	t.markLostIfInvalid(h.ID)
	return ErrActivationFailed
}

// Geometry re-queries the window's rectangles and DPI scale, updating the
// handle. It must be called before every capture, since the window may move
// or resize between operations. A vanished window transitions to Lost.
func (t *Tracker) Geometry(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}

	t.mu.Lock()
	h := t.handle
	t.mu.Unlock()

	if h.State == schemas.WindowNotFound {
		return Handle{}, fmt.Errorf("%w: locate the window first", ErrWindowNotFound)
	}
	if h.State == schemas.WindowLost {
		return Handle{}, fmt.Errorf("%w: reacquire with Locate", ErrWindowLost)
	}
	if !t.sys.IsValid(h.ID) {
		t.markLost()
		return Handle{}, fmt.Errorf("%w: window %d disappeared", ErrWindowLost, h.ID)
	}

	geo, err := t.sys.Geometry(h.ID)
	if err != nil {
		return Handle{}, fmt.Errorf("geometry query failed: %w", err)
	}
	if geo.DPIScale <= 0 {
		geo.DPIScale = 1.0
	}

	t.mu.Lock()
	t.handle.OuterRect = geo.Outer
	t.handle.ClientRect = geo.Client
	t.handle.DPIScale = geo.DPIScale
	h = t.handle
	t.mu.Unlock()

	return h, nil
}

func (t *Tracker) setState(s schemas.WindowState) {
	t.mu.Lock()
	t.handle.State = s
	t.mu.Unlock()
}

func (t *Tracker) markLost() {
	t.mu.Lock()
	t.handle.State = schemas.WindowLost
	t.mu.Unlock()
	t.logger.Warn("Target window lost")
}

func (t *Tracker) markLostIfInvalid(id ID) {
	if !t.sys.IsValid(id) {
		t.markLost()
	}
}

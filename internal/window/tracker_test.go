// File: internal/window/tracker_test.go
package window

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/config"
)

// fakeSystem scripts the window system's answers.
type fakeSystem struct {
	mu         sync.Mutex
	info       Info
	findErr    error
	valid      bool
	visible    bool
	foreground bool
	geo        Geometry
	geoErr     error

	findCalls int
	restored  int
}

func (f *fakeSystem) FindWindow(pattern string) (Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		return Info{}, f.findErr
	}
	return f.info, nil
}

func (f *fakeSystem) setFindErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findErr = err
}

func (f *fakeSystem) findCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls
}
func (f *fakeSystem) IsValid(ID) bool      { return f.valid }
func (f *fakeSystem) IsVisible(ID) bool    { return f.visible }
func (f *fakeSystem) IsForeground(ID) bool { return f.foreground }
func (f *fakeSystem) Restore(ID) error     { f.restored++; return nil }
func (f *fakeSystem) Geometry(ID) (Geometry, error) {
	if f.geoErr != nil {
		return Geometry{}, f.geoErr
	}
	return f.geo, nil
}

// scriptedStrategy fails a fixed number of times, then flips the system's
// foreground flag on success.
type scriptedStrategy struct {
	name     string
	failures int
	sys      *fakeSystem
	calls    int
}

func (s *scriptedStrategy) Name() string { return s.name }
func (s *scriptedStrategy) Activate(ID) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("access denied")
	}
	if s.sys != nil {
		s.sys.foreground = true
	}
	return nil
}

func healthySystem() *fakeSystem {
	return &fakeSystem{
		info:    Info{ID: 42, Title: "CAD - Part1"},
		valid:   true,
		visible: true,
		geo: Geometry{
			Outer:    schemas.Rect{Left: 92, Top: 68, Right: 1708, Bottom: 908},
			Client:   schemas.Rect{Left: 100, Top: 100, Right: 1700, Bottom: 900},
			DPIScale: 1.0,
		},
	}
}

func windowConfig() config.WindowConfig {
	return config.WindowConfig{
		TitlePattern:   "CAD",
		LocateTimeout:  200 * time.Millisecond,
		LocateInterval: 10 * time.Millisecond,
	}
}

func newTestTracker(t *testing.T, sys *fakeSystem, strategies ...ActivationStrategy) *Tracker {
	t.Helper()
	if len(strategies) == 0 {
		strategies = []ActivationStrategy{&scriptedStrategy{name: "direct", sys: sys}}
	}
	tr, err := NewTracker(sys, strategies, windowConfig(), zap.NewNop())
	require.NoError(t, err)
	return tr
}

func TestNewTracker(t *testing.T) {
	sys := healthySystem()
	_, err := NewTracker(nil, []ActivationStrategy{&scriptedStrategy{}}, windowConfig(), zap.NewNop())
	assert.Error(t, err)

	_, err = NewTracker(sys, nil, windowConfig(), zap.NewNop())
	assert.Error(t, err)

	cfg := windowConfig()
	cfg.TitlePattern = ""
	_, err = NewTracker(sys, []ActivationStrategy{&scriptedStrategy{}}, cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestLocate(t *testing.T) {
	ctx := context.Background()

	t.Run("transitions NotFound to Found on a match", func(t *testing.T) {
		tr := newTestTracker(t, healthySystem())
		require.Equal(t, schemas.WindowNotFound, tr.State())

		require.NoError(t, tr.Locate(ctx))
		assert.Equal(t, schemas.WindowFound, tr.State())
		assert.Equal(t, ID(42), tr.Handle().ID)
	})

	t.Run("stays NotFound on a miss", func(t *testing.T) {
		sys := healthySystem()
		sys.findErr = ErrWindowNotFound
		tr := newTestTracker(t, sys)

		err := tr.Locate(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWindowNotFound)
		assert.Equal(t, schemas.WindowNotFound, tr.State())
	})
}

func TestWaitForWindow(t *testing.T) {
	t.Run("returns once the window appears", func(t *testing.T) {
		sys := healthySystem()
		sys.findErr = ErrWindowNotFound
		tr := newTestTracker(t, sys)

		go func() {
			time.Sleep(40 * time.Millisecond)
			sys.setFindErr(nil)
		}()

		require.NoError(t, tr.WaitForWindow(context.Background()))
		assert.Equal(t, schemas.WindowFound, tr.State())
		assert.Greater(t, sys.findCount(), 1)
	})

	t.Run("gives up after the locate timeout", func(t *testing.T) {
		sys := healthySystem()
		sys.findErr = ErrWindowNotFound
		tr := newTestTracker(t, sys)

		err := tr.WaitForWindow(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWindowNotFound)
	})
}

func TestActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("first strategy succeeds", func(t *testing.T) {
		sys := healthySystem()
		direct := &scriptedStrategy{name: "direct", sys: sys}
		tr := newTestTracker(t, sys, direct)
		require.NoError(t, tr.Locate(ctx))

		require.NoError(t, tr.Activate(ctx))
		assert.Equal(t, schemas.WindowActivated, tr.State())
		assert.Equal(t, 1, direct.calls)
		assert.Equal(t, 1, sys.restored, "minimized windows are restored before focusing")
	})

	t.Run("falls through to the next strategy and still reaches Activated", func(t *testing.T) {
		sys := healthySystem()
		direct := &scriptedStrategy{name: "direct", failures: 1}
		attach := &scriptedStrategy{name: "attach_input", sys: sys}
		tr := newTestTracker(t, sys, direct, attach)
		require.NoError(t, tr.Locate(ctx))

		require.NoError(t, tr.Activate(ctx))
		// Success through a fallback strategy is full activation, not
		// degraded.
		assert.Equal(t, schemas.WindowActivated, tr.State())
		assert.Equal(t, 1, direct.calls)
		assert.Equal(t, 1, attach.calls)
	})

	t.Run("visible but unfocusable degrades instead of failing", func(t *testing.T) {
		sys := healthySystem()
		// Every strategy "succeeds" but the window never gains focus.
		stubborn := &scriptedStrategy{name: "direct"}
		tr := newTestTracker(t, sys, stubborn)
		require.NoError(t, tr.Locate(ctx))

		require.NoError(t, tr.Activate(ctx))
		assert.Equal(t, schemas.WindowActivationDegraded, tr.State())
		assert.True(t, tr.State().Actionable())
	})

	t.Run("invisible and unfocusable fails", func(t *testing.T) {
		sys := healthySystem()
		sys.visible = false
		tr := newTestTracker(t, sys, &scriptedStrategy{name: "direct", failures: 99})
		require.NoError(t, tr.Locate(ctx))

		err := tr.Activate(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrActivationFailed)
	})

	t.Run("auto-locates when not yet found", func(t *testing.T) {
		sys := healthySystem()
		tr := newTestTracker(t, sys, &scriptedStrategy{name: "direct", sys: sys})

		require.NoError(t, tr.Activate(ctx))
		assert.Equal(t, schemas.WindowActivated, tr.State())
		assert.Equal(t, 1, sys.findCalls)
	})

	t.Run("a vanished window transitions to Lost", func(t *testing.T) {
		sys := healthySystem()
		tr := newTestTracker(t, sys)
		require.NoError(t, tr.Locate(ctx))

		sys.valid = false
		err := tr.Activate(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWindowLost)
		assert.Equal(t, schemas.WindowLost, tr.State())
	})
}

func TestGeometry(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes the handle from the window system", func(t *testing.T) {
		sys := healthySystem()
		tr := newTestTracker(t, sys)
		require.NoError(t, tr.Locate(ctx))

		h, err := tr.Geometry(ctx)
		require.NoError(t, err)
		assert.Equal(t, sys.geo.Client, h.ClientRect)
		assert.Equal(t, sys.geo.Outer, h.OuterRect)

		// The window moved; the next query reflects it.
		sys.geo.Client = schemas.Rect{Left: 300, Top: 200, Right: 1900, Bottom: 1000}
		h, err = tr.Geometry(ctx)
		require.NoError(t, err)
		assert.Equal(t, 300, h.ClientRect.Left)
	})

	t.Run("requires a located window", func(t *testing.T) {
		tr := newTestTracker(t, healthySystem())
		_, err := tr.Geometry(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWindowNotFound)
	})

	t.Run("a vanished window transitions to Lost and stays Lost", func(t *testing.T) {
		sys := healthySystem()
		tr := newTestTracker(t, sys)
		require.NoError(t, tr.Locate(ctx))

		sys.valid = false
		_, err := tr.Geometry(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWindowLost)
		assert.Equal(t, schemas.WindowLost, tr.State())

		// Lost is sticky until Locate reacquires the window.
		sys.valid = true
		_, err = tr.Geometry(ctx)
		assert.ErrorIs(t, err, ErrWindowLost)

		require.NoError(t, tr.Locate(ctx))
		_, err = tr.Geometry(ctx)
		assert.NoError(t, err)
	})

	t.Run("defaults a missing DPI scale to identity", func(t *testing.T) {
		sys := healthySystem()
		sys.geo.DPIScale = 0
		tr := newTestTracker(t, sys)
		require.NoError(t, tr.Locate(ctx))

		h, err := tr.Geometry(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1.0, h.DPIScale)
	})
}

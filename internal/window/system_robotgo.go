// File: internal/window/system_robotgo.go
// robotgo-backed implementation of the System interface and the ordered
// activation strategies. robotgo addresses windows by owning process id, so
// ID carries a pid here.
package window

import (
	"fmt"
	"strings"

	"github.com/go-vgo/robotgo"

	"github.com/mverte/visor-cli/api/schemas"
)

// RobotSystem adapts robotgo's process/window calls to the System interface.
type RobotSystem struct{}

// NewRobotSystem returns a robotgo-backed window system.
func NewRobotSystem() *RobotSystem { return &RobotSystem{} }

// FindWindow scans running processes for one whose window title contains the
// pattern (case-insensitive).
func (s *RobotSystem) FindWindow(titlePattern string) (Info, error) {
	procs, err := robotgo.Process()
	if err != nil {
		return Info{}, fmt.Errorf("process enumeration failed: %w", err)
	}

	want := strings.ToLower(titlePattern)
	for _, p := range procs {
		title := robotgo.GetTitle(p.Pid)
		if title == "" {
			continue
		}
		if strings.Contains(strings.ToLower(title), want) {
			return Info{ID: ID(p.Pid), Title: title}, nil
		}
	}
	return Info{}, ErrWindowNotFound
}

// IsValid reports whether the owning process is still alive.
func (s *RobotSystem) IsValid(id ID) bool {
	ok, err := robotgo.PidExists(int32(id))
	return err == nil && ok
}

// IsVisible approximates visibility by the window reporting a non-empty
// bounds rectangle; robotgo exposes no direct visibility query.
func (s *RobotSystem) IsVisible(id ID) bool {
	_, _, w, h := robotgo.GetBounds(int32(id))
	return w > 0 && h > 0
}

// IsForeground compares the active window's title with the target's.
func (s *RobotSystem) IsForeground(id ID) bool {
	active := robotgo.GetTitle()
	own := robotgo.GetTitle(int32(id))
	return own != "" && active == own
}

// Restore brings a minimized window back; robotgo folds restore into
// activation, so this delegates to ActivePid and tolerates failure.
func (s *RobotSystem) Restore(id ID) error {
	return robotgo.ActivePid(int32(id))
}

// Geometry returns the window bounds and the display scale factor. robotgo
// reports a single rectangle per window, so the client rect equals the outer
// rect here; adapters with access to frame metrics can do better.
func (s *RobotSystem) Geometry(id ID) (Geometry, error) {
	x, y, w, h := robotgo.GetBounds(int32(id))
	if w <= 0 || h <= 0 {
		return Geometry{}, fmt.Errorf("window %d reports empty bounds", id)
	}
	rect := schemas.Rect{Left: x, Top: y, Right: x + w, Bottom: y + h}
	return Geometry{
		Outer:    rect,
		Client:   rect,
		DPIScale: robotgo.ScaleF(),
	}, nil
}

// -- Activation strategies --

// DirectActivation is the standard foreground call.
type DirectActivation struct{}

func (DirectActivation) Name() string { return "direct_foreground" }

func (DirectActivation) Activate(id ID) error {
	return robotgo.ActivePid(int32(id))
}

// TitleActivation activates through the window-title lookup path, which on
// some systems succeeds where the pid path is refused.
type TitleActivation struct{}

func (TitleActivation) Name() string { return "title_lookup" }

func (TitleActivation) Activate(id ID) error {
	title := robotgo.GetTitle(int32(id))
	if title == "" {
		return fmt.Errorf("window %d has no title to activate by", id)
	}
	return robotgo.ActiveName(title)
}

// RaiseActivation raises the window without demanding focus; the tracker
// downgrades to ActivationDegraded when focus never arrives.
type RaiseActivation struct{}

func (RaiseActivation) Name() string { return "raise_no_focus" }

func (RaiseActivation) Activate(id ID) error {
	robotgo.MaxWindow(int32(id))
	return nil
}

// DefaultStrategies returns the activation order used in production: direct
// foreground call, then the title-lookup path, then a best-effort raise.
func DefaultStrategies() []ActivationStrategy {
	return []ActivationStrategy{DirectActivation{}, TitleActivation{}, RaiseActivation{}}
}

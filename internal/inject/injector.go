// File: internal/inject/injector.go
// Input injection: the contract the dispatcher needs, and a robotgo-backed
// implementation that moves the cursor along synthesized trajectories
// instead of teleporting it. Each call reports success or failure but never
// partial completion.
package inject

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-vgo/robotgo"
	"go.uber.org/zap"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/config"
)

// Injector is the input-injection interface consumed by the dispatcher.
type Injector interface {
	MoveAndClick(ctx context.Context, p schemas.Point) error
	DoubleClick(ctx context.Context, p schemas.Point) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
}

// RobotInjector drives the OS cursor and keyboard through robotgo.
type RobotInjector struct {
	cfg    config.InjectorConfig
	logger *zap.Logger
	rng    *rand.Rand
}

// NewRobotInjector builds an injector with the given movement shaping.
func NewRobotInjector(cfg config.InjectorConfig, logger *zap.Logger) *RobotInjector {
	if cfg.StepsPerSecond <= 0 {
		cfg.StepsPerSecond = 120
	}
	if cfg.MoveDuration <= 0 {
		cfg.MoveDuration = 350 * time.Millisecond
	}
	return &RobotInjector{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "injector")),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// moveTo walks the cursor along a generated path. Movement is not
// cancellable mid-flight; the context gates only the start.
func (r *RobotInjector) moveTo(ctx context.Context, target schemas.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	curX, curY := robotgo.Location()
	start := schemas.Point{X: curX, Y: curY}

	steps := int(r.cfg.MoveDuration.Seconds() * float64(r.cfg.StepsPerSecond))
	if steps < 2 {
		steps = 2
	}
	path := GeneratePath(start, target, steps, r.cfg.JitterAmplitude, r.rng.Int63())

	stepDelay := r.cfg.MoveDuration / time.Duration(len(path))
	for _, p := range path {
		robotgo.Move(p.X, p.Y)
		time.Sleep(stepDelay)
	}
	return nil
}

// MoveAndClick implements Injector.
func (r *RobotInjector) MoveAndClick(ctx context.Context, p schemas.Point) error {
	if err := r.moveTo(ctx, p); err != nil {
		return err
	}
	r.holdPause()
	robotgo.Click("left", false)
	r.logger.Debug("Clicked", zap.Int("x", p.X), zap.Int("y", p.Y))
	return nil
}

// DoubleClick implements Injector.
func (r *RobotInjector) DoubleClick(ctx context.Context, p schemas.Point) error {
	if err := r.moveTo(ctx, p); err != nil {
		return err
	}
	r.holdPause()
	robotgo.Click("left", true)
	r.logger.Debug("Double-clicked", zap.Int("x", p.X), zap.Int("y", p.Y))
	return nil
}

// TypeText implements Injector.
func (r *RobotInjector) TypeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.TypeStr(text)
	return nil
}

// PressKey implements Injector.
func (r *RobotInjector) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("key name cannot be empty")
	}
	return robotgo.KeyTap(key)
}

// holdPause inserts a short randomized dwell between arrival and press.
func (r *RobotInjector) holdPause() {
	hold := r.cfg.ClickHold
	if hold <= 0 {
		return
	}
	jitter := time.Duration(r.rng.Int63n(int64(hold)/2 + 1))
	time.Sleep(hold/2 + jitter)
}

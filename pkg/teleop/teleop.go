// Package teleop provides keyboard teleoperation of a robot arm.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gwillem/urteleop/pkg/robot"
)

// Key bindings.
const (
	KeyQuit    = 'c'
	KeyHome    = '1'
	KeyProgram = '2'
)

// Controller runs a teleoperation session: it records robot state for the
// whole session and dispatches keystrokes to arm actions.
type Controller struct {
	arm robot.Arm
	cfg Config

	mu      sync.Mutex
	running bool
	logCh   chan string
}

// Config holds configuration for the controller.
type Config struct {
	Recording    robot.RecordingConfig
	Home         robot.Joints
	Velocity     float64
	Acceleration float64
	Program      string
}

// ConfigFrom builds a controller config from a session config.
func ConfigFrom(c *robot.Config) Config {
	return Config{
		Recording:    c.Recording,
		Home:         c.Motion.Home,
		Velocity:     c.Motion.Velocity,
		Acceleration: c.Motion.Acceleration,
		Program:      c.Program,
	}
}

// NewController creates a new teleoperation controller.
func NewController(arm robot.Arm, cfg Config) *Controller {
	if cfg.Velocity <= 0 {
		cfg.Velocity = robot.DefaultVelocity
	}
	if cfg.Acceleration <= 0 {
		cfg.Acceleration = robot.DefaultAcceleration
	}
	if cfg.Program == "" {
		cfg.Program = robot.DefaultProgram
	}
	return &Controller{
		arm:   arm,
		cfg:   cfg,
		logCh: make(chan string, 10),
	}
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Recording returns the recording configuration.
func (c *Controller) Recording() robot.RecordingConfig {
	return c.cfg.Recording
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Run records robot state and handles keys from keys until the quit key,
// an interrupt or an action error. The recording is stopped on every path
// once it has started. An interrupt ends the session without error.
func (c *Controller) Run(ctx context.Context, keys KeySource) (err error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if err := c.arm.StartRecording(ctx, c.cfg.Recording); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	c.log("Recording to %s at %g Hz", c.cfg.Recording.Output, c.cfg.Recording.Frequency)
	defer func() {
		if stopErr := c.stopRecording(); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	if settle := c.cfg.Recording.Settle(); settle > 0 {
		select {
		case <-ctx.Done():
			c.log("Interrupted")
			return nil
		case <-time.After(settle):
		}
	}

	c.log("Press '%c' to move home, '%c' to play %s, '%c' to quit", KeyHome, KeyProgram, c.cfg.Program, KeyQuit)
	for {
		key, err := keys.ReadKey(ctx)
		if err != nil {
			if interrupted(ctx, err) {
				c.log("Interrupted")
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.log("Input closed")
				return nil
			}
			return fmt.Errorf("read key: %w", err)
		}

		if key == KeyQuit {
			c.log("Quit")
			return nil
		}
		if err := c.handle(ctx, key); err != nil {
			if interrupted(ctx, err) {
				c.log("Interrupted")
				return nil
			}
			c.log("Error: %v", err)
			return err
		}
	}
}

// handle runs the action bound to key. Unbound keys are ignored.
func (c *Controller) handle(ctx context.Context, key rune) error {
	switch key {
	case KeyHome:
		c.log("Moving to %v", c.cfg.Home)
		if err := c.arm.MoveJ(ctx, c.cfg.Home, c.cfg.Velocity, c.cfg.Acceleration); err != nil {
			return fmt.Errorf("move home: %w", err)
		}
	case KeyProgram:
		c.log("Playing %s", c.cfg.Program)
		if err := c.arm.LoadProgram(ctx, c.cfg.Program); err != nil {
			return fmt.Errorf("load program: %w", err)
		}
		if err := c.arm.PlayProgram(ctx); err != nil {
			return fmt.Errorf("play program: %w", err)
		}
	}
	return nil
}

func (c *Controller) stopRecording() error {
	stats, err := c.arm.StopRecording()
	if err != nil {
		c.log("Warning: stop recording: %v", err)
		return fmt.Errorf("stop recording: %w", err)
	}
	c.log("Recorded %s samples (%s) to %s",
		humanize.Comma(int64(stats.Samples)), humanize.Bytes(uint64(stats.Bytes)), stats.Path)
	return nil
}

func interrupted(ctx context.Context, err error) bool {
	return errors.Is(err, ErrInterrupted) ||
		(ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)))
}

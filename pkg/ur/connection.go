// Package ur provides a connection to Universal Robots controllers: the
// dashboard server for programs, the script interface for motion and RTDE
// for recording.
package ur

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gwillem/urteleop/pkg/robot"
)

var (
	// ErrRecording is returned when starting a recording while one is active.
	ErrRecording = errors.New("already recording")
	// ErrNotRecording is returned when stopping without an active recording.
	ErrNotRecording = errors.New("not recording")
)

// DefaultDialTimeout bounds connection setup.
const DefaultDialTimeout = 5 * time.Second

// Addrs holds the host:port of each controller interface.
type Addrs struct {
	Dashboard string
	Script    string
	RTDE      string
}

// DefaultAddrs returns the well-known ports on host.
func DefaultAddrs(host string) Addrs {
	return Addrs{
		Dashboard: net.JoinHostPort(host, strconv.Itoa(DashboardPort)),
		Script:    net.JoinHostPort(host, strconv.Itoa(ScriptPort)),
		RTDE:      net.JoinHostPort(host, strconv.Itoa(RTDEPort)),
	}
}

type options struct {
	logger      *slog.Logger
	dialTimeout time.Duration
}

// Option configures a Connection.
type Option func(*options)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDialTimeout sets the timeout for each connection setup.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// Connection is a connection to a robot controller. It implements robot.Arm.
type Connection struct {
	addrs   Addrs
	opts    options
	dash    *Dashboard
	script  *ScriptClient
	samples chan Sample

	mu  sync.Mutex
	rec *Recorder
}

var _ robot.Arm = (*Connection)(nil)

// Dial connects to the dashboard and script interfaces of the controller at
// host.
func Dial(ctx context.Context, host string, opts ...Option) (*Connection, error) {
	return DialAddrs(ctx, DefaultAddrs(host), opts...)
}

// DialAddrs connects to the dashboard and script interfaces at addrs.
func DialAddrs(ctx context.Context, addrs Addrs, opts ...Option) (*Connection, error) {
	o := options{
		logger:      slog.New(slog.DiscardHandler),
		dialTimeout: DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Connection{
		addrs:   addrs,
		opts:    o,
		samples: make(chan Sample, 1),
	}

	dctx, cancel := c.dialContext(ctx)
	defer cancel()

	dash, err := DialDashboard(dctx, addrs.Dashboard, o.logger)
	if err != nil {
		return nil, err
	}
	script, err := DialScript(dctx, addrs.Script)
	if err != nil {
		dash.Close()
		return nil, err
	}
	c.dash = dash
	c.script = script
	o.logger.Info("connected to controller", "dashboard", addrs.Dashboard, "script", addrs.Script)
	return c, nil
}

func (c *Connection) dialContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.dialTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.dialTimeout)
}

// Dashboard returns the dashboard client.
func (c *Connection) Dashboard() *Dashboard {
	return c.dash
}

// Samples returns a channel receiving the published fields of the active
// recording. Only the most recent sample is kept.
func (c *Connection) Samples() <-chan Sample {
	return c.samples
}

// StartRecording starts recording robot state over RTDE.
func (c *Connection) StartRecording(ctx context.Context, rc robot.RecordingConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil {
		return ErrRecording
	}

	dctx, cancel := c.dialContext(ctx)
	defer cancel()
	rec, err := StartRecorder(dctx, c.addrs.RTDE, rc, c.samples, c.opts.logger)
	if err != nil {
		return err
	}
	c.rec = rec
	return nil
}

// StopRecording stops the active recording.
func (c *Connection) StopRecording() (robot.RecordingStats, error) {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()

	if rec == nil {
		return robot.RecordingStats{}, ErrNotRecording
	}
	return rec.Stop()
}

// Recording reports whether a recording is active.
func (c *Connection) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil
}

// MoveJ moves the arm to q in joint space.
func (c *Connection) MoveJ(ctx context.Context, q robot.Joints, velocity, acceleration float64) error {
	if err := c.script.MoveJ(ctx, q, velocity, acceleration); err != nil {
		return fmt.Errorf("movej: %w", err)
	}
	return nil
}

// LoadProgram loads a program file stored on the controller.
func (c *Connection) LoadProgram(ctx context.Context, path string) error {
	if err := c.dash.LoadProgram(ctx, path); err != nil {
		return fmt.Errorf("load program %s: %w", path, err)
	}
	return nil
}

// PlayProgram starts the loaded program.
func (c *Connection) PlayProgram(ctx context.Context) error {
	if err := c.dash.Play(ctx); err != nil {
		return fmt.Errorf("play program: %w", err)
	}
	return nil
}

// Close stops an active recording and closes all connections.
func (c *Connection) Close() error {
	var errs []error
	if _, err := c.StopRecording(); err != nil && !errors.Is(err, ErrNotRecording) {
		errs = append(errs, err)
	}
	if err := c.script.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.dash.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

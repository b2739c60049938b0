package ur

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// DashboardPort is the dashboard server port.
const DashboardPort = 29999

// bannerTimeout bounds the wait for the welcome line when ctx has no deadline.
const bannerTimeout = 5 * time.Second

// CommandError is returned when the dashboard server answers a command with
// an unexpected reply.
type CommandError struct {
	Command string
	Reply   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("dashboard %q: %s", e.Command, e.Reply)
}

// Dashboard is a client for the dashboard server, a line-based text
// protocol for program and robot state control.
type Dashboard struct {
	conn   net.Conn
	r      *bufio.Reader
	logger *slog.Logger
	banner string

	mu sync.Mutex
}

// DialDashboard connects to the dashboard server at addr and reads its
// welcome banner.
func DialDashboard(ctx context.Context, addr string, logger *slog.Logger) (*Dashboard, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial dashboard %s: %w", addr, err)
	}
	d := &Dashboard{
		conn:   conn,
		r:      bufio.NewReader(conn),
		logger: logger,
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(bannerTimeout)
	}
	conn.SetReadDeadline(deadline)
	banner, err := d.readLine()
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read dashboard banner: %w", err)
	}
	d.banner = banner
	logger.Debug("dashboard connected", "addr", addr, "banner", banner)
	return d, nil
}

// Banner returns the welcome line sent by the server.
func (d *Dashboard) Banner() string {
	return d.banner
}

// Command sends a raw command and returns the reply line.
func (d *Dashboard) Command(ctx context.Context, cmd string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		d.conn.SetDeadline(deadline)
		defer d.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		d.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := fmt.Fprintf(d.conn, "%s\n", cmd); err != nil {
		return "", cancelled(ctx, fmt.Errorf("send %q: %w", cmd, err))
	}
	reply, err := d.readLine()
	if err != nil {
		return "", cancelled(ctx, fmt.Errorf("read %q reply: %w", cmd, err))
	}
	d.logger.Debug("dashboard", "command", cmd, "reply", reply)
	return reply, nil
}

// expect sends cmd and checks the reply starts with prefix.
func (d *Dashboard) expect(ctx context.Context, cmd, prefix string) (string, error) {
	reply, err := d.Command(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(reply, prefix) {
		return reply, &CommandError{Command: cmd, Reply: reply}
	}
	return reply, nil
}

// LoadProgram loads a program file stored on the controller.
func (d *Dashboard) LoadProgram(ctx context.Context, path string) error {
	_, err := d.expect(ctx, "load "+path, "Loading program:")
	return err
}

// Play starts the loaded program.
func (d *Dashboard) Play(ctx context.Context) error {
	_, err := d.expect(ctx, "play", "Starting program")
	return err
}

// Stop stops the running program.
func (d *Dashboard) Stop(ctx context.Context) error {
	_, err := d.expect(ctx, "stop", "Stopped")
	return err
}

// Pause pauses the running program.
func (d *Dashboard) Pause(ctx context.Context) error {
	_, err := d.expect(ctx, "pause", "Pausing program")
	return err
}

// RobotMode returns the robot mode, e.g. RUNNING or POWER_OFF.
func (d *Dashboard) RobotMode(ctx context.Context) (string, error) {
	reply, err := d.expect(ctx, "robotmode", "Robotmode:")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimPrefix(reply, "Robotmode:")), nil
}

// SafetyStatus returns the safety status, e.g. NORMAL or PROTECTIVE_STOP.
func (d *Dashboard) SafetyStatus(ctx context.Context) (string, error) {
	reply, err := d.expect(ctx, "safetystatus", "Safetystatus:")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimPrefix(reply, "Safetystatus:")), nil
}

// ProgramState returns the program state followed by the loaded program,
// e.g. "PLAYING /program1.urp".
func (d *Dashboard) ProgramState(ctx context.Context) (string, error) {
	return d.Command(ctx, "programState")
}

// LoadedProgram returns the path of the loaded program, or "" when no
// program is loaded.
func (d *Dashboard) LoadedProgram(ctx context.Context) (string, error) {
	reply, err := d.Command(ctx, "get loaded program")
	if err != nil {
		return "", err
	}
	switch {
	case strings.HasPrefix(reply, "Loaded program:"):
		return strings.TrimSpace(strings.TrimPrefix(reply, "Loaded program:")), nil
	case strings.HasPrefix(reply, "No program loaded"):
		return "", nil
	}
	return "", &CommandError{Command: "get loaded program", Reply: reply}
}

// PolyscopeVersion returns the software version string.
func (d *Dashboard) PolyscopeVersion(ctx context.Context) (string, error) {
	return d.Command(ctx, "PolyscopeVersion")
}

// Close says goodbye to the server and closes the connection.
func (d *Dashboard) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.conn.SetDeadline(time.Now().Add(time.Second))
	fmt.Fprint(d.conn, "quit\n")
	return d.conn.Close()
}

func (d *Dashboard) readLine() (string, error) {
	line, err := d.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// cancelled prefers the context error when ctx ended the operation.
func cancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

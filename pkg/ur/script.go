package ur

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gwillem/urteleop/pkg/robot"
)

// ScriptPort is the secondary client interface, which accepts URScript.
const ScriptPort = 30002

// ScriptClient sends URScript to the controller.
type ScriptClient struct {
	conn net.Conn
	done chan struct{}

	mu sync.Mutex
}

// DialScript connects to the script interface at addr.
func DialScript(ctx context.Context, addr string) (*ScriptClient, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial script interface %s: %w", addr, err)
	}
	s := &ScriptClient{
		conn: conn,
		done: make(chan struct{}),
	}
	// The controller streams state packages on this port; nobody reads them.
	go func() {
		defer close(s.done)
		io.Copy(io.Discard, conn)
	}()
	return s, nil
}

// Send sends a script, terminated by a newline.
func (s *ScriptClient) Send(ctx context.Context, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	if _, err := io.WriteString(s.conn, script); err != nil {
		return cancelled(ctx, fmt.Errorf("send script: %w", err))
	}
	return nil
}

// MoveJ moves to joint position q with joint velocity (rad/s) and
// acceleration (rad/s²).
func (s *ScriptClient) MoveJ(ctx context.Context, q robot.Joints, velocity, acceleration float64) error {
	return s.Send(ctx, MoveJScript(q, velocity, acceleration))
}

// MoveJScript formats a movej call.
func MoveJScript(q robot.Joints, velocity, acceleration float64) string {
	return fmt.Sprintf("movej(%s, a=%g, v=%g)\n", q.Script(), acceleration, velocity)
}

// Close closes the connection.
func (s *ScriptClient) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}

package rtde

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strings"
	"time"
)

var (
	// ErrNotAccepted is returned when the controller rejects a request.
	ErrNotAccepted = errors.New("request not accepted by controller")
	// ErrPaused is returned by Receive when the pause reply arrives.
	ErrPaused = errors.New("data synchronization paused")
)

// Version is the controller software version.
type Version struct {
	Major, Minor, Bugfix, Build uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Bugfix, v.Build)
}

// Conn is an RTDE client connection.
type Conn struct {
	conn   net.Conn
	r      *bufio.Reader
	logger *slog.Logger
	recipe *Recipe
}

// Dial connects to the RTDE server at addr (host:port).
func Dial(ctx context.Context, addr string, logger *slog.Logger) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial rtde %s: %w", addr, err)
	}
	return NewConn(c, logger), nil
}

// NewConn wraps an established connection.
func NewConn(c net.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{
		conn:   c,
		r:      bufio.NewReader(c),
		logger: logger,
	}
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Recipe returns the output recipe set up on this connection, or nil.
func (c *Conn) Recipe() *Recipe {
	return c.recipe
}

// NegotiateProtocolVersion requests protocol version 2.
func (c *Conn) NegotiateProtocolVersion(ctx context.Context) error {
	payload := binary.BigEndian.AppendUint16(nil, ProtocolVersion)
	reply, err := c.request(ctx, TypeRequestProtocolVersion, payload)
	if err != nil {
		return err
	}
	return accepted(TypeRequestProtocolVersion, reply)
}

// ControllerVersion returns the controller software version.
func (c *Conn) ControllerVersion(ctx context.Context) (Version, error) {
	reply, err := c.request(ctx, TypeGetURControlVersion, nil)
	if err != nil {
		return Version{}, err
	}
	if len(reply) < 16 {
		return Version{}, fmt.Errorf("short %s reply: %d bytes", TypeGetURControlVersion, len(reply))
	}
	return Version{
		Major:  binary.BigEndian.Uint32(reply[0:4]),
		Minor:  binary.BigEndian.Uint32(reply[4:8]),
		Bugfix: binary.BigEndian.Uint32(reply[8:12]),
		Build:  binary.BigEndian.Uint32(reply[12:16]),
	}, nil
}

// SetupOutputs registers an output recipe at the given frequency. Fields
// with a type set are checked against the types reported by the controller.
func (c *Conn) SetupOutputs(ctx context.Context, frequency float64, fields []Field) (*Recipe, error) {
	if len(fields) == 0 {
		return nil, errors.New("no output fields")
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	payload := binary.BigEndian.AppendUint64(nil, math.Float64bits(frequency))
	payload = append(payload, strings.Join(names, ",")...)

	reply, err := c.request(ctx, TypeSetupOutputs, payload)
	if err != nil {
		return nil, err
	}
	if len(reply) < 1 {
		return nil, fmt.Errorf("empty %s reply", TypeSetupOutputs)
	}

	types := strings.Split(string(reply[1:]), ",")
	if len(types) != len(fields) {
		return nil, fmt.Errorf("controller returned %d types for %d fields", len(types), len(fields))
	}

	recipe := &Recipe{ID: reply[0], Fields: make([]Field, len(fields))}
	for i, f := range fields {
		got := FieldType(types[i])
		switch {
		case got == NotFound:
			return nil, fmt.Errorf("output %s not found on controller", f.Name)
		case got == InUse:
			return nil, fmt.Errorf("output %s in use", f.Name)
		case !got.Valid():
			return nil, fmt.Errorf("output %s has unsupported type %q", f.Name, got)
		case f.Type != "" && f.Type != got:
			return nil, fmt.Errorf("output %s is %s on controller, configured as %s", f.Name, got, f.Type)
		}
		recipe.Fields[i] = Field{Name: f.Name, Type: got}
	}
	c.recipe = recipe
	return recipe, nil
}

// Start starts the data synchronization.
func (c *Conn) Start(ctx context.Context) error {
	reply, err := c.request(ctx, TypeStart, nil)
	if err != nil {
		return err
	}
	return accepted(TypeStart, reply)
}

// Pause stops the data synchronization. Data packages still in flight are
// discarded.
func (c *Conn) Pause(ctx context.Context) error {
	reply, err := c.request(ctx, TypePause, nil)
	if err != nil {
		return err
	}
	return accepted(TypePause, reply)
}

// SendPause requests a pause without waiting for the reply. A goroutine
// blocked in Receive returns ErrPaused once the controller confirms.
func (c *Conn) SendPause() error {
	if err := WritePacket(c.conn, Packet{Type: TypePause}); err != nil {
		return fmt.Errorf("send %s: %w", TypePause, err)
	}
	return nil
}

// Receive blocks until the next data package arrives.
func (c *Conn) Receive() (DataPackage, error) {
	if c.recipe == nil {
		return DataPackage{}, errors.New("no output recipe")
	}
	for {
		p, err := ReadPacket(c.r)
		if err != nil {
			return DataPackage{}, err
		}
		switch p.Type {
		case TypeDataPackage:
			return c.recipe.Decode(p.Payload)
		case TypePause:
			if err := accepted(TypePause, p.Payload); err != nil {
				return DataPackage{}, err
			}
			return DataPackage{}, ErrPaused
		case TypeTextMessage:
			c.logMessage(p.Payload)
		default:
			c.logger.Debug("rtde: unexpected packet", "type", p.Type)
		}
	}
}

func (c *Conn) request(ctx context.Context, typ PacketType, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := WritePacket(c.conn, Packet{Type: typ, Payload: payload}); err != nil {
		return nil, ctxOr(ctx, fmt.Errorf("send %s: %w", typ, err))
	}
	for {
		p, err := ReadPacket(c.r)
		if err != nil {
			return nil, ctxOr(ctx, fmt.Errorf("read %s reply: %w", typ, err))
		}
		switch p.Type {
		case typ:
			return p.Payload, nil
		case TypeTextMessage:
			c.logMessage(p.Payload)
		case TypeDataPackage:
			// Still streaming; the reply follows.
		default:
			c.logger.Debug("rtde: unexpected packet", "type", p.Type, "waiting_for", typ)
		}
	}
}

func (c *Conn) logMessage(payload []byte) {
	m, err := ParseTextMessage(payload)
	if err != nil {
		c.logger.Warn("rtde: bad text message", "error", err)
		return
	}
	level := slog.LevelInfo
	switch m.Level {
	case LevelException, LevelError:
		level = slog.LevelError
	case LevelWarning:
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "rtde: controller message", "source", m.Source, "message", m.Message)
}

func ctxOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func accepted(typ PacketType, reply []byte) error {
	if len(reply) < 1 {
		return fmt.Errorf("empty %s reply", typ)
	}
	if reply[0] != 1 {
		return fmt.Errorf("%s: %w", typ, ErrNotAccepted)
	}
	return nil
}

// Package rtdetest provides an in-process RTDE server for tests.
package rtdetest

import (
	"encoding/binary"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gwillem/urteleop/pkg/rtde"
)

// DefaultOutputs are the outputs the server knows by default.
var DefaultOutputs = map[string]rtde.FieldType{
	"timestamp":       rtde.Double,
	"actual_q":        rtde.Vector6D,
	"actual_qd":       rtde.Vector6D,
	"actual_TCP_pose": rtde.Vector6D,
	"robot_mode":      rtde.Int32,
	"runtime_state":   rtde.Uint32,
	"speed_scaling":   rtde.Double,
}

// Server is a loopback RTDE server streaming generated frames.
type Server struct {
	// Outputs maps output names to their types. Unknown names are reported
	// as NOT_FOUND.
	Outputs map[string]rtde.FieldType
	// Frame returns the values of frame n. The default fills every element
	// of every field with n.
	Frame func(n int, fields []rtde.Field) [][]float64
	// Interval between frames.
	Interval time.Duration
	// MaxFrames stops the stream after this many frames when positive.
	MaxFrames int
	// RejectStart makes the server refuse CONTROL_PACKAGE_START.
	RejectStart bool
	// TruncateVersion makes the server send a short controller version.
	TruncateVersion bool

	ln net.Listener

	mu        sync.Mutex
	frequency float64
	requested []string
	starts    int
	pauses    int
	sent      int
}

// NewServer starts a server on a random loopback port. Options run before
// the server accepts connections. It is closed when the test ends.
func NewServer(t testing.TB, opts ...func(*Server)) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		Outputs:  DefaultOutputs,
		Interval: 2 * time.Millisecond,
		ln:       ln,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

// Addr returns the server's host:port.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Frequency returns the frequency of the last output setup.
func (s *Server) Frequency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

// Requested returns the output names of the last setup.
func (s *Server) Requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requested...)
}

// Starts returns how many start requests were accepted.
func (s *Server) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Pauses returns how many pause requests were received.
func (s *Server) Pauses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses
}

// Sent returns how many frames were streamed.
func (s *Server) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *Server) serve() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(c)
	}
}

type session struct {
	s      *Server
	conn   net.Conn
	wmu    sync.Mutex
	recipe *rtde.Recipe
	stop   chan struct{}
	done   chan struct{}
}

func (s *Server) handle(c net.Conn) {
	defer c.Close()
	ss := &session{s: s, conn: c}
	defer ss.stopStream()

	for {
		p, err := rtde.ReadPacket(c)
		if err != nil {
			return
		}
		switch p.Type {
		case rtde.TypeRequestProtocolVersion:
			ok := len(p.Payload) == 2 && binary.BigEndian.Uint16(p.Payload) == rtde.ProtocolVersion
			ss.reply(p.Type, boolByte(ok))
		case rtde.TypeGetURControlVersion:
			var b []byte
			for _, v := range []uint32{5, 11, 0, 108249} {
				b = binary.BigEndian.AppendUint32(b, v)
			}
			if s.TruncateVersion {
				b = b[:4]
			}
			ss.reply(p.Type, b)
		case rtde.TypeSetupOutputs:
			ss.setupOutputs(p.Payload)
		case rtde.TypeStart:
			if s.RejectStart || ss.recipe == nil {
				ss.reply(p.Type, []byte{0})
				continue
			}
			s.mu.Lock()
			s.starts++
			s.mu.Unlock()
			ss.reply(p.Type, []byte{1})
			ss.startStream()
		case rtde.TypePause:
			ss.stopStream()
			s.mu.Lock()
			s.pauses++
			s.mu.Unlock()
			ss.reply(p.Type, []byte{1})
		default:
			// Inputs are not supported.
		}
	}
}

func (ss *session) setupOutputs(payload []byte) {
	if len(payload) < 8 {
		ss.reply(rtde.TypeSetupOutputs, []byte{0})
		return
	}
	freq := math.Float64frombits(binary.BigEndian.Uint64(payload[:8]))
	names := strings.Split(string(payload[8:]), ",")

	ss.s.mu.Lock()
	ss.s.frequency = freq
	ss.s.requested = names
	ss.s.mu.Unlock()

	types := make([]string, len(names))
	recipe := &rtde.Recipe{ID: 1}
	valid := true
	for i, name := range names {
		typ, ok := ss.s.Outputs[name]
		if !ok {
			types[i] = string(rtde.NotFound)
			valid = false
			continue
		}
		types[i] = string(typ)
		recipe.Fields = append(recipe.Fields, rtde.Field{Name: name, Type: typ})
	}
	if valid {
		ss.recipe = recipe
	}
	ss.reply(rtde.TypeSetupOutputs, append([]byte{recipe.ID}, strings.Join(types, ",")...))
}

func (ss *session) startStream() {
	ss.stop = make(chan struct{})
	ss.done = make(chan struct{})
	go ss.stream(ss.stop, ss.done)
}

func (ss *session) stopStream() {
	if ss.stop == nil {
		return
	}
	close(ss.stop)
	<-ss.done
	ss.stop = nil
}

func (ss *session) stream(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(ss.s.Interval)
	defer ticker.Stop()

	frame := ss.s.Frame
	if frame == nil {
		frame = fillFrame
	}
	for n := 0; ss.s.MaxFrames <= 0 || n < ss.s.MaxFrames; n++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		payload, err := ss.recipe.Encode(frame(n, ss.recipe.Fields))
		if err != nil {
			panic("rtdetest: encode frame: " + err.Error())
		}
		if err := ss.write(rtde.Packet{Type: rtde.TypeDataPackage, Payload: payload}); err != nil {
			return
		}
		ss.s.mu.Lock()
		ss.s.sent++
		ss.s.mu.Unlock()
	}
}

func (ss *session) reply(typ rtde.PacketType, payload []byte) {
	// A write error means the client went away; the next read ends the session.
	_ = ss.write(rtde.Packet{Type: typ, Payload: payload})
}

func (ss *session) write(p rtde.Packet) error {
	ss.wmu.Lock()
	defer ss.wmu.Unlock()
	return rtde.WritePacket(ss.conn, p)
}

func fillFrame(n int, fields []rtde.Field) [][]float64 {
	values := make([][]float64, len(fields))
	for i, f := range fields {
		v := make([]float64, f.Type.Count())
		for j := range v {
			v[j] = float64(n)
		}
		values[i] = v
	}
	return values
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

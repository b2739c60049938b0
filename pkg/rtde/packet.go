// Package rtde implements the client side of the Universal Robots Real-Time
// Data Exchange protocol, limited to output recipes.
package rtde

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Port is the RTDE port on the controller.
const Port = 30004

// ProtocolVersion is the protocol version this client negotiates.
const ProtocolVersion = 2

// PacketType identifies an RTDE packet.
type PacketType byte

// Packet types.
const (
	TypeRequestProtocolVersion PacketType = 'V'
	TypeGetURControlVersion    PacketType = 'v'
	TypeTextMessage            PacketType = 'M'
	TypeDataPackage            PacketType = 'U'
	TypeSetupOutputs           PacketType = 'O'
	TypeSetupInputs            PacketType = 'I'
	TypeStart                  PacketType = 'S'
	TypePause                  PacketType = 'P'
)

func (t PacketType) String() string {
	switch t {
	case TypeRequestProtocolVersion:
		return "REQUEST_PROTOCOL_VERSION"
	case TypeGetURControlVersion:
		return "GET_URCONTROL_VERSION"
	case TypeTextMessage:
		return "TEXT_MESSAGE"
	case TypeDataPackage:
		return "DATA_PACKAGE"
	case TypeSetupOutputs:
		return "CONTROL_PACKAGE_SETUP_OUTPUTS"
	case TypeSetupInputs:
		return "CONTROL_PACKAGE_SETUP_INPUTS"
	case TypeStart:
		return "CONTROL_PACKAGE_START"
	case TypePause:
		return "CONTROL_PACKAGE_PAUSE"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(t))
}

// headerSize is the uint16 size plus the uint8 type.
const headerSize = 3

// Packet is a raw RTDE packet.
type Packet struct {
	Type    PacketType
	Payload []byte
}

// WritePacket writes p to w with its header.
func WritePacket(w io.Writer, p Packet) error {
	size := headerSize + len(p.Payload)
	if size > math.MaxUint16 {
		return fmt.Errorf("packet too large: %d bytes", size)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:2], uint16(size))
	buf[2] = byte(p.Type)
	copy(buf[headerSize:], p.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadPacket reads one packet from r.
func ReadPacket(r io.Reader) (Packet, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Packet{}, err
	}
	size := int(binary.BigEndian.Uint16(hdr[0:2]))
	if size < headerSize {
		return Packet{}, fmt.Errorf("invalid packet size %d", size)
	}
	p := Packet{
		Type:    PacketType(hdr[2]),
		Payload: make([]byte, size-headerSize),
	}
	if _, err := io.ReadFull(r, p.Payload); err != nil {
		return Packet{}, fmt.Errorf("read %s payload: %w", p.Type, err)
	}
	return p, nil
}

// TextMessage is a message sent by the controller.
type TextMessage struct {
	Message string
	Source  string
	Level   MessageLevel
}

// MessageLevel is the severity of a text message.
type MessageLevel uint8

// Message levels.
const (
	LevelException MessageLevel = iota
	LevelError
	LevelWarning
	LevelInfo
)

func (l MessageLevel) String() string {
	switch l {
	case LevelException:
		return "exception"
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// ParseTextMessage decodes a protocol v2 text message payload.
func ParseTextMessage(payload []byte) (TextMessage, error) {
	r := bytes.NewReader(payload)
	msg, err := readShortString(r)
	if err != nil {
		return TextMessage{}, fmt.Errorf("read message: %w", err)
	}
	src, err := readShortString(r)
	if err != nil {
		return TextMessage{}, fmt.Errorf("read source: %w", err)
	}
	level, err := r.ReadByte()
	if err != nil {
		return TextMessage{}, fmt.Errorf("read level: %w", err)
	}
	return TextMessage{Message: msg, Source: src, Level: MessageLevel(level)}, nil
}

// EncodeTextMessage is the inverse of ParseTextMessage.
func EncodeTextMessage(m TextMessage) []byte {
	var b bytes.Buffer
	b.WriteByte(byte(len(m.Message)))
	b.WriteString(m.Message)
	b.WriteByte(byte(len(m.Source)))
	b.WriteString(m.Source)
	b.WriteByte(byte(m.Level))
	return b.Bytes()
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

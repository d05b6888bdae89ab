// Package ipc implements the length-framed message protocol spoken over the
// anonymous pipes that connect the supervisor to its detector and
// device-server children. Every message is a one-byte type discriminant
// followed by a type-specific, length-prefixed payload; the codec never
// serializes pointers, only owned bytes, so decoding always produces values
// the receiving process fully owns.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Type identifies the shape of a Message on the wire.
type Type byte

const (
	// DeviceConnection carries a devnode from the detector to the supervisor.
	DeviceConnection Type = 1
	// DeviceInfo carries the device's stable identity from a device server.
	DeviceInfo Type = 2
	// OSCPortChange reports the UDP port a device server bound.
	OSCPortChange Type = 3
	// DeviceReady signals that info and port have both been reported.
	DeviceReady Type = 4
	// DeviceDisconnection is the last message a device server ever sends.
	DeviceDisconnection Type = 5
)

func (t Type) String() string {
	switch t {
	case DeviceConnection:
		return "DEVICE_CONNECTION"
	case DeviceInfo:
		return "DEVICE_INFO"
	case OSCPortChange:
		return "OSC_PORT_CHANGE"
	case DeviceReady:
		return "DEVICE_READY"
	case DeviceDisconnection:
		return "DEVICE_DISCONNECTION"
	default:
		return fmt.Sprintf("ipc.Type(%d)", byte(t))
	}
}

// Message is implemented by every IPC payload type.
type Message interface {
	Type() Type
}

// DeviceConnectionMsg is sent by the detector for every devnode it observes,
// both during the initial enumeration and for every later hotplug arrival.
type DeviceConnectionMsg struct {
	Devnode string
}

// Type implements Message.
func (DeviceConnectionMsg) Type() Type { return DeviceConnection }

// DeviceInfoMsg carries the hardware-assigned serial and the human-readable
// friendly name, both supplied by the device driver once the device is open.
type DeviceInfoMsg struct {
	Serial   string
	Friendly string
}

// Type implements Message.
func (DeviceInfoMsg) Type() Type { return DeviceInfo }

// OSCPortChangeMsg reports the UDP port the device server's OSC server ended
// up bound to, which matters when the configured port was ephemeral (0).
type OSCPortChangeMsg struct {
	Port uint16
}

// Type implements Message.
func (OSCPortChangeMsg) Type() Type { return OSCPortChange }

// DeviceReadyMsg has no payload; it marks the point at which DeviceInfoMsg
// and OSCPortChangeMsg have both already been observed for this device.
type DeviceReadyMsg struct{}

// Type implements Message.
func (DeviceReadyMsg) Type() Type { return DeviceReady }

// DeviceDisconnectionMsg has no payload; it is always the last message on a
// device server's pipe, immediately followed by EOF.
type DeviceDisconnectionMsg struct{}

// Type implements Message.
func (DeviceDisconnectionMsg) Type() Type { return DeviceDisconnection }

// ErrFraming reports a malformed message: a short or corrupt read partway
// through a frame. It is distinct from io.EOF, which means the pipe closed
// cleanly between frames. Callers skip the message on ErrFraming and keep
// the fd open; they tear the session down on io.EOF.
var ErrFraming = errors.New("ipc: framing error")

// maxStringLen is the longest string field a frame can carry: the length
// prefix is two bytes, so 65535 is the largest length it can express.
// Encode truncates longer strings to this length.
const maxStringLen = 1<<16 - 1

// Encode writes m to w in wire format. Encode never retains any reference
// into m: every field is copied out to bytes before the write happens, so
// callers may safely mutate or discard m's backing memory afterward.
func Encode(w io.Writer, m Message) error {
	switch msg := m.(type) {
	case DeviceConnectionMsg:
		return writeFrame(w, DeviceConnection, func(buf *frameBuf) {
			buf.putString(msg.Devnode)
		})
	case DeviceInfoMsg:
		return writeFrame(w, DeviceInfo, func(buf *frameBuf) {
			buf.putString(msg.Serial)
			buf.putString(msg.Friendly)
		})
	case OSCPortChangeMsg:
		return writeFrame(w, OSCPortChange, func(buf *frameBuf) {
			buf.putUint16(msg.Port)
		})
	case DeviceReadyMsg:
		return writeFrame(w, DeviceReady, func(*frameBuf) {})
	case DeviceDisconnectionMsg:
		return writeFrame(w, DeviceDisconnection, func(*frameBuf) {})
	default:
		return fmt.Errorf("ipc: unknown message type %T", m)
	}
}

// Decode reads one message from r. It returns io.EOF, unmodified, only when
// the pipe closed cleanly before any byte of a new frame arrived; every
// other failure partway through a frame is wrapped in ErrFraming so callers
// can tell "pipe is gone" apart from "this one message was garbage."
func Decode(r io.Reader) (Message, error) {
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading type byte: %v", ErrFraming, err)
	}

	switch Type(typeBuf[0]) {
	case DeviceConnection:
		devnode, err := readString(r)
		if err != nil {
			return nil, err
		}
		return DeviceConnectionMsg{Devnode: devnode}, nil

	case DeviceInfo:
		serial, err := readString(r)
		if err != nil {
			return nil, err
		}
		friendly, err := readString(r)
		if err != nil {
			return nil, err
		}
		return DeviceInfoMsg{Serial: serial, Friendly: friendly}, nil

	case OSCPortChange:
		port, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		return OSCPortChangeMsg{Port: port}, nil

	case DeviceReady:
		return DeviceReadyMsg{}, nil

	case DeviceDisconnection:
		return DeviceDisconnectionMsg{}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type byte %d", ErrFraming, typeBuf[0])
	}
}

func readString(r io.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	if int(n) > maxStringLen {
		return "", fmt.Errorf("%w: string length %d exceeds limit", ErrFraming, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: reading %d-byte string: %v", ErrFraming, n, err)
	}
	return string(buf), nil
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: reading uint16: %v", ErrFraming, err)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// frameBuf accumulates a payload in memory before it is written in a single
// Write call, so a partial write never leaves a half-frame on the wire.
type frameBuf struct {
	b []byte
}

func (f *frameBuf) putString(s string) {
	if len(s) > maxStringLen {
		s = s[:maxStringLen]
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	f.b = append(f.b, lenBuf[:]...)
	f.b = append(f.b, s...)
}

func (f *frameBuf) putUint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	f.b = append(f.b, buf[:]...)
}

func writeFrame(w io.Writer, t Type, fill func(*frameBuf)) error {
	buf := &frameBuf{b: []byte{byte(t)}}
	fill(buf)
	_, err := w.Write(buf.b)
	return err
}

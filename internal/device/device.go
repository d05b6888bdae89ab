// Package device defines the boundary between this module and the
// USB/serial grid and encoder hardware it drives. The actual driver — the
// code that speaks the monome serial protocol over a real tty — is an
// external collaborator referenced only by this interface; nothing in this
// package knows how to talk to real hardware. What's here is the contract
// a device server needs (identity, an event stream, LED/intensity/rotation
// control) plus a deterministic software Handle that satisfies it, so the
// rest of the system is fully exercised without a grid plugged in.
package device

import "fmt"

// EventType identifies the kind of hardware event carried by an Event.
type EventType int

// The event kinds a grid/encoder device can report, matching the rows of
// the outbound translation table in §4.2.
const (
	EventButtonDown EventType = iota
	EventButtonUp
	EventPressure
	EventEncoderDelta
	EventEncoderKeyDown
	EventEncoderKeyUp
	EventTilt
)

// Event is one hardware notification from a device's driver. Only the
// fields relevant to Type are meaningful; the rest are zero.
type Event struct {
	Type EventType

	// Grid button / pressure coordinates.
	X, Y int
	// Pressed is the button/encoder-key state for *Down/*Up events.
	Pressed bool
	// Value is a pressure reading.
	Value int
	// Encoder is the encoder index for encoder events.
	Encoder int
	// Delta is a relative encoder movement.
	Delta int
	// Sensor, Z are tilt-sensor fields; X/Y above double as tilt X/Y.
	Sensor int
	Z      int
}

// Rotation mirrors config.Rotation without importing it, so this package
// has no dependency on how rotation preferences get persisted.
type Rotation int

// The four physical mounting rotations a device is expected to support.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Handle is an open connection to one physical device. A device server
// calls Events once to get the hardware's event stream, registers no
// further callbacks, and drives LEDs through the Set* methods.
type Handle interface {
	// Serial is the hardware-assigned stable identifier.
	Serial() string
	// FriendlyName is the human-readable device name.
	FriendlyName() string

	// Events delivers hardware notifications until the handle is closed,
	// at which point it is closed.
	Events() <-chan Event

	SetRotation(Rotation) error
	ClearLEDs(mode int) error
	SetIntensity(level int) error
	SetLED(x, y int, on bool) error

	Close() error
}

// Open opens the device at devnode. Real hardware support lives outside
// this module; Open always returns a simulated Handle, deterministic in
// the identity it derives from devnode, suitable for headless operation,
// integration tests, and demos without a grid attached.
func Open(devnode string) (Handle, error) {
	return newSimulated(devnode), nil
}

// ErrClosed is returned by operations attempted on a closed Handle.
var ErrClosed = fmt.Errorf("device: handle closed")

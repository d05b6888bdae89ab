// Package deviceserver implements the "device server" role: one process per
// attached device, translating its hardware events to outbound OSC and its
// inbound OSC control messages to hardware operations, while reporting its
// own lifecycle back to the supervisor over the IPC protocol in
// internal/ipc.
package deviceserver

import (
	"fmt"
	"io"
	"os"

	"github.com/hypebeast/go-osc/osc"

	"serialosc/internal/config"
	"serialosc/internal/device"
	"serialosc/internal/ipc"
	"serialosc/internal/logging"
	"serialosc/internal/oscutil"
	"serialosc/internal/zeroconf"
)

// isTerminal reports whether f is a character device rather than a pipe or
// regular file. Overridden in tests, since there's no portable way to hand
// a test a real terminal to stat.
var isTerminal = func(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// ipcWriter elides IPC frames when out is a terminal: a device server run
// standalone for debugging, rather than spawned by a supervisor with its
// stdout piped, should still log to stderr but must not dump raw binary
// frames onto the operator's screen.
func ipcWriter(out io.Writer) io.Writer {
	if f, ok := out.(*os.File); ok && isTerminal(f) {
		return io.Discard
	}
	return out
}

// Run drives one device server end to end: open the device, load its saved
// configuration, bind its OSC server, report DEVICE_INFO / OSC_PORT_CHANGE /
// DEVICE_READY on ipcOut in that order, translate hardware events to OSC
// and OSC control messages to hardware operations until the device closes,
// then report DEVICE_DISCONNECTION and persist whatever configuration is
// current. It returns only on hardware closure or an unrecoverable setup
// error.
func Run(ipcOut io.Writer, devnode string) error {
	ipcOut = ipcWriter(ipcOut)

	handle, err := device.Open(devnode)
	if err != nil {
		return fmt.Errorf("deviceserver: opening %s: %w", devnode, err)
	}
	defer handle.Close()

	log := logging.New("deviceserver").WithSerial(handle.Serial())

	cfg, err := config.Load(handle.Serial())
	if err != nil {
		log.WithError(err).Warn("deviceserver: using defaults after config load failure")
	}
	if err := handle.SetRotation(device.Rotation(cfg.Dev.Rotation)); err != nil {
		log.WithError(err).Warn("deviceserver: applying saved rotation failed")
	}
	if err := handle.ClearLEDs(0); err != nil {
		log.WithError(err).Warn("deviceserver: initial clear failed")
	}

	listener, err := oscutil.Listen(cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("deviceserver: binding OSC server: %w", err)
	}
	defer listener.Close()
	cfg.Server.Port = listener.Port()

	srv := &server{
		devnode:  devnode,
		handle:   handle,
		cfg:      cfg,
		listener: listener,
		log:      log,
	}
	srv.registerHandlers()

	pub, err := zeroconf.Publish(fmt.Sprintf("%s (%s)", handle.FriendlyName(), handle.Serial()), int(listener.Port()))
	if err != nil {
		log.WithError(err).Warn("deviceserver: zeroconf publish failed, continuing unpublished")
	} else {
		defer pub.Close()
	}

	if err := ipc.Encode(ipcOut, ipc.DeviceInfoMsg{Serial: handle.Serial(), Friendly: handle.FriendlyName()}); err != nil {
		return fmt.Errorf("deviceserver: reporting device info: %w", err)
	}
	if err := ipc.Encode(ipcOut, ipc.OSCPortChangeMsg{Port: listener.Port()}); err != nil {
		return fmt.Errorf("deviceserver: reporting osc port: %w", err)
	}
	if err := ipc.Encode(ipcOut, ipc.DeviceReadyMsg{}); err != nil {
		return fmt.Errorf("deviceserver: reporting ready: %w", err)
	}

	go func() {
		if err := listener.Serve(); err != nil {
			log.WithError(err).Debug("deviceserver: OSC listener stopped")
		}
	}()

	srv.translateEvents()

	if err := config.Save(handle.Serial(), srv.currentConfig()); err != nil {
		log.WithError(err).Warn("deviceserver: saving config on shutdown failed")
	}
	return ipc.Encode(ipcOut, ipc.DeviceDisconnectionMsg{})
}

// server holds everything one device server needs for the lifetime of a
// single attached device.
type server struct {
	devnode  string
	handle   device.Handle
	cfg      config.Config
	listener *oscutil.Listener
	log      *logging.Logger
}

func (s *server) currentConfig() config.Config {
	return s.cfg
}

// translateEvents drains the device's hardware event stream, emitting one
// outbound OSC datagram per event to the configured app host/port, until
// the driver closes the channel (hardware unplugged).
func (s *server) translateEvents() {
	for ev := range s.handle.Events() {
		path, args := encodeEvent(s.cfg.App.OSCPrefix, ev)
		if path == "" {
			continue
		}
		if err := oscutil.Send(s.cfg.App.Host, s.cfg.App.Port, path, args...); err != nil {
			s.log.WithError(err).Warn("deviceserver: outbound send failed")
		}
	}
}

// encodeEvent maps one hardware Event onto the outbound OSC path and
// argument list from §4.2's translation table.
func encodeEvent(prefix string, ev device.Event) (string, []interface{}) {
	switch ev.Type {
	case device.EventButtonDown:
		return prefix + "/grid/key", []interface{}{int32(ev.X), int32(ev.Y), int32(1)}
	case device.EventButtonUp:
		return prefix + "/grid/key", []interface{}{int32(ev.X), int32(ev.Y), int32(0)}
	case device.EventPressure:
		return prefix + "/grid/pressure", []interface{}{int32(ev.X), int32(ev.Y), int32(ev.Value)}
	case device.EventEncoderDelta:
		return prefix + "/enc/delta", []interface{}{int32(ev.Encoder), int32(ev.Delta)}
	case device.EventEncoderKeyDown:
		return prefix + "/enc/key", []interface{}{int32(ev.Encoder), int32(1)}
	case device.EventEncoderKeyUp:
		return prefix + "/enc/key", []interface{}{int32(ev.Encoder), int32(0)}
	case device.EventTilt:
		return prefix + "/tilt", []interface{}{int32(ev.Sensor), int32(ev.X), int32(ev.Y), int32(ev.Z)}
	default:
		return "", nil
	}
}

// registerHandlers wires every inbound control path this device server
// recognizes: the hardware control surface (clear/intensity/led/rotation)
// plus the three self-reconfiguration paths (port/host/prefix changes),
// relative to the device's current prefix.
func (s *server) registerHandlers() {
	prefix := s.cfg.App.OSCPrefix

	s.listener.Handle(prefix+"/clear", s.handleClear)
	s.listener.Handle(prefix+"/intensity", s.handleIntensity)
	s.listener.Handle(prefix+"/led", s.handleSetLED)
	s.listener.Handle(prefix+"/rotation", s.handleRotation)
	s.listener.Handle(prefix+"/port", s.handlePort)
	s.listener.Handle(prefix+"/host", s.handleHost)
	s.listener.Handle(prefix+"/prefix", s.handlePrefix)
}

// maxIntensity is the brightest LED intensity a device accepts, used when
// "intensity" arrives with no argument (typetag "").
const maxIntensity = 0xF

func (s *server) handleClear(msg *osc.Message) {
	mode, ok := oscutil.Int32(msg, 0)
	if !ok {
		mode = 0
	}
	if err := s.handle.ClearLEDs(int(mode)); err != nil {
		s.log.WithError(err).Warn("deviceserver: clear failed")
	}
}

func (s *server) handleIntensity(msg *osc.Message) {
	level, ok := oscutil.Int32(msg, 0)
	if !ok {
		level = maxIntensity
	}
	if err := s.handle.SetIntensity(int(level)); err != nil {
		s.log.WithError(err).Warn("deviceserver: set intensity failed")
	}
}

func (s *server) handleSetLED(msg *osc.Message) {
	x, ok1 := oscutil.Int32(msg, 0)
	y, ok2 := oscutil.Int32(msg, 1)
	on, ok3 := oscutil.Int32(msg, 2)
	if !ok1 || !ok2 || !ok3 {
		return
	}
	if err := s.handle.SetLED(int(x), int(y), on != 0); err != nil {
		s.log.WithError(err).Warn("deviceserver: set led failed")
	}
}

func (s *server) handleRotation(msg *osc.Message) {
	deg, ok := oscutil.Int32(msg, 0)
	if !ok {
		return
	}
	r := device.Rotation(deg)
	if err := s.handle.SetRotation(r); err != nil {
		s.log.WithError(err).Warn("deviceserver: set rotation failed")
		return
	}
	cfgR := config.Rotation(deg)
	if cfgR.IsValid() {
		s.cfg.Dev.Rotation = cfgR
	}
}

func (s *server) handlePort(msg *osc.Message) {
	port, ok := oscutil.Int32(msg, 0)
	if !ok {
		return
	}
	s.cfg.App.Port = uint16(port)
}

func (s *server) handleHost(msg *osc.Message) {
	host, ok := oscutil.String(msg, 0)
	if !ok {
		return
	}
	s.cfg.App.Host = host
}

func (s *server) handlePrefix(msg *osc.Message) {
	prefix, ok := oscutil.String(msg, 0)
	if !ok || prefix == "" {
		return
	}
	s.cfg.App.OSCPrefix = prefix
	s.registerHandlers()
}

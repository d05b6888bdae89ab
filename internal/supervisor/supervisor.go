// Package supervisor implements the root "supervisor" role: it forks the
// detector, forks one device-server child per device the detector reports,
// owns the authoritative device table, and answers the enumeration and
// subscription OSC interface applications use to find devices.
//
// The original C implementation multiplexes everything through a single
// poll() call over a dynamically resized pollfd array. This package gets
// the same "exactly one thing happens at a time, and state is touched from
// exactly one goroutine" property the idiomatic Go way: one reader
// goroutine per pipe (detector, or one per device) forwards whatever it
// reads onto a shared channel, and a single select loop — the
// multiplexer — is the only code that ever mutates the device table or the
// subscriber list. A channel receive is this module's readiness wait.
package supervisor

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/hypebeast/go-osc/osc"

	"serialosc/internal/config"
	"serialosc/internal/ipc"
	"serialosc/internal/logging"
	"serialosc/internal/oscutil"
)

// MaxDevices bounds how many device records the supervisor tracks at once,
// matching the original MAX_DEVICES.
const MaxDevices = 32

// MaxSubscriptions bounds the notification subscriber list.
const MaxSubscriptions = 32

// SupervisorPort is the fixed, compile-time UDP port every supervisor
// instance binds its control OSC server to.
const SupervisorPort uint16 = 12002

// deviceRecord is the supervisor's view of one live device-server child.
// Exactly one exists per live child; it is created not-ready the instant
// the child is forked and is never announced to subscribers until Ready.
type deviceRecord struct {
	id int64 // monotonically assigned, used only for logging/tests

	ready    bool
	oscPort  uint16
	serial   string
	friendly string

	pipe io.ReadCloser
	cmd  *exec.Cmd
}

type subscription struct {
	host string
	port uint16
}

// deviceMsg is what a per-device pipe-reading goroutine forwards into the
// multiplexer: either a decoded message, or a terminal error (io.EOF on
// clean child exit, anything else on a framing error the multiplexer
// should log and otherwise ignore).
type deviceMsg struct {
	rec *deviceRecord
	msg ipc.Message
	err error
}

// detMsg is the detector-pipe analog of deviceMsg.
type detMsg struct {
	msg ipc.Message
	err error
}

// oscRequest is one parsed inbound control-OSC datagram, handed from the
// OSC listener's callback goroutine to the multiplexer.
type oscRequest struct {
	path string
	args []interface{}
}

// Supervisor owns the device table, the subscriber list, and the child
// processes backing both. Every field below is touched only by the
// goroutine running run's select loop; construction and Run are the only
// exported operations.
type Supervisor struct {
	execPath string

	listener *oscutil.Listener
	oscIn    chan oscRequest

	detIn chan detMsg
	devIn chan deviceMsg

	devices []*deviceRecord
	subs    []subscription

	nextID int64

	log *logging.Logger

	// spawnDeviceServer/spawnDetector are overridden in tests so the
	// multiplexer's logic can be exercised without really forking.
	spawnDeviceServer func(execPath, devnode string) (io.ReadCloser, *exec.Cmd, error)
	spawnDetector     func(execPath string) (io.ReadCloser, *exec.Cmd, error)
}

// New constructs a Supervisor that will re-exec execPath to spawn the
// detector and per-device server children.
func New(execPath string) *Supervisor {
	return &Supervisor{
		execPath:          execPath,
		oscIn:             make(chan oscRequest, 8),
		detIn:             make(chan detMsg, 1),
		devIn:             make(chan deviceMsg, 8),
		spawnDeviceServer: spawnDeviceServer,
		spawnDetector:     spawnDetectorProcess,
		log:               logging.New("supervisor"),
	}
}

// Run creates the configuration directory, binds the control OSC server,
// forks the detector, and runs the multiplexer until a fatal error occurs
// (most commonly: the detector pipe hangs up).
func (s *Supervisor) Run() error {
	if err := config.EnsureDir(); err != nil {
		s.log.WithError(err).Warn("supervisor: could not create config directory")
	}

	listener, err := oscutil.Listen(SupervisorPort)
	if err != nil {
		return fmt.Errorf("supervisor: binding control OSC server: %w", err)
	}
	defer listener.Close()
	s.listener = listener

	if err := s.registerOSCHandlers(); err != nil {
		return fmt.Errorf("supervisor: registering OSC handlers: %w", err)
	}
	go func() {
		if err := listener.Serve(); err != nil {
			s.log.WithError(err).Debug("supervisor: OSC listener stopped")
		}
	}()

	detPipe, detCmd, err := s.spawnDetector(s.execPath)
	if err != nil {
		return fmt.Errorf("supervisor: spawning detector: %w", err)
	}
	reap(detCmd)
	go pumpDetector(detPipe, s.detIn)

	s.log.Info("supervisor: running")
	return s.multiplex()
}

// multiplex is the single-threaded core: every mutation of s.devices and
// s.subs happens in this loop and nowhere else.
func (s *Supervisor) multiplex() error {
	for {
		select {
		case req := <-s.oscIn:
			s.handleOSCRequest(req)

		case dm := <-s.detIn:
			if dm.err != nil {
				if dm.err == io.EOF {
					s.log.Error("supervisor: monitor process disappeared, bailing out")
					return fmt.Errorf("supervisor: detector pipe closed: %w", dm.err)
				}
				s.log.WithError(dm.err).Warn("supervisor: detector framing error, skipping message")
				continue
			}
			s.handleDetectorMessage(dm.msg)

		case dm := <-s.devIn:
			s.handleDeviceMessage(dm)
		}
	}
}

// handleDetectorMessage spawns a device server for every connection the
// detector reports, subject to MaxDevices.
func (s *Supervisor) handleDetectorMessage(m ipc.Message) {
	conn, ok := m.(ipc.DeviceConnectionMsg)
	if !ok {
		s.log.WithField("type", fmt.Sprintf("%T", m)).Warn("supervisor: unexpected message from detector")
		return
	}

	if len(s.devices) >= MaxDevices {
		s.log.WithField("devnode", conn.Devnode).Warn("supervisor: too many monomes, dropping")
		return
	}

	pipe, cmd, err := s.spawnDeviceServer(s.execPath, conn.Devnode)
	if err != nil {
		s.log.WithError(err).WithField("devnode", conn.Devnode).Warn("supervisor: failed to spawn device server")
		return
	}
	reap(cmd)

	s.nextID++
	rec := &deviceRecord{id: s.nextID, pipe: pipe, cmd: cmd}
	s.devices = append(s.devices, rec)
	go pumpDevice(rec, pipe, s.devIn)
}

// handleDeviceMessage applies one message (or terminal error) from a
// device-server pipe to that device's record, performing fan-out and
// teardown exactly as §4.3 specifies.
func (s *Supervisor) handleDeviceMessage(dm deviceMsg) {
	idx := s.indexOf(dm.rec)
	if idx < 0 {
		// Already torn down (can happen if multiple messages queued up
		// before a hangup was processed); nothing left to do.
		return
	}
	rec := s.devices[idx]

	if dm.err != nil {
		if dm.err == io.EOF {
			s.disconnect(idx, rec)
			return
		}
		s.log.WithError(dm.err).WithField("device", rec.id).Warn("supervisor: device framing error, skipping message")
		return
	}

	switch msg := dm.msg.(type) {
	case ipc.OSCPortChangeMsg:
		rec.oscPort = msg.Port

	case ipc.DeviceInfoMsg:
		rec.serial = msg.Serial
		rec.friendly = msg.Friendly

	case ipc.DeviceReadyMsg:
		rec.ready = true
		s.log.WithSerial(rec.serial).WithField("port", rec.oscPort).Info("supervisor: device connected")
		s.notify("/serialosc/add", rec)

	case ipc.DeviceDisconnectionMsg:
		s.disconnect(idx, rec)

	default:
		s.log.WithField("type", fmt.Sprintf("%T", msg)).Warn("supervisor: unexpected message from device")
	}
}

// disconnect tears a device record down: it notifies subscribers if the
// device had ever become ready, then removes the record and compacts the
// slice, preserving order for the remaining devices.
func (s *Supervisor) disconnect(idx int, rec *deviceRecord) {
	if rec.ready {
		s.log.WithSerial(rec.serial).Info("supervisor: device disconnected")
		s.notify("/serialosc/remove", rec)
	}
	rec.pipe.Close()
	s.devices = append(s.devices[:idx], s.devices[idx+1:]...)
}

func (s *Supervisor) indexOf(rec *deviceRecord) int {
	for i, d := range s.devices {
		if d == rec {
			return i
		}
	}
	return -1
}

// notify sends path with typetag ssi (serial, friendly, port) to every
// current subscriber, then clears the subscriber list: subscriptions are
// one-shot, by design (see §4.3 / §9).
func (s *Supervisor) notify(path string, rec *deviceRecord) {
	for _, sub := range s.subs {
		if err := oscutil.Send(sub.host, sub.port, path, rec.serial, rec.friendly, int32(rec.oscPort)); err != nil {
			s.log.WithError(err).WithField("host", sub.host).Warn("supervisor: notify failed")
		}
	}
	s.subs = s.subs[:0]
}

// handleOSCRequest dispatches one parsed inbound control-OSC datagram.
func (s *Supervisor) handleOSCRequest(req oscRequest) {
	switch req.path {
	case "/serialosc/list":
		s.handleList(req.args)
	case "/serialosc/notify":
		s.handleNotify(req.args)
	}
}

func (s *Supervisor) handleList(args []interface{}) {
	host, port, ok := hostPortArgs(args)
	if !ok {
		return
	}
	for _, rec := range s.devices {
		if !rec.ready {
			continue
		}
		if err := oscutil.Send(host, port, "/serialosc/device", rec.serial, rec.friendly, int32(rec.oscPort)); err != nil {
			s.log.WithError(err).Warn("supervisor: /serialosc/list reply failed")
		}
	}
}

func (s *Supervisor) handleNotify(args []interface{}) {
	host, port, ok := hostPortArgs(args)
	if !ok {
		return
	}
	if len(s.subs) >= MaxSubscriptions {
		s.log.Warn("supervisor: subscription capacity exceeded, dropping request")
		return
	}
	s.subs = append(s.subs, subscription{host: host, port: port})
}

func hostPortArgs(args []interface{}) (string, uint16, bool) {
	if len(args) != 2 {
		return "", 0, false
	}
	host, ok := args[0].(string)
	if !ok {
		return "", 0, false
	}
	portArg, ok := args[1].(int32)
	if !ok {
		return "", 0, false
	}
	return host, uint16(portArg), true
}

// registerOSCHandlers wires the control OSC server's two paths so their
// callbacks do nothing but forward to the multiplexer.
func (s *Supervisor) registerOSCHandlers() error {
	wrap := func(path string) func(*osc.Message) {
		return func(msg *osc.Message) {
			s.oscIn <- oscRequest{path: path, args: msg.Arguments}
		}
	}
	if err := s.listener.Handle("/serialosc/list", wrap("/serialosc/list")); err != nil {
		return err
	}
	if err := s.listener.Handle("/serialosc/notify", wrap("/serialosc/notify")); err != nil {
		return err
	}
	return nil
}

// reap waits for cmd's process to exit in the background, discarding its
// exit status. Go does not auto-reap child processes the way SA_NOCLDWAIT
// does on POSIX, so every spawned child needs exactly this to avoid
// leaving zombies around; it is this module's translation of
// disable_subproc_waiting from the original daemon.
func reap(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		_ = cmd.Wait()
	}()
}

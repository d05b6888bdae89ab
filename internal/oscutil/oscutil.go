// Package oscutil is the thin seam between this module and
// github.com/hypebeast/go-osc, the OSC message library the supervisor, the
// device server and serialoscctl all speak through. It owns the UDP socket
// for a listener directly (rather than letting the library Listen for us)
// so the caller always knows the real bound port, even when it asked for an
// ephemeral one — every device server needs that port number to report and
// advertise, and serialoscctl needs it as its reply address.
package oscutil

import (
	"fmt"
	"net"

	"github.com/hypebeast/go-osc/osc"
)

// Listener owns a UDP socket and dispatches inbound OSC packets to
// registered handlers, one packet at a time, from the receive loop run by
// Serve (which callers start in its own goroutine).
type Listener struct {
	conn       net.PacketConn
	dispatcher *osc.StandardDispatcher
	server     *osc.Server
	port       uint16
}

// Listen binds a UDP socket on port (0 for an OS-assigned ephemeral port)
// and returns a Listener ready to have handlers registered on it.
func Listen(port uint16) (*Listener, error) {
	conn, err := net.ListenPacket("udp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("oscutil: binding OSC socket: %w", err)
	}

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("oscutil: unexpected local address type %T", conn.LocalAddr())
	}

	d := osc.NewStandardDispatcher()
	return &Listener{
		conn:       conn,
		dispatcher: d,
		server:     &osc.Server{Dispatcher: d},
		port:       uint16(addr.Port),
	}, nil
}

// Port returns the UDP port this listener is actually bound to.
func (l *Listener) Port() uint16 { return l.port }

// Handle registers a callback for every inbound message at addr. fn runs
// synchronously inside the Listener's background receive goroutine; it
// should do nothing but hand the message off (e.g. onto a channel) so that
// whatever owns the rest of this process's state stays single-threaded.
func (l *Listener) Handle(addr string, fn func(*osc.Message)) error {
	return l.dispatcher.AddMsgHandler(addr, fn)
}

// Serve starts dispatching inbound packets and blocks until the listener's
// socket is closed. Callers run it in its own goroutine.
func (l *Listener) Serve() error {
	return l.server.Serve(l.conn)
}

// Close closes the underlying socket, which also unblocks Serve.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Send dispatches one OSC message with the given arguments to host:port.
// Like the C library this module's predecessor used, a short-lived client
// is created per send: these control-plane messages are rare enough that
// connection reuse isn't worth the bookkeeping.
func Send(host string, port uint16, addr string, args ...interface{}) error {
	msg := osc.NewMessage(addr)
	for _, a := range args {
		msg.Append(a)
	}
	client := osc.NewClient(host, int(port))
	return client.Send(msg)
}

// TypeTag returns the single-character OSC type tag for one argument, as
// used by this module's typetag-dispatch tables ("si", "iii", ...). It
// maps int32 to 'i', string to 's', float32 to 'f' and bool to 'T'; any
// other type yields '?'.
func TypeTag(arg interface{}) byte {
	switch arg.(type) {
	case int32:
		return 'i'
	case string:
		return 's'
	case float32:
		return 'f'
	case bool:
		return 'T'
	default:
		return '?'
	}
}

// TypeTags computes the full type-tag string (without the leading comma)
// for a message's arguments, for matching against the per-path dispatch
// tables in §4.2 and §6.
func TypeTags(msg *osc.Message) string {
	tags := make([]byte, len(msg.Arguments))
	for i, a := range msg.Arguments {
		tags[i] = TypeTag(a)
	}
	return string(tags)
}

// Int32 reads argument i of msg as an int32, reporting ok=false if the
// index is out of range or the argument isn't an int32.
func Int32(msg *osc.Message, i int) (int32, bool) {
	if i < 0 || i >= len(msg.Arguments) {
		return 0, false
	}
	v, ok := msg.Arguments[i].(int32)
	return v, ok
}

// String reads argument i of msg as a string, reporting ok=false if the
// index is out of range or the argument isn't a string.
func String(msg *osc.Message, i int) (string, bool) {
	if i < 0 || i >= len(msg.Arguments) {
		return "", false
	}
	v, ok := msg.Arguments[i].(string)
	return v, ok
}

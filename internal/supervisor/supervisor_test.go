package supervisor

import (
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"serialosc/internal/ipc"
	"serialosc/internal/oscutil"
)

func TestHandleDetectorMessageSpawnsDevice(t *testing.T) {
	s := New("/test/exe")
	spawned := make(chan string, 1)
	s.spawnDeviceServer = func(execPath, devnode string) (io.ReadCloser, *exec.Cmd, error) {
		spawned <- devnode
		r, _ := io.Pipe()
		return r, nil, nil
	}

	s.handleDetectorMessage(ipc.DeviceConnectionMsg{Devnode: "/dev/ttyUSB0"})

	if len(s.devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(s.devices))
	}
	select {
	case got := <-spawned:
		if got != "/dev/ttyUSB0" {
			t.Errorf("spawned devnode = %q, want /dev/ttyUSB0", got)
		}
	case <-time.After(time.Second):
		t.Fatal("spawnDeviceServer was not called")
	}
}

func TestHandleDetectorMessageEnforcesCapacity(t *testing.T) {
	s := New("/test/exe")
	calls := 0
	s.spawnDeviceServer = func(execPath, devnode string) (io.ReadCloser, *exec.Cmd, error) {
		calls++
		r, _ := io.Pipe()
		return r, nil, nil
	}

	for i := 0; i < MaxDevices+1; i++ {
		s.handleDetectorMessage(ipc.DeviceConnectionMsg{Devnode: "/dev/ttyUSB0"})
	}

	if len(s.devices) != MaxDevices {
		t.Fatalf("devices = %d, want %d", len(s.devices), MaxDevices)
	}
	if calls != MaxDevices {
		t.Fatalf("spawnDeviceServer calls = %d, want %d", calls, MaxDevices)
	}
}

func TestDeviceBecomesReadyAndNotifiesOnce(t *testing.T) {
	s := New("/test/exe")
	pr, _ := io.Pipe()
	rec := &deviceRecord{pipe: pr}
	s.devices = append(s.devices, rec)
	s.subs = []subscription{{host: "127.0.0.1", port: 9001}}

	s.handleDeviceMessage(deviceMsg{rec: rec, msg: ipc.DeviceInfoMsg{Serial: "m1", Friendly: "monome 128"}})
	s.handleDeviceMessage(deviceMsg{rec: rec, msg: ipc.OSCPortChangeMsg{Port: 17500}})

	if rec.ready {
		t.Fatalf("record became ready before DEVICE_READY")
	}

	s.handleDeviceMessage(deviceMsg{rec: rec, msg: ipc.DeviceReadyMsg{}})

	if !rec.ready {
		t.Fatalf("record did not become ready")
	}
	if len(s.subs) != 0 {
		t.Fatalf("subscriber list not cleared after fan-out: %v", s.subs)
	}
}

func TestNotReadyDeviceDisconnectSilent(t *testing.T) {
	s := New("/test/exe")
	pr, _ := io.Pipe()
	rec := &deviceRecord{pipe: pr}
	s.devices = append(s.devices, rec)
	s.subs = []subscription{{host: "127.0.0.1", port: 9002}}

	s.handleDeviceMessage(deviceMsg{rec: rec, err: io.EOF})

	if len(s.devices) != 0 {
		t.Fatalf("device record not removed")
	}
	if len(s.subs) != 1 {
		t.Fatalf("subscriber list was touched by a not-ready disconnect: %v", s.subs)
	}
}

func TestReadyDeviceDisconnectNotifiesAndRemoves(t *testing.T) {
	s := New("/test/exe")
	pr, _ := io.Pipe()
	rec := &deviceRecord{pipe: pr, ready: true, serial: "m1", friendly: "monome 128", oscPort: 17500}
	s.devices = append(s.devices, rec)
	s.subs = []subscription{{host: "127.0.0.1", port: 9003}}

	s.handleDeviceMessage(deviceMsg{rec: rec, msg: ipc.DeviceDisconnectionMsg{}})

	if len(s.devices) != 0 {
		t.Fatalf("device record not removed on disconnection")
	}
	if len(s.subs) != 0 {
		t.Fatalf("subscriber list not cleared by the remove fan-out: %v", s.subs)
	}
}

func TestListOmitsNotReadyDevices(t *testing.T) {
	s := New("/test/exe")
	pr1, _ := io.Pipe()
	pr2, _ := io.Pipe()
	s.devices = []*deviceRecord{
		{pipe: pr1, ready: true, serial: "m1", friendly: "monome 128", oscPort: 17500},
		{pipe: pr2, ready: false},
	}

	reply, err := oscutil.Listen(0)
	if err != nil {
		t.Fatalf("oscutil.Listen: %v", err)
	}
	defer reply.Close()
	serials := make(chan string, len(s.devices))
	if err := reply.Handle("/serialosc/device", func(msg *osc.Message) {
		serial, _ := oscutil.String(msg, 0)
		serials <- serial
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	go reply.Serve()

	s.handleList([]interface{}{"127.0.0.1", int32(reply.Port())})

	var got []string
	timeout := time.After(500 * time.Millisecond)
collect:
	for {
		select {
		case serial := <-serials:
			got = append(got, serial)
		case <-timeout:
			break collect
		}
	}
	if len(got) != 1 || got[0] != "m1" {
		t.Fatalf("/serialosc/device replies = %v, want exactly [m1]", got)
	}
}

func TestHostPortArgsRejectsWrongShape(t *testing.T) {
	if _, _, ok := hostPortArgs([]interface{}{"127.0.0.1"}); ok {
		t.Error("hostPortArgs accepted a single argument")
	}
	if _, _, ok := hostPortArgs([]interface{}{int32(1), "127.0.0.1"}); ok {
		t.Error("hostPortArgs accepted swapped argument types")
	}
	host, port, ok := hostPortArgs([]interface{}{"127.0.0.1", int32(9001)})
	if !ok || host != "127.0.0.1" || port != 9001 {
		t.Errorf("hostPortArgs(valid) = %q, %d, %v", host, port, ok)
	}
}

func TestHandleNotifyEnforcesSubscriptionCapacity(t *testing.T) {
	s := New("/test/exe")
	for i := 0; i < MaxSubscriptions+5; i++ {
		s.handleNotify([]interface{}{"127.0.0.1", int32(9000 + i)})
	}
	if len(s.subs) != MaxSubscriptions {
		t.Fatalf("subs = %d, want %d", len(s.subs), MaxSubscriptions)
	}
}

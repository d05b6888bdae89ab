package device

import "testing"

func TestOpenIsDeterministicPerDevnode(t *testing.T) {
	a, err := Open("/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, err := Open("/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a.Serial() != b.Serial() {
		t.Errorf("Serial() not deterministic: %q vs %q", a.Serial(), b.Serial())
	}

	c, err := Open("/dev/ttyUSB1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a.Serial() == c.Serial() {
		t.Errorf("different devnodes produced the same serial %q", a.Serial())
	}
}

func TestLEDAndCloseLifecycle(t *testing.T) {
	h, err := Open("/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := h.SetLED(0, 0, true); err != nil {
		t.Fatalf("SetLED: %v", err)
	}
	if err := h.ClearLEDs(0); err != nil {
		t.Fatalf("ClearLEDs: %v", err)
	}
	if err := h.SetIntensity(0xF); err != nil {
		t.Fatalf("SetIntensity: %v", err)
	}
	if err := h.SetRotation(Rotate90); err != nil {
		t.Fatalf("SetRotation: %v", err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.SetLED(0, 0, true); err != ErrClosed {
		t.Errorf("SetLED after Close = %v, want ErrClosed", err)
	}

	if _, open := <-h.Events(); open {
		t.Errorf("Events channel still open after Close")
	}
}

func TestInjectDeliversEvent(t *testing.T) {
	h, err := Open("/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	Inject(h, Event{Type: EventButtonDown, X: 3, Y: 4, Pressed: true})

	ev := <-h.Events()
	if ev.Type != EventButtonDown || ev.X != 3 || ev.Y != 4 || !ev.Pressed {
		t.Errorf("got %+v, want button down at (3,4)", ev)
	}
}

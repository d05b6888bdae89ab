package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestLogrusIntegration(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stdout)

	l := New("detector")
	l.Info("Test info message")
	l.Warn("Test warning message")
	l.Error("Test error message")

	output := buf.String()

	if !strings.Contains(output, "Test info message") {
		t.Error("Info message not found in output")
	}
	if !strings.Contains(output, "Test warning message") {
		t.Error("Warning message not found in output")
	}
	if !strings.Contains(output, "Test error message") {
		t.Error("Error message not found in output")
	}
	if !strings.Contains(output, "role=detector") {
		t.Error("role field not found in output")
	}
}

func TestStructuredLoggingCarriesRoleAndSerial(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stdout)

	New("supervisor").WithField("devnode", "/dev/ttyUSB0").Info("device found")
	New("deviceserver").WithSerial("m1000001").WithField("port", 17500).Info("device ready")

	output := buf.String()

	if !strings.Contains(output, "devnode=/dev/ttyUSB0") {
		t.Error("devnode field not found in structured log")
	}
	if !strings.Contains(output, "serial=m1000001") {
		t.Error("serial field not found in structured log")
	}
}

func TestWithSerialDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stdout)

	base := New("deviceserver")
	scoped := base.WithSerial("m1000001")
	scoped.Info("scoped line")
	base.Info("unscoped line")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "serial=m1000001") {
		t.Errorf("scoped line missing serial field: %q", lines[0])
	}
	if strings.Contains(lines[1], "serial=") {
		t.Errorf("unscoped line picked up serial field from a sibling: %q", lines[1])
	}
}

func TestSetLevelRejectsUnknownName(t *testing.T) {
	if err := SetLevel("nonsense"); err == nil {
		t.Error("SetLevel(nonsense) = nil error, want an error")
	}
}

func TestSetLevelAcceptsKnownNames(t *testing.T) {
	defer SetLevel("info")
	for _, name := range []string{"debug", "info", "warn", "warning", "error"} {
		if err := SetLevel(name); err != nil {
			t.Errorf("SetLevel(%q): %v", name, err)
		}
	}
}

func TestWithErrorIncludesMessage(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stdout)

	New("supervisor").WithError(&testError{message: "test error"}).Error("operation failed")

	if !strings.Contains(buf.String(), "test error") {
		t.Error("error message not found in log output")
	}
}

type testError struct {
	message string
}

func (e *testError) Error() string {
	return e.message
}

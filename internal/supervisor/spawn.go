package supervisor

import (
	"io"
	"os"
	"os/exec"

	"serialosc/internal/ipc"
)

// spawnDetectorProcess re-execs execPath in detector mode, wiring the
// child's stdout as this process's receive end of the detector pipe. Using
// stdout in place of a bespoke anonymous pipe keeps this a single
// io.ReadCloser the rest of the package never has to distinguish from one.
func spawnDetectorProcess(execPath string) (io.ReadCloser, *exec.Cmd, error) {
	cmd := exec.Command(execPath, "--mode=detector")
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return pipe, cmd, nil
}

// spawnDeviceServer re-execs execPath in device-server mode for one
// devnode, the Go equivalent of the original daemon re-invoking its own
// binary with the devnode as argv[1].
func spawnDeviceServer(execPath, devnode string) (io.ReadCloser, *exec.Cmd, error) {
	cmd := exec.Command(execPath, "--mode=deviceserver", devnode)
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return pipe, cmd, nil
}

// pumpDetector decodes messages from the detector pipe until it hangs up or
// a framing error occurs, forwarding each onto ch for the multiplexer.
func pumpDetector(pipe io.ReadCloser, ch chan<- detMsg) {
	defer pipe.Close()
	for {
		msg, err := ipc.Decode(pipe)
		if err != nil {
			ch <- detMsg{err: err}
			return
		}
		ch <- detMsg{msg: msg}
	}
}

// pumpDevice is pumpDetector's per-device analog; it tags every message
// with the record it came from so the multiplexer can find it in the table
// without a second lookup keyed by something else.
func pumpDevice(rec *deviceRecord, pipe io.ReadCloser, ch chan<- deviceMsg) {
	for {
		msg, err := ipc.Decode(pipe)
		if err != nil {
			ch <- deviceMsg{rec: rec, err: err}
			return
		}
		ch <- deviceMsg{rec: rec, msg: msg}
	}
}

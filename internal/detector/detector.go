// Package detector implements the "detector" role: it watches the OS
// device namespace for serial-over-USB devices, emits one DEVICE_CONNECTION
// IPC message per device it ever sees — first an initial snapshot of
// what's already plugged in, then every later hotplug arrival — and never
// returns under normal operation. It deliberately never reports removals;
// the supervisor detects disconnection by its pipe to the device server
// hanging up, not by watching the device namespace a second time.
package detector

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"serialosc/internal/ipc"
	"serialosc/internal/logging"
)

// DefaultDeviceDir is where serial-over-USB character devices show up on
// Linux. It is overridable (via Run's dir parameter) so tests can point the
// detector at a scratch directory instead of the real /dev.
const DefaultDeviceDir = "/dev"

// defaultPatterns matches the devnode basenames a serial-over-USB grid or
// encoder typically appears under.
var defaultPatterns = []string{"ttyUSB*", "ttyACM*", "cu.usbmodem*", "cu.usbserial*"}

// Run enumerates every already-attached matching device in dir, writing one
// DEVICE_CONNECTION per match to w, then watches dir for new arrivals
// indefinitely, writing one DEVICE_CONNECTION for each. It only returns on
// an unrecoverable watch error.
func Run(w io.Writer, dir string) error {
	if dir == "" {
		dir = DefaultDeviceDir
	}
	log := logging.New("detector")

	for _, devnode := range scan(log, dir, defaultPatterns) {
		if err := ipc.Encode(w, ipc.DeviceConnectionMsg{Devnode: devnode}); err != nil {
			return fmt.Errorf("detector: writing initial connection for %s: %w", devnode, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("detector: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		// An unwatchable device directory is the "invalid argument" class
		// failure the spec calls fatal for the readiness wait; there is no
		// hotplug event this detector could ever usefully retry into.
		return fmt.Errorf("detector: watching %s: %w", dir, err)
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("detector: watcher closed")
			}
			// Only "add" events produce a devnode; remove events are
			// ignored entirely, by design (see package doc).
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			if !matches(filepath.Base(ev.Name), defaultPatterns) {
				continue
			}
			if err := ipc.Encode(w, ipc.DeviceConnectionMsg{Devnode: ev.Name}); err != nil {
				return fmt.Errorf("detector: writing connection for %s: %w", ev.Name, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("detector: watcher error channel closed")
			}
			// A spurious wakeup or transient notify error: log and keep
			// watching, mirroring the original detector's EINTR/EAGAIN
			// retry of its blocking readiness wait.
			log.WithError(err).Warn("detector: watch error, continuing")
		}
	}
}

// scan returns the devnodes already present in dir matching patterns, in
// directory order, for the initial "already plugged in" snapshot.
func scan(log *logging.Logger, dir string, patterns []string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.WithError(err).WithField("dir", dir).Warn("detector: initial scan failed")
		return nil
	}

	var found []string
	for _, e := range entries {
		if matches(e.Name(), patterns) {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}
	return found
}

func matches(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// Command serialosc is the single binary backing all three process roles:
// supervisor, detector and device server. Which role it plays is selected
// by --mode, or, when --mode is omitted, by the last character of argv[0]
// ('d' for supervisor, 'm' for detector) the way the original daemon's
// install put both names on disk as hardlinks to the same executable.
package main

import (
	"flag"
	"fmt"
	"os"

	"serialosc/internal/detector"
	"serialosc/internal/deviceserver"
	"serialosc/internal/logging"
	"serialosc/internal/supervisor"
)

func main() {
	mode := flag.String("mode", "", "process role: supervisor, detector, or deviceserver")
	flag.Parse()

	role := *mode
	if role == "" {
		role = roleFromArgv0(os.Args[0])
	}

	var err error
	switch role {
	case "detector":
		err = detector.Run(os.Stdout, "")

	case "deviceserver":
		args := flag.Args()
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "serialosc: --mode=deviceserver requires exactly one devnode argument")
			os.Exit(2)
		}
		// Run itself elides IPC frames when os.Stdout turns out to be a
		// terminal, so a device server can be run standalone for debugging.
		err = deviceserver.Run(os.Stdout, args[0])

	case "supervisor":
		err = supervisor.New(os.Args[0]).Run()

	default:
		fmt.Fprintf(os.Stderr, "serialosc: cannot determine process role from argv[0]=%q; pass --mode explicitly\n", os.Args[0])
		os.Exit(2)
	}

	if err != nil {
		logging.New(role).WithError(err).Error("serialosc: exiting")
		os.Exit(1)
	}
}

// roleFromArgv0 replicates the original daemon's dispatch-by-hardlink-name
// trick: a binary installed as "...osc.m" runs as the detector, one
// installed as "...osc.d" runs as the supervisor. Neither suffix present
// means the caller must use --mode.
func roleFromArgv0(argv0 string) string {
	if argv0 == "" {
		return ""
	}
	switch argv0[len(argv0)-1] {
	case 'm':
		return "detector"
	case 'd':
		return "supervisor"
	default:
		return ""
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/spf13/cobra"

	"serialosc/internal/oscutil"
	"serialosc/internal/supervisor"
)

var listTimeout time.Duration

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices the supervisor currently reports as ready",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().DurationVar(&listTimeout, "timeout", 500*time.Millisecond, "how long to wait for replies")
}

func runList(cmd *cobra.Command, args []string) error {
	reply, err := oscutil.Listen(0)
	if err != nil {
		return fmt.Errorf("opening reply socket: %w", err)
	}
	defer reply.Close()

	count := 0
	if err := reply.Handle("/serialosc/device", func(msg *osc.Message) {
		serial, _ := oscutil.String(msg, 0)
		friendly, _ := oscutil.String(msg, 1)
		port, _ := oscutil.Int32(msg, 2)
		fmt.Printf("%-16s %-24s port %d\n", serial, friendly, port)
		count++
	}); err != nil {
		return fmt.Errorf("registering reply handler: %w", err)
	}

	go reply.Serve()

	if err := oscutil.Send("127.0.0.1", supervisor.SupervisorPort, "/serialosc/list", "127.0.0.1", int32(reply.Port())); err != nil {
		return fmt.Errorf("sending list request: %w", err)
	}

	time.Sleep(listTimeout)
	if count == 0 {
		fmt.Println("(no devices)")
	}
	return nil
}

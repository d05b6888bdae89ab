package main

import (
	"fmt"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/spf13/cobra"

	"serialosc/internal/oscutil"
	"serialosc/internal/supervisor"
)

var notifyTimeout time.Duration

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Subscribe and wait for one add/remove notification",
	Long: `notify registers a one-shot subscription with the supervisor, the same
one /serialosc/notify always grants, and prints the first /serialosc/add or
/serialosc/remove that arrives before --timeout elapses.`,
	RunE: runNotify,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.Flags().DurationVar(&notifyTimeout, "timeout", 30*time.Second, "how long to wait for a notification")
}

func runNotify(cmd *cobra.Command, args []string) error {
	reply, err := oscutil.Listen(0)
	if err != nil {
		return fmt.Errorf("opening reply socket: %w", err)
	}
	defer reply.Close()

	got := make(chan struct{}, 1)
	print := func(label string) func(*osc.Message) {
		return func(msg *osc.Message) {
			serial, _ := oscutil.String(msg, 0)
			friendly, _ := oscutil.String(msg, 1)
			port, _ := oscutil.Int32(msg, 2)
			fmt.Printf("%s %-16s %-24s port %d\n", label, serial, friendly, port)
			select {
			case got <- struct{}{}:
			default:
			}
		}
	}
	if err := reply.Handle("/serialosc/add", print("add   ")); err != nil {
		return err
	}
	if err := reply.Handle("/serialosc/remove", print("remove")); err != nil {
		return err
	}

	go reply.Serve()

	if err := oscutil.Send("127.0.0.1", supervisor.SupervisorPort, "/serialosc/notify", "127.0.0.1", int32(reply.Port())); err != nil {
		return fmt.Errorf("sending notify request: %w", err)
	}

	select {
	case <-got:
	case <-time.After(notifyTimeout):
		fmt.Println("(no notification received)")
	}
	return nil
}

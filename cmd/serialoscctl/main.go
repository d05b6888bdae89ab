// Command serialoscctl is a small command-line client for the supervisor's
// control OSC interface: it can list currently-ready devices, or wait for
// the next add/remove notification and print it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "serialoscctl",
	Short: "Query a running serialosc supervisor over OSC",
	Long: `serialoscctl talks to a running serialosc supervisor's control OSC
interface on 127.0.0.1:12002.

Examples:
  serialoscctl list              # print currently-ready devices
  serialoscctl notify            # watch for the next add/remove event`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "serialoscctl: %v\n", err)
		os.Exit(1)
	}
}

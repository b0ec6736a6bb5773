package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "bscbridge",
	Short: "BSC multidrop line to TN3270 bridge",
	Long: `Drives a bisynchronous (BSC) multidrop line through a USB or serial line
dongle and connects every terminal on it to a TN3270 host.

Examples:
  bscbridge run --config bridge.yml              # Run the bridge
  bscbridge interfaces                           # List line dongles
  bscbridge info --interface serial -d /dev/ttyACM0
  bscbridge frame poll 0 3                       # Show a poll sequence
  bscbridge simulate terminal.bsc --rounds 5     # Replay a scripted terminal`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaultConfig := os.Getenv("BSCBRIDGE_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "bscbridge.yml"
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfig,
		"configuration file (env BSCBRIDGE_CONFIG)")
}

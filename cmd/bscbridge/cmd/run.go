package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceBSC/internal/bridge"
	"github.com/OpenTraceLab/OpenTraceBSC/internal/config"
	"github.com/OpenTraceLab/OpenTraceBSC/internal/logger"
)

var (
	runTransport string
	runDevice    string
	runScript    string
	runHost      string
	runPort      int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge",
	Long: `Open the line dongle, connect every configured terminal to the TN3270 host
and drive the line until interrupted.

Flags override the matching configuration keys.

Examples:
  bscbridge run --config bridge.yml
  bscbridge run --transport serial --device /dev/ttyUSB0 --host tk4 --port 3270
  bscbridge run --transport sim --script terminal.bsc -v`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runTransport, "transport", "t", "", "line transport (serial, usb, sim)")
	runCmd.Flags().StringVarP(&runDevice, "device", "d", "", "serial device of the dongle")
	runCmd.Flags().StringVar(&runScript, "script", "", "terminal script for the sim transport")
	runCmd.Flags().StringVar(&runHost, "host", "", "TN3270 host")
	runCmd.Flags().IntVar(&runPort, "port", 0, "TN3270 port")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runTransport != "" {
		cfg.Line.Transport = runTransport
	}
	if runDevice != "" {
		cfg.Line.SerialDevice = runDevice
	}
	if runScript != "" {
		cfg.Line.Script = runScript
	}
	if runHost != "" {
		cfg.Telnet.Host = runHost
	}
	if runPort != 0 {
		cfg.Telnet.Port = runPort
	}
	applyVerbose(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, levels := logger.Setup(cfg.Loggers, false)
	defer levels.Close()

	b, err := bridge.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HotReload && len(cfg.LoadedFiles) > 0 {
		go func() {
			err := bridge.WatchConfig(ctx, cfgFile, cfg.LoadedFiles, log, func(next *config.Config) {
				applyVerbose(next)
				if levels.Apply(next.Loggers) {
					log.Info("Log levels reloaded")
				} else {
					log.Warn("Logger outputs changed, restart to apply")
				}
			})
			if err != nil {
				log.Error("Config watch failed", "err", err)
			}
		}()
	}

	return b.Run(ctx)
}

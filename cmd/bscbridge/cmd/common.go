package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceBSC/internal/config"
)

// loadConfig reads --config. A missing default file falls back to the
// built-in defaults; a missing file named explicitly is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") && os.Getenv("BSCBRIDGE_CONFIG") == "" {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// applyVerbose raises every console logger to debug.
func applyVerbose(cfg *config.Config) {
	if !verbose {
		return
	}
	found := false
	for i := range cfg.Loggers {
		if cfg.Loggers[i].Stdout {
			cfg.Loggers[i].Level = "debug"
			found = true
		}
	}
	if !found {
		cfg.Loggers = append(cfg.Loggers, config.LoggerConfig{Stdout: true, Level: "debug"})
	}
}

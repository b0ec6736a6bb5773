package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/dongle"
)

var (
	infoInterface string
	infoDevice    string
	infoBaud      int
	infoReset     bool
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Query the line dongle",
	Long: `Open the line dongle and print its firmware identification. Settings not
given as flags come from the configuration file.

Examples:
  bscbridge info
  bscbridge info --interface serial --device /dev/ttyACM0
  bscbridge info --interface usb --reset`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().StringVarP(&infoInterface, "interface", "i", "", "interface kind (serial, usb, sim)")
	infoCmd.Flags().StringVarP(&infoDevice, "device", "d", "", "serial device path")
	infoCmd.Flags().IntVar(&infoBaud, "baud", 0, "serial baud rate")
	infoCmd.Flags().BoolVar(&infoReset, "reset", false, "reset the dongle line receiver afterwards")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	kindName := cfg.Line.Transport
	if infoInterface != "" {
		kindName = infoInterface
	}
	kind, err := dongle.ParseInterfaceKind(kindName)
	if err != nil {
		return err
	}
	opts := dongle.OpenOptions{
		Kind:      kind,
		Path:      cfg.Line.SerialDevice,
		BaudRate:  cfg.Line.BaudRate,
		VendorID:  uint16(cfg.Line.USBVendorID),
		ProductID: uint16(cfg.Line.USBProductID),
	}
	if infoDevice != "" {
		opts.Path = infoDevice
	}
	if infoBaud != 0 {
		opts.BaudRate = infoBaud
	}

	if verbose {
		fmt.Printf("Opening %s interface...\n", kind)
	}
	t, err := dongle.Open(opts)
	if err != nil {
		return fmt.Errorf("open %s interface: %w", kind, err)
	}
	d := dongle.New(t, nil)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fw, err := d.Info(ctx)
	if err != nil {
		return fmt.Errorf("query dongle: %w", err)
	}

	fmt.Printf("Interface: %s\n", kind)
	if opts.Path != "" && kind == dongle.InterfaceKindSerial {
		fmt.Printf("Device:    %s\n", opts.Path)
	}
	fmt.Printf("Firmware:  %s\n", fw)

	if infoReset {
		if err := d.Reset(); err != nil {
			return fmt.Errorf("reset dongle: %w", err)
		}
		fmt.Println("Line receiver reset.")
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/dongle"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available line dongles",
	Long: `Scan the host for BSC line dongles (USB and serial) and print a summary of the
detected transports. Use this to verify connectivity or find the device path for
the line.serial-device setting.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := dongle.DiscoverInterfaces(ctx)
	if err != nil {
		// Partial results are still worth printing.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if len(infos) == 0 {
		fmt.Println("No interfaces found.")
		return nil
	}

	fmt.Println("Detected line interfaces:")
	for _, iface := range infos {
		if iface.VendorID != 0 || iface.ProductID != 0 {
			fmt.Printf("  - %s [%s] (VID:PID %04X:%04X)\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
		} else {
			fmt.Printf("  - %s [%s]\n", iface.Label(), iface.Kind)
		}
	}

	return nil
}

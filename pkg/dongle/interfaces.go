package dongle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
)

// InterfaceKind categorizes dongle connections.
type InterfaceKind string

const (
	InterfaceKindUSB    InterfaceKind = "usb"
	InterfaceKindSerial InterfaceKind = "serial"
	InterfaceKindSim    InterfaceKind = "simulator"
)

// ParseInterfaceKind accepts the names used in config files and flags.
func ParseInterfaceKind(s string) (InterfaceKind, error) {
	switch k := InterfaceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case InterfaceKindUSB, InterfaceKindSerial, InterfaceKindSim:
		return k, nil
	case "sim":
		return InterfaceKindSim, nil
	case "":
		return InterfaceKindSerial, nil
	}
	return "", fmt.Errorf("unknown interface kind %q", s)
}

// InterfaceInfo describes a detected dongle connection.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
	Path        string
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	switch {
	case i.Description != "" && i.Path != "":
		return fmt.Sprintf("%s (%s)", i.Description, i.Path)
	case i.Description != "":
		return i.Description
	case i.Path != "":
		return fmt.Sprintf("%s %s", i.Kind, i.Path)
	}
	return fmt.Sprintf("%s (%04X:%04X)", i.Kind, i.VendorID, i.ProductID)
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownDongles = []knownUSBDevice{
	{VendorID: VendorIDRaspberryPi, ProductID: ProductIDBSCDongle, Description: "RP2040 BSC dongle"},
}

func knownDongle(vid, pid uint16) (knownUSBDevice, bool) {
	for _, k := range knownDongles {
		if k.VendorID == vid && k.ProductID == pid {
			return k, true
		}
	}
	return knownUSBDevice{}, false
}

// DiscoverInterfaces lists USB dongles, serial ports and the simulator. The
// simulator entry is always present so the bridge can run without hardware.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	var errs []error

	usb := gousb.NewContext()
	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if k, ok := knownDongle(uint16(desc.Vendor), uint16(desc.Product)); ok {
			results = append(results, InterfaceInfo{
				Kind:        InterfaceKindUSB,
				Description: k.Description,
				VendorID:    k.VendorID,
				ProductID:   k.ProductID,
				Path:        fmt.Sprintf("bus %d addr %d", desc.Bus, desc.Address),
			})
		}
		return false
	})
	usb.Close()
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		errs = append(errs, fmt.Errorf("usb enumeration: %w", err))
	}

	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		errs = append(errs, fmt.Errorf("serial enumeration: %w", err))
	}
	for _, p := range ports {
		info := InterfaceInfo{Kind: InterfaceKindSerial, Path: p.Name}
		if p.IsUSB {
			info.VendorID = parseHexID(p.VID)
			info.ProductID = parseHexID(p.PID)
			info.Serial = p.SerialNumber
			info.Description = p.Product
			if k, ok := knownDongle(info.VendorID, info.ProductID); ok {
				info.Description = k.Description
			}
		}
		results = append(results, info)
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})

	return results, errors.Join(errs...)
}

func parseHexID(s string) uint16 {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

// OpenOptions selects and parameterizes a transport.
type OpenOptions struct {
	Kind      InterfaceKind
	Path      string // serial device
	BaudRate  int
	VendorID  uint16 // USB, zero selects the known dongle
	ProductID uint16
	Sim       *SimTransport // used for InterfaceKindSim, nil creates a silent one
}

// Open creates the transport described by opts.
func Open(opts OpenOptions) (Transport, error) {
	switch opts.Kind {
	case InterfaceKindSerial:
		if opts.Path == "" {
			return nil, errors.New("serial interface requires a device path")
		}
		return NewSerialTransport(opts.Path, opts.BaudRate)
	case InterfaceKindUSB:
		vid, pid := opts.VendorID, opts.ProductID
		if vid == 0 && pid == 0 {
			vid, pid = VendorIDRaspberryPi, ProductIDBSCDongle
		}
		return NewUSBTransport(vid, pid)
	case InterfaceKindSim:
		if opts.Sim != nil {
			return opts.Sim, nil
		}
		return NewSimTransport(nil), nil
	}
	return nil, fmt.Errorf("unknown interface kind %q", opts.Kind)
}

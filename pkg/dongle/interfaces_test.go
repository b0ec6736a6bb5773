package dongle

import (
	"context"
	"testing"
)

func TestParseInterfaceKind(t *testing.T) {
	tests := []struct {
		in      string
		want    InterfaceKind
		wantErr bool
	}{
		{"usb", InterfaceKindUSB, false},
		{"Serial", InterfaceKindSerial, false},
		{"sim", InterfaceKindSim, false},
		{"simulator", InterfaceKindSim, false},
		{"", InterfaceKindSerial, false},
		{"jtag", "", true},
	}
	for _, tt := range tests {
		got, err := ParseInterfaceKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseInterfaceKind(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInterfaceKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInterfaceInfoLabel(t *testing.T) {
	tests := []struct {
		info InterfaceInfo
		want string
	}{
		{InterfaceInfo{Kind: InterfaceKindSim, Description: "Simulator (no hardware)"}, "Simulator (no hardware)"},
		{InterfaceInfo{Kind: InterfaceKindSerial, Path: "/dev/ttyACM0"}, "serial /dev/ttyACM0"},
		{InterfaceInfo{Kind: InterfaceKindSerial, Description: "Pico", Path: "/dev/ttyACM0"}, "Pico (/dev/ttyACM0)"},
		{InterfaceInfo{Kind: InterfaceKindUSB, VendorID: 0x2E8A, ProductID: 0x000A}, "usb (2E8A:000A)"},
	}
	for _, tt := range tests {
		if got := tt.info.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestDiscoverInterfacesIncludesSimulator(t *testing.T) {
	// Enumeration errors are tolerated; the simulator entry is always last.
	infos, _ := DiscoverInterfaces(context.Background())
	if len(infos) == 0 {
		t.Fatal("DiscoverInterfaces() returned no entries")
	}
	last := infos[len(infos)-1]
	if last.Kind != InterfaceKindSim {
		t.Errorf("last entry kind = %q, want simulator", last.Kind)
	}
	for _, info := range infos {
		t.Logf("found %s", info.Label())
	}
}

func TestOpenSimulator(t *testing.T) {
	sim := NewSimTransport(nil)
	tr, err := Open(OpenOptions{Kind: InterfaceKindSim, Sim: sim})
	if err != nil {
		t.Fatal(err)
	}
	if tr != Transport(sim) {
		t.Error("Open() did not return the provided simulator")
	}
	if _, err := Open(OpenOptions{Kind: InterfaceKindSerial}); err == nil {
		t.Error("Open(serial) without a path should fail")
	}
	if _, err := Open(OpenOptions{Kind: "bogus"}); err == nil {
		t.Error("Open(bogus) should fail")
	}
}

func TestUSBTransportIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	tr, err := NewUSBTransport(VendorIDRaspberryPi, ProductIDBSCDongle)
	if err != nil {
		t.Skipf("No dongle hardware found: %v", err)
	}
	d := New(tr, nil)
	defer d.Close()

	info, err := d.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	t.Logf("firmware: %s", info)
}

package dongle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/gousb"
)

const (
	// USB identifiers of the RP2040 line dongle firmware.
	VendorIDRaspberryPi = 0x2E8A
	ProductIDBSCDongle  = 0x000A
)

// USBTransport talks to the dongle over its vendor-class bulk endpoints.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	readCtx    context.Context
	cancelRead context.CancelFunc
	closeOnce  sync.Once

	packetSize int
}

// NewUSBTransport opens the first device matching vid:pid.
func NewUSBTransport(vid, pid uint16) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}

	// Not supported everywhere; the claim below reports the real failure.
	_ = dev.SetAutoDetach(true)

	readCtx, cancel := context.WithCancel(context.Background())
	t := &USBTransport{
		ctx:        ctx,
		dev:        dev,
		readCtx:    readCtx,
		cancelRead: cancel,
		packetSize: 64,
	}
	if err := t.claimInterface(); err != nil {
		cancel()
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return t, nil
}

func (t *USBTransport) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	t.cfg = cfg

	num := 0
	for _, desc := range cfg.Desc.Interfaces {
		if len(desc.AltSettings) > 0 && desc.AltSettings[0].Class == gousb.ClassVendorSpec {
			num = desc.Number
			break
		}
	}

	intf, err := cfg.Interface(num, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface %d: %w", num, err)
	}
	t.intf = intf

	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && outNum == 0:
			outNum = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && inNum == 0:
			inNum = ep.Number
			t.packetSize = ep.MaxPacketSize
		}
	}
	if outNum == 0 || inNum == 0 {
		intf.Close()
		cfg.Close()
		return errors.New("bulk endpoints not found")
	}

	if t.epOut, err = intf.OutEndpoint(outNum); err != nil {
		intf.Close()
		cfg.Close()
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if t.epIn, err = intf.InEndpoint(inNum); err != nil {
		intf.Close()
		cfg.Close()
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	return nil
}

// PacketSize is the max packet size of the IN endpoint.
func (t *USBTransport) PacketSize() int {
	return t.packetSize
}

func (t *USBTransport) Write(data []byte) (int, error) {
	n, err := t.epOut.Write(data)
	if err != nil {
		return n, fmt.Errorf("USB write failed: %w", err)
	}
	return n, nil
}

// Read blocks until the device sends data or the transport is closed. The
// buffer should be a multiple of PacketSize.
func (t *USBTransport) Read(data []byte) (int, error) {
	n, err := t.epIn.ReadContext(t.readCtx, data)
	if err != nil {
		if t.readCtx.Err() != nil {
			return n, ErrClosed
		}
		return n, fmt.Errorf("USB read failed: %w", err)
	}
	return n, nil
}

func (t *USBTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancelRead()
		if t.intf != nil {
			t.intf.Close()
		}
		if t.cfg != nil {
			t.cfg.Close()
		}
		if t.dev != nil {
			t.dev.Close()
		}
		if t.ctx != nil {
			t.ctx.Close()
		}
	})
	return nil
}

package dongle

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaudRate = 57600

	serialReadTimeout = 100 * time.Millisecond
)

// SerialTransport talks to the dongle over a CDC-ACM or UART port, 8N1.
// Read returns (0, nil) when the poll interval passes without data.
type SerialTransport struct {
	port serial.Port
	path string
}

// NewSerialTransport opens path at baud. A zero baud selects DefaultBaudRate.
func NewSerialTransport(path string, baud int) (*SerialTransport, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	// Stale bytes from a previous session would desync the record stream.
	_ = port.ResetInputBuffer()
	return &SerialTransport{port: port, path: path}, nil
}

// Path returns the device path.
func (t *SerialTransport) Path() string {
	return t.path
}

func (t *SerialTransport) Read(p []byte) (int, error) {
	n, err := t.port.Read(p)
	if err != nil {
		return n, fmt.Errorf("serial read %s: %w", t.path, err)
	}
	return n, nil
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	n, err := t.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial write %s: %w", t.path, err)
	}
	return n, nil
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}

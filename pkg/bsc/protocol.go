package bsc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EBCDIC BSC control codes. ASCII and six-bit transcode variants are not
// supported.
const (
	SYN  byte = 0x32
	IDLE byte = SYN

	SOH byte = 0x01
	STX byte = 0x02
	ETB byte = 0x26
	ENQ byte = 0x2D
	ETX byte = 0x03
	DLE byte = 0x10
	NAK byte = 0x3D
	ITB byte = 0x1F // IUS
	EOT byte = 0x37

	// Second character of a DLE sequence.
	ACK0 byte = 0x70
	ACK1 byte = 0x61 // EBCDIC '/'
	WACK byte = 0x6B // EBCDIC ','
	RVI  byte = 0x7C // EBCDIC '@'

	// TTD is STX ENQ.
	TTD byte = ENQ

	LeadingPad  byte = 0x55
	TrailingPad byte = 0xFF

	ESC byte = 0x27
)

// MaxDeviceAddress is the highest device index that has a poll and select
// character.
const MaxDeviceAddress = 31

// ErrAddressRange is returned when a device index has no address character.
var ErrAddressRange = errors.New("bsc: device address out of range")

var pollChars = [MaxDeviceAddress + 1]byte{
	0x40, 0xC1, 0xC2, 0xC3, 0xC4, 0xC5, 0xC6, 0xC7,
	0xC8, 0xC9, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F,
	0x50, 0xD1, 0xD2, 0xD3, 0xD4, 0xD5, 0xD6, 0xD7,
	0xD8, 0xD9, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F,
}

var selectChars = [MaxDeviceAddress + 1]byte{
	0x60, 0x61, 0xE2, 0xE3, 0xE4, 0xE5, 0xE6, 0xE7,
	0xE8, 0xE9, 0x6A, 0x6B, 0x6C, 0x6D, 0x6E, 0x6F,
	0xF0, 0xF1, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7,
	0xF8, 0xF9, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F,
}

var controlChars = func() (t [256]bool) {
	for _, b := range []byte{0x01, 0x02, 0x03, 0x10, 0x1F, 0x26, 0x2D, 0x2E, 0x32, 0x37, 0x3D} {
		t[b] = true
	}
	return t
}()

// PollChar returns the poll addressing character for a device index.
func PollChar(addr int) (byte, error) {
	if addr < 0 || addr > MaxDeviceAddress {
		return 0, fmt.Errorf("%w: %d", ErrAddressRange, addr)
	}
	return pollChars[addr], nil
}

// SelectChar returns the select addressing character for a device index.
func SelectChar(addr int) (byte, error) {
	if addr < 0 || addr > MaxDeviceAddress {
		return 0, fmt.Errorf("%w: %d", ErrAddressRange, addr)
	}
	return selectChars[addr], nil
}

// AddressOfPollChar maps a poll character back to its device index.
func AddressOfPollChar(c byte) (int, bool) {
	for i, p := range pollChars {
		if p == c {
			return i, true
		}
	}
	return 0, false
}

// AddressOfSelectChar maps a select character back to its device index.
func AddressOfSelectChar(c byte) (int, bool) {
	for i, s := range selectChars {
		if s == c {
			return i, true
		}
	}
	return 0, false
}

// IsControlChar reports whether b is a BSC line control character.
func IsControlChar(b byte) bool {
	return controlChars[b]
}

// HasControlChar reports whether any byte of data is a BSC control character.
func HasControlChar(data []byte) bool {
	for _, b := range data {
		if controlChars[b] {
			return true
		}
	}
	return false
}

// ParseAddress parses a device address written in decimal or with a 0x
// prefix in hex, and checks it is a valid device index.
func ParseAddress(s string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	var (
		n   int64
		err error
	)
	if strings.HasPrefix(v, "0x") {
		n, err = strconv.ParseInt(v[2:], 16, 32)
	} else {
		n, err = strconv.ParseInt(v, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("bsc: invalid address %q: %w", s, err)
	}
	if n < 0 || n > MaxDeviceAddress {
		return 0, fmt.Errorf("%w: %d", ErrAddressRange, n)
	}
	return int(n), nil
}

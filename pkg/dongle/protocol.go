package dongle

import (
	"encoding/binary"
	"fmt"
)

// Host to dongle command codes.
const (
	CmdTransmit byte = 0x01 // payload: raw BSC frame to put on the line
	CmdInfo     byte = 0x02 // no payload, answered with RspInfo
	CmdReset    byte = 0x03 // no payload, drops the line receiver state
)

// Dongle to host response codes.
const (
	RspFrame byte = 0x81 // payload: bytes received from the line, pads included
	RspInfo  byte = 0x82 // payload: ASCII firmware identification
	RspError byte = 0x8F // payload: ASCII error text
)

const (
	// HeaderSize is the code byte plus the big-endian length.
	HeaderSize = 3
	// MaxPayload is the largest payload a 16-bit length can describe.
	MaxPayload = 0xFFFF
)

var codeNames = map[byte]string{
	CmdTransmit: "TRANSMIT",
	CmdInfo:     "INFO",
	CmdReset:    "RESET",
	RspFrame:    "FRAME",
	RspInfo:     "INFO_RESPONSE",
	RspError:    "ERROR",
}

// CodeName returns a printable name for a command or response code.
func CodeName(code byte) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", code)
}

// Record is one command or response exchanged with the dongle.
type Record struct {
	Code    byte
	Payload []byte
}

// EncodeHeader builds the three byte record header.
func EncodeHeader(code byte, length int) ([]byte, error) {
	if length < 0 || length > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}
	hdr := make([]byte, HeaderSize)
	hdr[0] = code
	binary.BigEndian.PutUint16(hdr[1:], uint16(length))
	return hdr, nil
}

// EncodeCommand builds a complete record.
func EncodeCommand(code byte, payload []byte) ([]byte, error) {
	hdr, err := EncodeHeader(code, len(payload))
	if err != nil {
		return nil, err
	}
	return append(hdr, payload...), nil
}

// Reassembler splits an inbound byte stream into records. Bytes of an
// incomplete record are held until the next Feed.
type Reassembler struct {
	partial []byte
}

// Feed appends chunk to any held bytes and returns every complete record.
func (r *Reassembler) Feed(chunk []byte) []Record {
	data := chunk
	if len(r.partial) > 0 {
		data = append(r.partial, chunk...)
		r.partial = nil
	}

	var records []Record
	for {
		if len(data) < HeaderSize {
			break
		}
		length := int(binary.BigEndian.Uint16(data[1:HeaderSize]))
		if len(data) < HeaderSize+length {
			break
		}
		payload := make([]byte, length)
		copy(payload, data[HeaderSize:HeaderSize+length])
		records = append(records, Record{Code: data[0], Payload: payload})
		data = data[HeaderSize+length:]
	}

	if len(data) > 0 {
		r.partial = append([]byte(nil), data...)
	}
	return records
}

// Pending returns the bytes held for an incomplete record, or nil.
func (r *Reassembler) Pending() []byte {
	return r.partial
}

// Reset drops any held bytes.
func (r *Reassembler) Reset() {
	r.partial = nil
}

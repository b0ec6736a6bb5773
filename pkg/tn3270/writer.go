package tn3270

import (
	"bytes"
	"io"
)

// EscapeRecord doubles every IAC in data and appends IAC EOR.
func EscapeRecord(data []byte) []byte {
	out := make([]byte, 0, len(data)+bytes.Count(data, []byte{IAC})+2)
	for _, b := range data {
		out = append(out, b)
		if b == IAC {
			out = append(out, IAC)
		}
	}
	return append(out, IAC, EOR)
}

// Writer frames outbound records and commands.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteRecord sends one escaped, EOR-terminated record.
func (w *Writer) WriteRecord(data []byte) error {
	_, err := w.w.Write(EscapeRecord(data))
	return err
}

// WriteRaw sends bytes unchanged, used for negotiation replies.
func (w *Writer) WriteRaw(p []byte) error {
	_, err := w.w.Write(p)
	return err
}

// WriteSubNegotiation sends IAC SB option data IAC SE.
func (w *Writer) WriteSubNegotiation(option byte, data []byte) error {
	buf := make([]byte, 0, 5+len(data))
	buf = append(buf, IAC, SB, option)
	buf = append(buf, data...)
	buf = append(buf, IAC, SE)
	_, err := w.w.Write(buf)
	return err
}

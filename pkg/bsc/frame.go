package bsc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sigurn/crc16"
)

// ErrNoTextBlock is returned when a frame has no complete SOH/STX ... ETX/ETB/ITB
// block to compute a block check over.
var ErrNoTextBlock = errors.New("bsc: no text block in frame")

// The BCC is CRC-16/ARC (polynomial 0x8005, reflected, zero init).
var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// Frame is one wire-level BSC frame. It keeps a running CRC while it is being
// built so that terminators appended through AppendEscaped or AppendDataByte
// are followed by their BCC.
type Frame struct {
	buf         []byte
	crc         uint16
	transparent bool
	autoBcc     bool

	// response carries a synthetic outcome (timeout, transport error) for
	// frames that were never received.
	response FrameType
}

// NewFrame returns a frame holding a copy of data. Auto BCC insertion is on.
func NewFrame(data ...byte) *Frame {
	f := &Frame{
		buf:     make([]byte, 0, len(data)+8),
		crc:     crc16.Init(crcTable),
		autoBcc: true,
	}
	f.buf = append(f.buf, data...)
	return f
}

// NewResponse returns an empty frame standing for a response that could not be
// received, tagged with t (normally ResponseTimeout or ResponseOtherError).
func NewResponse(t FrameType) *Frame {
	f := NewFrame()
	f.response = t
	return f
}

// SetAutoBcc enables or disables BCC insertion after terminators.
func (f *Frame) SetAutoBcc(on bool) {
	f.autoBcc = on
}

// Bytes returns the frame content. The slice aliases the frame buffer.
func (f *Frame) Bytes() []byte {
	return f.buf
}

// Len returns the used length of the frame.
func (f *Frame) Len() int {
	return len(f.buf)
}

// Transparent reports whether the frame builder is inside transparent text.
func (f *Frame) Transparent() bool {
	return f.transparent
}

func (f *Frame) String() string {
	return fmt.Sprintf("% X", f.buf)
}

// Append adds raw bytes without touching the CRC or the transparent state.
func (f *Frame) Append(data ...byte) {
	f.buf = append(f.buf, data...)
}

// AppendEscaped adds DLE followed by b. The DLE never enters the CRC.
// DLE STX resets the CRC and starts transparent text; DLE ETB/ITB/ENQ/ETX ends it.
// DLE ENQ aborts the block, so only ETB, ITB and ETX are followed by a BCC.
func (f *Frame) AppendEscaped(b byte) {
	f.buf = append(f.buf, DLE)
	if b == STX {
		f.resetCrc()
		f.transparent = true
	} else {
		f.fold(b)
		if b == ETB || b == ITB || b == ENQ || b == ETX {
			f.transparent = false
		}
	}
	f.buf = append(f.buf, b)
	if f.autoBcc && isTerminator(b) {
		f.appendRunningBcc()
	}
}

// AppendDataByte adds one text byte. Outside transparent text SOH and STX
// reset the CRC and are not part of it. Inside transparent text a DLE is sent
// twice but counted once.
func (f *Frame) AppendDataByte(b byte) {
	if !f.transparent && (b == SOH || b == STX) {
		f.resetCrc()
	} else {
		f.fold(b)
	}
	if f.transparent && b == DLE {
		f.buf = append(f.buf, DLE)
	}
	f.buf = append(f.buf, b)
	if f.autoBcc && !f.transparent && isTerminator(b) {
		f.appendRunningBcc()
	}
}

func (f *Frame) resetCrc() {
	f.crc = crc16.Init(crcTable)
}

func (f *Frame) fold(b byte) {
	f.crc = crc16.Update(f.crc, []byte{b}, crcTable)
}

func (f *Frame) appendRunningBcc() {
	f.appendBcc(crc16.Complete(f.crc, crcTable))
}

func (f *Frame) appendBcc(v uint16) {
	f.buf = append(f.buf, byte(v), byte(v>>8))
}

func isTerminator(b byte) bool {
	return b == ETX || b == ETB || b == ITB
}

// ResponseType returns the synthetic outcome if the frame carries one, else
// the classification of its bytes.
func (f *Frame) ResponseType() FrameType {
	if f.response != 0 {
		return f.response
	}
	return f.Type()
}

// Type classifies the frame from its bytes. Index 0 is the single SYN kept
// by CreateFrame.
func (f *Frame) Type() FrameType {
	b := f.buf
	n := len(b)
	if n < 2 {
		return FrameBad
	}

	switch b[1] {
	case EOT:
		return FrameEOT
	case ENQ:
		return FrameENQ
	case DLE:
		// DLE x, optionally followed by the one trailing pad CreateFrame keeps.
		if n == 3 || n == 4 {
			switch b[2] {
			case ACK0, ACK1:
				return FrameACK
			case WACK:
				return FrameWACK
			case RVI:
				return FrameRVI
			}
		}
	case NAK:
		return FrameNAK
	}

	if (n == 6 || n == 7) && b[5] == ENQ && b[1] == b[2] && b[3] == b[4] {
		return FramePollSelect
	}

	if _, _, transparent, ok := f.decodeText(); ok {
		if transparent {
			return FrameTransparentText
		}
		return FrameText
	}
	return FrameBad
}

// HasHeader reports whether an SOH occurs anywhere in the frame.
func (f *Frame) HasHeader() bool {
	return bytes.IndexByte(f.buf, SOH) >= 0
}

// HeaderBeforeText reports whether an SOH precedes the opening STX, the
// way a header block starts. Unlike HasHeader it ignores SOH bytes in the
// text and in the BCC.
func (f *Frame) HeaderBeforeText() bool {
	s := bytes.IndexByte(f.buf, STX)
	if s < 0 {
		return false
	}
	return bytes.IndexByte(f.buf[:s], SOH) >= 0
}

// AckNumber returns 0 or 1 for an ACK frame and -1 otherwise.
func (f *Frame) AckNumber() int {
	if f.Type() != FrameACK {
		return -1
	}
	if f.buf[2] == ACK0 {
		return 0
	}
	return 1
}

// ForEachTextByte calls fn for every logical text byte, in order. Doubled
// DLEs in transparent text are passed once and DLE SYN fill is dropped.
// Nothing is passed for a frame without a complete text block.
func (f *Frame) ForEachTextByte(fn func(b byte)) {
	text, _, _, ok := f.decodeText()
	if !ok {
		return
	}
	for _, b := range text {
		fn(b)
	}
}

// TextBytes returns the logical text of the frame, or nil.
func (f *Frame) TextBytes() []byte {
	text, _, _, ok := f.decodeText()
	if !ok {
		return nil
	}
	return text
}

// decodeText locates the text after the first STX and returns it unescaped
// along with the index of the terminator byte.
func (f *Frame) decodeText() (text []byte, term int, transparent bool, ok bool) {
	b := f.buf
	n := len(b)
	s := bytes.IndexByte(b, STX)
	if s < 0 {
		return nil, -1, false, false
	}
	transparent = s > 0 && b[s-1] == DLE
	text = make([]byte, 0, n-s)

	for x := s + 1; x < n; x++ {
		if !transparent {
			if isTerminator(b[x]) {
				return text, x, false, true
			}
			text = append(text, b[x])
			continue
		}
		if b[x] == DLE && x+1 < n {
			switch next := b[x+1]; {
			case isTerminator(next):
				return text, x + 1, true, true
			case next == DLE:
				x++
			case next == SYN:
				x++
				continue
			}
		}
		text = append(text, b[x])
	}
	return nil, -1, transparent, false
}

// FindStartEndForBcc locates the block check window. start is the index after
// SOH (or after STX when there is no header) and end is the index of the
// first ETX, ETB or ITB. In transparent text the scan also stops on the byte
// following any DLE, which is where the DLE of DLE ETX sits.
func (f *Frame) FindStartEndForBcc() (start, end int, transparent bool, err error) {
	b := f.buf
	n := len(b)

	p := 0
	for p < n && b[p] != STX && b[p] != SOH {
		p++
	}
	if p == n {
		return 0, 0, false, ErrNoTextBlock
	}

	if b[p] == SOH {
		p++
		start = p
		for p < n && b[p] != STX {
			p++
		}
		if p == n {
			return 0, 0, false, ErrNoTextBlock
		}
		transparent = b[p-1] == DLE
		p++
	} else {
		transparent = p > 0 && b[p-1] == DLE
		p++
		start = p
	}

	if transparent {
		for p < n && b[p-1] != DLE && !isTerminator(b[p]) {
			p++
		}
	} else {
		for p < n && !isTerminator(b[p]) {
			p++
		}
	}
	if p >= n {
		return 0, 0, false, ErrNoTextBlock
	}
	return start, p, transparent, nil
}

// AddBcc computes the block check over the window found by FindStartEndForBcc
// and appends it, low byte first. In transparent mode the CRC input is the
// window up to (not including) end with its last byte replaced by the
// terminator, so the DLE before the terminator is left out.
func (f *Frame) AddBcc() error {
	start, end, transparent, err := f.FindStartEndForBcc()
	if err != nil {
		return err
	}

	var calc []byte
	if transparent {
		calc = append(calc, f.buf[start:end]...)
		if len(calc) > 0 {
			calc[len(calc)-1] = f.buf[end]
		}
	} else {
		calc = f.buf[start : end+1]
	}
	f.appendBcc(crc16.Checksum(calc, crcTable))
	return nil
}

// CheckBcc verifies the two bytes following the text terminator. Transparent
// text is checked over its unescaped content plus the terminator.
func (f *Frame) CheckBcc() bool {
	text, term, transparent, ok := f.decodeText()
	if !ok || term+2 >= len(f.buf) {
		return false
	}

	var v uint16
	if transparent {
		v = crc16.Checksum(append(text, f.buf[term]), crcTable)
	} else {
		start, end, _, err := f.FindStartEndForBcc()
		if err != nil || end != term {
			return false
		}
		v = crc16.Checksum(f.buf[start:end+1], crcTable)
	}
	return f.buf[term+1] == byte(v) && f.buf[term+2] == byte(v>>8)
}

// CreateFrame builds a frame from raw line bytes, dropping leading pads and
// redundant SYNs and any run of trailing pads past the first.
func CreateFrame(raw []byte) *Frame {
	if len(raw) == 0 {
		return NewFrame()
	}
	start := findStartOfFrame(raw)
	end := findEndOfFrame(raw)
	if end < start {
		return NewFrame()
	}
	return NewFrame(raw[start : end+1]...)
}

func findStartOfFrame(raw []byte) int {
	i := 0
	for i < len(raw)-1 {
		if raw[i] == LeadingPad || raw[i] == TrailingPad || (raw[i] == SYN && raw[i+1] == SYN) {
			i++
			continue
		}
		break
	}
	return i
}

func findEndOfFrame(raw []byte) int {
	i := len(raw) - 1
	for i > 0 && raw[i] == TrailingPad && raw[i-1] == TrailingPad {
		i--
	}
	return i
}

package bsc

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestFindStartEndForBcc(t *testing.T) {
	tests := []struct {
		name            string
		frame           []byte
		wantStart       int
		wantEnd         int
		wantTransparent bool
		wantErr         bool
	}{
		{
			name:      "stx etx",
			frame:     []byte{SYN, SYN, STX, 0x41, 0x42, ETX},
			wantStart: 3,
			wantEnd:   5,
		},
		{
			name:            "dle stx dle etx",
			frame:           []byte{SYN, SYN, DLE, STX, 0x41, 0x42, DLE, ETX},
			wantStart:       4,
			wantEnd:         7,
			wantTransparent: true,
		},
		{
			name:      "soh header",
			frame:     []byte{SYN, SOH, 0x6C, 0xD9, STX, 0x40, 0x40, 0x40, 0x70, ETX},
			wantStart: 2,
			wantEnd:   9,
		},
		{
			name:      "etb block",
			frame:     []byte{SYN, STX, 0x41, ETB},
			wantStart: 2,
			wantEnd:   3,
		},
		{
			name:    "no text",
			frame:   []byte{SYN, EOT},
			wantErr: true,
		},
		{
			name:    "unterminated",
			frame:   []byte{SYN, STX, 0x41, 0x42},
			wantErr: true,
		},
		{
			name:    "header without stx",
			frame:   []byte{SYN, SOH, 0x6C, 0xD9},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrame(tt.frame...)
			start, end, transparent, err := f.FindStartEndForBcc()
			if tt.wantErr {
				if !errors.Is(err, ErrNoTextBlock) {
					t.Fatalf("FindStartEndForBcc() error = %v, want ErrNoTextBlock", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindStartEndForBcc() error = %v", err)
			}
			if start != tt.wantStart || end != tt.wantEnd || transparent != tt.wantTransparent {
				t.Errorf("FindStartEndForBcc() = (%d, %d, %v), want (%d, %d, %v)",
					start, end, transparent, tt.wantStart, tt.wantEnd, tt.wantTransparent)
			}
		})
	}
}

func TestAddBcc(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  []byte
	}{
		{
			name:  "normal etx",
			frame: []byte{SYN, STX, 0x41, 0x42, 0x43, ETX},
			want:  []byte{0xC5, 0x19},
		},
		{
			name:  "normal etb",
			frame: []byte{SYN, STX, 0x41, 0x42, 0x43, ETB},
			want:  []byte{0x04, 0xC2},
		},
		{
			name:  "transparent etx excludes dle",
			frame: []byte{SYN, DLE, STX, 0x41, 0x42, 0x43, DLE, ETX},
			want:  []byte{0xC5, 0x19},
		},
		{
			name:  "header block",
			frame: []byte{SYN, SOH, 0x6C, 0xD9, STX, 0x40, 0x40, 0x40, 0x70, ETX},
			want:  []byte{0x3F, 0x48},
		},
		{
			name:  "status message",
			frame: []byte{SYN, SOH, 0x6C, 0xD9, STX, 0x40, 0xC8, 0x40, 0x50, ETX},
			want:  []byte{0x0D, 0x28},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrame(tt.frame...)
			if err := f.AddBcc(); err != nil {
				t.Fatalf("AddBcc() error = %v", err)
			}
			want := append(append([]byte(nil), tt.frame...), tt.want...)
			if !bytes.Equal(f.Bytes(), want) {
				t.Errorf("AddBcc() = % X, want % X", f.Bytes(), want)
			}
			if !f.CheckBcc() {
				t.Errorf("CheckBcc() = false after AddBcc on % X", f.Bytes())
			}
		})
	}
}

func TestAddBccNoText(t *testing.T) {
	f := NewFrame(SYN, EOT)
	if err := f.AddBcc(); !errors.Is(err, ErrNoTextBlock) {
		t.Errorf("AddBcc() error = %v, want ErrNoTextBlock", err)
	}
	if f.Len() != 2 {
		t.Errorf("AddBcc() changed frame to % X", f.Bytes())
	}
}

func TestFrameType(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  FrameType
	}{
		{"eot", []byte{SYN, EOT}, FrameEOT},
		{"eot with pad", []byte{SYN, EOT, TrailingPad}, FrameEOT},
		{"enq", []byte{SYN, ENQ}, FrameENQ},
		{"ack0", []byte{SYN, DLE, ACK0}, FrameACK},
		{"ack0 with pad", []byte{SYN, DLE, ACK0, TrailingPad}, FrameACK},
		{"ack1", []byte{SYN, DLE, ACK1, TrailingPad}, FrameACK},
		{"wack", []byte{SYN, DLE, WACK, TrailingPad}, FrameWACK},
		{"rvi", []byte{SYN, DLE, RVI}, FrameRVI},
		{"nak", []byte{SYN, NAK, TrailingPad}, FrameNAK},
		{"poll", []byte{SYN, 0x40, 0x40, 0xC1, 0xC1, ENQ}, FramePollSelect},
		{"select with pad", []byte{SYN, 0x60, 0x60, 0xC1, 0xC1, ENQ, TrailingPad}, FramePollSelect},
		{"text", []byte{SYN, STX, 0x41, 0x42, 0x43, ETX, 0xC5, 0x19}, FrameText},
		{"header text", []byte{SYN, SOH, 0x6C, 0xD9, STX, 0x40, ETX, 0x00, 0x00}, FrameText},
		{"transparent text", []byte{SYN, DLE, STX, 0x41, DLE, ETX, 0x00, 0x00}, FrameTransparentText},
		{"unterminated text", []byte{SYN, STX, 0x41, 0x42}, FrameBad},
		{"garbage", []byte{SYN, 0x41, 0x42}, FrameBad},
		{"dle other", []byte{SYN, DLE, 0x41, TrailingPad}, FrameBad},
		{"single byte", []byte{SYN}, FrameBad},
		{"empty", nil, FrameBad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewFrame(tt.frame...).Type(); got != tt.want {
				t.Errorf("Type() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponseType(t *testing.T) {
	if got := NewResponse(ResponseTimeout).ResponseType(); got != ResponseTimeout {
		t.Errorf("ResponseType() = %v, want %v", got, ResponseTimeout)
	}
	if got := NewFrame(SYN, EOT).ResponseType(); got != FrameEOT {
		t.Errorf("ResponseType() = %v, want %v", got, FrameEOT)
	}
	if got := ResponseOtherError.String(); got != "RESPONSE_OTHER_ERROR" {
		t.Errorf("String() = %q", got)
	}
	if got := FrameType(42).String(); got != "FrameType(42)" {
		t.Errorf("String() = %q", got)
	}
}

func TestHasHeader(t *testing.T) {
	if NewFrame(SYN, STX, 0x41, ETX).HasHeader() {
		t.Error("HasHeader() = true for plain text")
	}
	if !NewFrame(SYN, SOH, 0x6C, 0xD9, STX, ETX).HasHeader() {
		t.Error("HasHeader() = false for header text")
	}
}

func TestHeaderBeforeText(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		want  bool
	}{
		{"plain text", NewFrame(SYN, STX, 0x41, ETX), false},
		{"header", NewFrame(SYN, SOH, 0x6C, 0xD9, STX, ETX), true},
		// BCC of 40 FD is 01 45.
		{"SOH in BCC", MakeFrameCommand([]byte{0x40, 0xFD}, true, false), false},
		{"SOH in transparent text", MakeFrameCommand([]byte{SOH, 0x41}, true, true), false},
		{"no text", MakeFrameEot(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.HeaderBeforeText(); got != tt.want {
				t.Errorf("HeaderBeforeText() = %v, want %v (frame %s)", got, tt.want, tt.frame)
			}
		})
	}
}

func TestAckNumber(t *testing.T) {
	if got := MakeFrameAck(0).AckNumber(); got != 0 {
		t.Errorf("AckNumber() = %d, want 0", got)
	}
	if got := MakeFrameAck(1).AckNumber(); got != 1 {
		t.Errorf("AckNumber() = %d, want 1", got)
	}
	if got := MakeFrameEot().AckNumber(); got != -1 {
		t.Errorf("AckNumber() = %d, want -1", got)
	}
}

func TestForEachTextByte(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  []byte
	}{
		{
			name:  "normal",
			frame: []byte{SYN, STX, 0x41, 0x42, ETX, 0x20, 0xB5},
			want:  []byte{0x41, 0x42},
		},
		{
			name:  "header skipped",
			frame: []byte{SYN, SOH, 0x6C, 0xD9, STX, 0x40, 0xC8, ETX, 0x00, 0x00},
			want:  []byte{0x40, 0xC8},
		},
		{
			name:  "transparent doubled dle",
			frame: []byte{SYN, DLE, STX, 0x41, DLE, DLE, 0x42, DLE, ETX, 0x65, 0x58},
			want:  []byte{0x41, DLE, 0x42},
		},
		{
			name:  "transparent keeps bare control bytes",
			frame: []byte{SYN, DLE, STX, ETX, STX, DLE, ETB, 0x00, 0x00},
			want:  []byte{ETX, STX},
		},
		{
			name:  "transparent dle syn fill",
			frame: []byte{SYN, DLE, STX, 0x41, DLE, SYN, 0x42, DLE, ETX, 0x00, 0x00},
			want:  []byte{0x41, 0x42},
		},
		{
			name:  "bcc byte is not text",
			frame: []byte{SYN, STX, 0x41, ETX, STX, 0x41},
			want:  []byte{0x41},
		},
		{
			name:  "bad frame",
			frame: []byte{SYN, STX, 0x41, 0x42},
			want:  nil,
		},
		{
			name:  "no text",
			frame: []byte{SYN, EOT},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []byte
			NewFrame(tt.frame...).ForEachTextByte(func(b byte) {
				got = append(got, b)
			})
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ForEachTextByte() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestCreateFrame(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want []byte
	}{
		{
			name: "sync and pad",
			raw:  []byte{SYN, SYN, EOT, TrailingPad, TrailingPad},
			want: []byte{SYN, EOT, TrailingPad},
		},
		{
			name: "leading pads",
			raw:  []byte{LeadingPad, LeadingPad, SYN, SYN, SYN, DLE, ACK0, TrailingPad, TrailingPad, TrailingPad},
			want: []byte{SYN, DLE, ACK0, TrailingPad},
		},
		{
			name: "canonical unchanged",
			raw:  []byte{SYN, EOT},
			want: []byte{SYN, EOT},
		},
		{
			name: "interior sync kept",
			raw:  []byte{SYN, SYN, STX, 0x41, SYN, 0x42, ETX, 0x01, 0x02, TrailingPad},
			want: []byte{SYN, STX, 0x41, SYN, 0x42, ETX, 0x01, 0x02, TrailingPad},
		},
		{
			name: "pads only",
			raw:  []byte{TrailingPad, TrailingPad},
			want: []byte{},
		},
		{
			name: "empty",
			raw:  nil,
			want: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CreateFrame(tt.raw)
			if !bytes.Equal(got.Bytes(), tt.want) {
				t.Errorf("CreateFrame(% X) = % X, want % X", tt.raw, got.Bytes(), tt.want)
			}
			again := CreateFrame(got.Bytes())
			if !bytes.Equal(again.Bytes(), got.Bytes()) {
				t.Errorf("CreateFrame not idempotent: % X -> % X", got.Bytes(), again.Bytes())
			}
		})
	}

	if got := CreateFrame([]byte{LeadingPad, SYN, SYN, DLE, ACK1, TrailingPad, TrailingPad}).Type(); got != FrameACK {
		t.Errorf("Type() of padded ACK1 = %v, want ACK", got)
	}
}

func TestAppendEscapedModes(t *testing.T) {
	f := NewFrame(SYN)
	f.AppendEscaped(STX)
	if !f.Transparent() {
		t.Fatal("DLE STX did not enter transparent mode")
	}
	f.AppendDataByte(DLE)
	f.AppendDataByte(ETX)
	if !f.Transparent() {
		t.Fatal("data ETX left transparent mode")
	}
	f.AppendEscaped(ETB)
	if f.Transparent() {
		t.Fatal("DLE ETB did not leave transparent mode")
	}

	want := []byte{SYN, DLE, STX, DLE, DLE, ETX, DLE, ETB}
	if !bytes.Equal(f.Bytes()[:len(want)], want) {
		t.Errorf("frame = % X, want prefix % X", f.Bytes(), want)
	}
	if f.Len() != len(want)+2 {
		t.Errorf("Len() = %d, want %d (BCC appended)", f.Len(), len(want)+2)
	}
	if !f.CheckBcc() {
		t.Errorf("CheckBcc() = false for % X", f.Bytes())
	}
}

func TestAppendEscapedEnqAbortsBlock(t *testing.T) {
	f := NewFrame(SYN)
	f.AppendEscaped(STX)
	f.AppendDataByte(0x41)
	f.AppendEscaped(ENQ)
	if f.Transparent() {
		t.Fatal("DLE ENQ did not leave transparent mode")
	}
	want := []byte{SYN, DLE, STX, 0x41, DLE, ENQ}
	if !bytes.Equal(f.Bytes(), want) {
		t.Errorf("frame = % X, want % X (no BCC after DLE ENQ)", f.Bytes(), want)
	}
}

func TestAutoBccDisabled(t *testing.T) {
	f := NewFrame(SYN)
	f.SetAutoBcc(false)
	f.AppendDataByte(STX)
	for _, b := range []byte{0x41, 0x42, 0x43} {
		f.AppendDataByte(b)
	}
	f.AppendDataByte(ETX)

	if f.Len() != 6 {
		t.Fatalf("Len() = %d, want 6 without BCC", f.Len())
	}
	if err := f.AddBcc(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Bytes(), MakeFrameCommand([]byte{0x41, 0x42, 0x43}, true, false).Bytes()) {
		t.Errorf("AddBcc() = % X, differs from auto BCC frame", f.Bytes())
	}
}

func TestCheckBccDetectsCorruption(t *testing.T) {
	good := MakeFrameCommand([]byte{0xC1, 0xC2, 0xC3}, true, true)
	if !good.CheckBcc() {
		t.Fatalf("CheckBcc() = false for % X", good.Bytes())
	}

	bad := NewFrame(good.Bytes()...)
	bad.Bytes()[3] ^= 0x01
	if bad.CheckBcc() {
		t.Errorf("CheckBcc() = true for corrupted % X", bad.Bytes())
	}

	short := NewFrame(SYN, STX, 0x41, ETX, 0x20)
	if short.CheckBcc() {
		t.Error("CheckBcc() = true with a truncated BCC")
	}
}

// Literal DLEs appear doubled on the wire and come back single.
func TestTransparentDoublingRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	payloads := [][]byte{
		{},
		{DLE},
		{DLE, DLE, DLE},
		{0x41, DLE, 0x42, DLE, ETX, DLE, STX},
		{SYN, ENQ, EOT, ITB, ETB},
	}
	for i := 0; i < 50; i++ {
		p := make([]byte, rng.Intn(300))
		rng.Read(p)
		payloads = append(payloads, p)
	}

	for i, payload := range payloads {
		for _, last := range []bool{true, false} {
			f := MakeFrameCommand(payload, last, true)
			wire := f.Bytes()

			// SYN DLE STX <text> DLE ETX|ETB BCC BCC
			text := wire[3 : len(wire)-4]
			k := bytes.Count(payload, []byte{DLE})
			if got := bytes.Count(text, []byte{DLE}); got != 2*k {
				t.Errorf("payload %d: %d DLE on the wire, want %d", i, got, 2*k)
			}
			if got := f.TextBytes(); !bytes.Equal(got, payload) {
				t.Errorf("payload %d: TextBytes() = % X, want % X", i, got, payload)
			}
			if f.Type() != FrameTransparentText {
				t.Errorf("payload %d: Type() = %v", i, f.Type())
			}
			if !f.CheckBcc() {
				t.Errorf("payload %d: CheckBcc() = false", i)
			}
		}
	}
}

// Recomputing the BCC over the same window gives the same two bytes.
func TestNormalBccRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		payload := make([]byte, 1+rng.Intn(200))
		for j := range payload {
			payload[j] = byte(0x40 + rng.Intn(0xBA))
		}

		f := MakeFrameCommand(payload, i%2 == 0, false)
		wire := f.Bytes()

		raw := NewFrame(wire[:len(wire)-2]...)
		if err := raw.AddBcc(); err != nil {
			t.Fatalf("AddBcc() error = %v", err)
		}
		if !bytes.Equal(raw.Bytes(), wire) {
			t.Errorf("AddBcc() = % X, want % X", raw.Bytes(), wire)
		}
		if !bytes.Equal(f.TextBytes(), payload) {
			t.Errorf("TextBytes() = % X, want % X", f.TextBytes(), payload)
		}
	}
}

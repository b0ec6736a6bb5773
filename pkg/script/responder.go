// Package script plays the terminal side of a BSC line from a small text
// script, so the bridge can run against a simulated dongle.
package script

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/encoding/charmap"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/bsc"
)

type matchKind int

const (
	matchPoll matchKind = iota
	matchSelect
	matchEOT
	matchAck0
	matchAck1
	matchAck
	matchNak
	matchText
	matchAny
)

var matchKinds = map[string]matchKind{
	"poll":   matchPoll,
	"select": matchSelect,
	"eot":    matchEOT,
	"ack0":   matchAck0,
	"ack1":   matchAck1,
	"ack":    matchAck,
	"nak":    matchNak,
	"text":   matchText,
	"any":    matchAny,
}

// Header bytes sent ahead of STX for replies flagged "header".
var headerBytes = []byte{0x6C, 0xD9}

type step struct {
	line   int
	source string
	kind   matchKind
	cu     int // -1 matches any
	dev    int
	reply  []byte // nil means stay silent
	count  int
}

func (s *step) matches(f *bsc.Frame) bool {
	typ := f.Type()
	switch s.kind {
	case matchAny:
		return true
	case matchEOT:
		return typ == bsc.FrameEOT
	case matchNak:
		return typ == bsc.FrameNAK
	case matchText:
		return typ.IsText()
	case matchAck:
		return typ == bsc.FrameACK
	case matchAck0:
		return f.AckNumber() == 0
	case matchAck1:
		return f.AckNumber() == 1
	case matchPoll, matchSelect:
		if typ != bsc.FramePollSelect {
			return false
		}
		b := f.Bytes()
		var cu int
		var ok bool
		if s.kind == matchPoll {
			cu, ok = bsc.AddressOfPollChar(b[1])
		} else {
			cu, ok = bsc.AddressOfSelectChar(b[1])
		}
		if !ok {
			return false
		}
		dev, ok := bsc.AddressOfPollChar(b[3])
		if !ok {
			return false
		}
		return (s.cu < 0 || s.cu == cu) && (s.dev < 0 || s.dev == dev)
	}
	return false
}

// Responder answers frames in script order. It is safe for concurrent use
// and its Respond method fits dongle.FrameHook.
type Responder struct {
	logger *slog.Logger

	mu         sync.Mutex
	steps      []*step
	pos        int
	used       int
	mismatches []string
}

// Compile checks a parsed script and prepares every reply.
func Compile(s *Script, logger *slog.Logger) (*Responder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Responder{logger: logger.With("component", "script")}
	for _, st := range s.Steps {
		compiled, err := compileStep(st)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", st.Pos.Line, err)
		}
		r.steps = append(r.steps, compiled)
	}
	return r, nil
}

// CompileString parses and compiles src.
func CompileString(src string, logger *slog.Logger) (*Responder, error) {
	s, err := ParseString(src)
	if err != nil {
		return nil, err
	}
	return Compile(s, logger)
}

// Load parses and compiles the script file at path.
func Load(path string, logger *slog.Logger) (*Responder, error) {
	s, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(s, logger)
}

func compileStep(st *Step) (*step, error) {
	kind, ok := matchKinds[strings.ToLower(st.Match.Kind)]
	if !ok {
		return nil, fmt.Errorf("unknown match %q", st.Match.Kind)
	}
	out := &step{
		line:   st.Pos.Line,
		source: fmt.Sprintf("on %s => %s", st.Match.Kind, st.Reply.Kind),
		kind:   kind,
		cu:     -1,
		dev:    -1,
		count:  1,
	}

	if st.Match.CU != nil {
		if kind != matchPoll && kind != matchSelect {
			return nil, fmt.Errorf("%s takes no address", st.Match.Kind)
		}
		var err error
		if out.cu, err = bsc.ParseAddress(*st.Match.CU); err != nil {
			return nil, err
		}
		if out.dev, err = bsc.ParseAddress(*st.Match.Dev); err != nil {
			return nil, err
		}
	}

	if st.Reply.Count != nil {
		if *st.Reply.Count < 1 {
			return nil, fmt.Errorf("repeat count must be positive")
		}
		out.count = *st.Reply.Count
	}

	reply, err := buildReply(st.Reply)
	if err != nil {
		return nil, err
	}
	out.reply = reply
	return out, nil
}

func buildReply(r *Reply) ([]byte, error) {
	flags := map[string]bool{}
	for _, f := range r.Flags {
		switch f = strings.ToLower(f); f {
		case "etb", "transparent", "header", "ebcdic":
			flags[f] = true
		default:
			return nil, fmt.Errorf("unknown flag %q", f)
		}
	}

	kind := strings.ToLower(r.Kind)
	if r.Data != nil && kind != "text" && kind != "hex" {
		return nil, fmt.Errorf("%s takes no data", r.Kind)
	}
	if len(flags) > 0 && kind != "text" {
		return nil, fmt.Errorf("%s takes no flags", r.Kind)
	}

	switch kind {
	case "none", "timeout":
		return nil, nil
	case "eot":
		return onLine(bsc.MakeFrameEot()), nil
	case "ack0":
		return onLine(bsc.MakeFrameAck(0)), nil
	case "ack1":
		return onLine(bsc.MakeFrameAck(1)), nil
	case "nak":
		return onLine(bsc.MakeFrameNak()), nil
	case "wack":
		return onLine(bsc.NewFrame(bsc.SYN, bsc.DLE, bsc.WACK)), nil
	case "rvi":
		return onLine(bsc.NewFrame(bsc.SYN, bsc.DLE, bsc.RVI)), nil
	case "enq":
		return onLine(bsc.NewFrame(bsc.SYN, bsc.ENQ)), nil
	case "hex":
		if r.Data == nil {
			return nil, fmt.Errorf("hex needs a string of hex bytes")
		}
		raw, err := hex.DecodeString(strings.Join(strings.Fields(*r.Data), ""))
		if err != nil {
			return nil, fmt.Errorf("hex data: %w", err)
		}
		return raw, nil
	case "text":
		if r.Data == nil {
			return nil, fmt.Errorf("text needs a string")
		}
		return buildText(*r.Data, flags)
	}
	return nil, fmt.Errorf("unknown reply %q", r.Kind)
}

func buildText(s string, flags map[string]bool) ([]byte, error) {
	data := []byte(s)
	if flags["ebcdic"] {
		enc, err := charmap.CodePage037.NewEncoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("ebcdic text: %w", err)
		}
		data = enc
	}
	last := !flags["etb"]

	if !flags["header"] {
		return onLine(bsc.MakeFrameCommand(data, last, flags["transparent"])), nil
	}
	if flags["transparent"] {
		return nil, fmt.Errorf("header blocks are sent in normal mode")
	}
	if bsc.HasControlChar(data) {
		return nil, fmt.Errorf("header text contains control characters")
	}

	f := bsc.NewFrame(bsc.SYN, bsc.SOH)
	f.Append(headerBytes...)
	f.Append(bsc.STX)
	f.Append(data...)
	if last {
		f.Append(bsc.ETX)
	} else {
		f.Append(bsc.ETB)
	}
	if err := f.AddBcc(); err != nil {
		return nil, err
	}
	return onLine(f), nil
}

// onLine surrounds a frame with the pads a terminal puts on the wire.
func onLine(f *bsc.Frame) []byte {
	raw := make([]byte, 0, f.Len()+4)
	raw = append(raw, bsc.LeadingPad, bsc.SYN)
	raw = append(raw, f.Bytes()...)
	return append(raw, bsc.TrailingPad, bsc.TrailingPad)
}

// Respond answers one transmitted frame. Frames that do not match the
// current step are not answered; an unmatched EOT is expected between
// cycles and is not recorded as a mismatch. Once the script is exhausted
// polls are answered with EOT.
func (r *Responder) Respond(frame []byte) ([]byte, bool) {
	f := bsc.NewFrame(frame...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pos >= len(r.steps) {
		if f.Type() == bsc.FramePollSelect {
			if _, ok := bsc.AddressOfPollChar(f.Bytes()[1]); ok {
				return onLine(bsc.MakeFrameEot()), true
			}
		}
		return nil, false
	}

	st := r.steps[r.pos]
	if !st.matches(f) {
		if f.Type() != bsc.FrameEOT {
			msg := fmt.Sprintf("line %d: %s did not match %s frame % X", st.line, st.source, f.Type(), frame)
			r.mismatches = append(r.mismatches, msg)
			r.logger.Warn("script mismatch", "step", st.line, "frame_type", f.Type())
		}
		return nil, false
	}

	r.used++
	if r.used >= st.count {
		r.pos++
		r.used = 0
	}
	r.logger.Debug("script step", "step", st.line, "reply_bytes", len(st.reply))
	if st.reply == nil {
		return nil, false
	}
	return append([]byte(nil), st.reply...), true
}

// Done reports whether every step has been consumed.
func (r *Responder) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos >= len(r.steps)
}

// Remaining returns the number of steps not yet fully consumed.
func (r *Responder) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps) - r.pos
}

// Mismatches returns a description of every frame that did not match the
// step it arrived at.
func (r *Responder) Mismatches() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.mismatches...)
}

package tn3270

import (
	"fmt"
	"sync"
)

// OptionState is the local view of one Telnet option.
type OptionState int8

const (
	StateUnknown  OptionState = -1
	StateDisabled OptionState = 0
	StateEnabled  OptionState = 1
)

func (s OptionState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	}
	return fmt.Sprintf("OptionState(%d)", s)
}

// Option tracks the current and desired state of one option.
type Option struct {
	Code    byte
	Name    string
	State   OptionState
	Desired OptionState
}

func (o *Option) reply(cmd byte) []byte {
	return []byte{IAC, cmd, o.Code}
}

// receive applies one negotiation command and returns the reply, or nil.
// A remote WONT or DONT is always honoured, even against an enabled desire.
func (o *Option) receive(cmd byte) []byte {
	switch cmd {
	case WILL:
		if o.Desired == StateDisabled {
			o.State = StateDisabled
			return o.reply(DONT)
		}
		o.State = StateEnabled
		return o.reply(DO)

	case WONT:
		if o.Desired == StateDisabled {
			silent := o.State == StateDisabled
			o.State = StateDisabled
			if silent {
				return nil
			}
			return o.reply(DONT)
		}
		o.State = StateDisabled
		o.Desired = StateDisabled
		return o.reply(DONT)

	case DO:
		if o.Desired == StateDisabled {
			o.State = StateDisabled
			return o.reply(WONT)
		}
		if o.State == StateEnabled {
			return nil
		}
		o.State = StateEnabled
		return o.reply(WILL)

	case DONT:
		if o.Desired == StateDisabled {
			silent := o.State == StateDisabled
			o.State = StateDisabled
			if silent {
				return nil
			}
			return o.reply(WONT)
		}
		o.State = StateDisabled
		o.Desired = StateDisabled
		return o.reply(WONT)
	}
	return nil
}

// OptionSet holds the negotiation state of a connection. Options that the
// server raises without being registered are added disabled.
type OptionSet struct {
	mu      sync.Mutex
	options map[byte]*Option
}

// NewOptionSet returns a set with BINARY, EOR and TERMINAL-TYPE desired.
func NewOptionSet() *OptionSet {
	s := &OptionSet{options: make(map[byte]*Option)}
	for _, code := range []byte{OptBinary, OptEOR, OptTType} {
		s.add(code, StateEnabled)
	}
	return s
}

func (s *OptionSet) add(code byte, desired OptionState) *Option {
	name, ok := OptionNames[code]
	if !ok {
		name = fmt.Sprintf("UNSUPPORTED_%d", code)
	}
	o := &Option{Code: code, Name: name, State: StateUnknown, Desired: desired}
	s.options[code] = o
	return o
}

func (s *OptionSet) lookup(code byte) *Option {
	if o, ok := s.options[code]; ok {
		return o
	}
	return s.add(code, StateDisabled)
}

// Receive applies a WILL, WONT, DO or DONT for code and returns the bytes
// to send back, or nil.
func (s *OptionSet) Receive(cmd, code byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(code).receive(cmd)
}

// SetDesired changes the desired state of code. It returns WILL or WONT
// when the desire changed and nil otherwise.
func (s *OptionSet) SetDesired(code byte, desired OptionState) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.lookup(code)
	if o.Desired == desired {
		return nil
	}
	o.Desired = desired
	if desired == StateEnabled {
		return o.reply(WILL)
	}
	return o.reply(WONT)
}

// Get returns a copy of the option state for code.
func (s *OptionSet) Get(code byte) (Option, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.options[code]
	if !ok {
		return Option{}, false
	}
	return *o, true
}

// Enabled reports whether code has been negotiated on.
func (s *OptionSet) Enabled(code byte) bool {
	o, ok := s.Get(code)
	return ok && o.State == StateEnabled
}

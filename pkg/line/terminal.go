package line

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrQueueFull = errors.New("line: terminal queue full")
	ErrNoSession = errors.New("line: no host session attached")
)

// Session is the host side of a terminal. Completed poll records are handed
// to SendRecord.
type Session interface {
	SendRecord(data []byte) error
}

// BscTerminal is one addressed device on the multidrop line. Host sessions
// enqueue outbound records; the line drains them one per round.
type BscTerminal struct {
	ControlUnit int
	Address     int
	Type        string

	mu      sync.Mutex
	limit   int
	queue   [][]byte
	session Session
}

// NewTerminal creates a terminal. limit bounds the outbound queue, zero
// means unbounded.
func NewTerminal(controlUnit, address int, typ string, limit int) *BscTerminal {
	return &BscTerminal{
		ControlUnit: controlUnit,
		Address:     address,
		Type:        typ,
		limit:       limit,
	}
}

func (t *BscTerminal) String() string {
	return fmt.Sprintf("terminal %02X/%02X", t.ControlUnit, t.Address)
}

// Enqueue appends a copy of data to the outbound queue. It never blocks.
func (t *BscTerminal) Enqueue(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit > 0 && len(t.queue) >= t.limit {
		return ErrQueueFull
	}
	t.queue = append(t.queue, append([]byte(nil), data...))
	return nil
}

// DrainOne pops the oldest queued record.
func (t *BscTerminal) DrainOne() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil, false
	}
	data := t.queue[0]
	t.queue[0] = nil
	t.queue = t.queue[1:]
	return data, true
}

// Requeue puts data back at the front of the queue. The limit is not
// applied since the record was already accepted once.
func (t *BscTerminal) Requeue(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append([][]byte{data}, t.queue...)
}

// Pending returns the number of queued records.
func (t *BscTerminal) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Attach sets the host session that receives poll records.
func (t *BscTerminal) Attach(s Session) {
	t.mu.Lock()
	t.session = s
	t.mu.Unlock()
}

// Detach removes the host session.
func (t *BscTerminal) Detach() {
	t.Attach(nil)
}

// Deliver forwards a completed poll record to the attached session.
func (t *BscTerminal) Deliver(record []byte) error {
	t.mu.Lock()
	s := t.session
	t.mu.Unlock()
	if s == nil {
		return ErrNoSession
	}
	if err := s.SendRecord(record); err != nil {
		return fmt.Errorf("%s: deliver record: %w", t, err)
	}
	return nil
}

package dongle

import (
	"io"
	"sync"
)

// FrameHook answers a transmitted frame with the raw bytes the line would
// return. ok=false leaves the line silent. Hooks run with the simulator
// locked and must not call back into it.
type FrameHook func(frame []byte) (reply []byte, ok bool)

// SimTransport is an in-memory dongle. It decodes the command stream, records
// every transmitted frame and answers through OnFrame.
type SimTransport struct {
	OnFrame  FrameHook
	Firmware string
	// ChunkSize caps the bytes returned per Read, zero means unlimited.
	ChunkSize int

	mu       sync.Mutex
	in       Reassembler
	pending  []byte
	frames   [][]byte
	commands []Record
	resets   int
	closed   bool

	notify   chan struct{}
	closedCh chan struct{}
}

// NewSimTransport constructs a simulator answering frames with hook.
func NewSimTransport(hook FrameHook) *SimTransport {
	return &SimTransport{
		OnFrame:  hook,
		Firmware: "bsc-dongle simulator",
		notify:   make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

func (s *SimTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	for _, rec := range s.in.Feed(p) {
		s.commands = append(s.commands, rec)
		switch rec.Code {
		case CmdTransmit:
			s.frames = append(s.frames, append([]byte(nil), rec.Payload...))
			if s.OnFrame == nil {
				continue
			}
			if reply, ok := s.OnFrame(rec.Payload); ok {
				s.pushLocked(RspFrame, reply)
			}
		case CmdInfo:
			s.pushLocked(RspInfo, []byte(s.Firmware))
		case CmdReset:
			s.resets++
		default:
			s.pushLocked(RspError, []byte("unknown command "+CodeName(rec.Code)))
		}
	}
	return len(p), nil
}

func (s *SimTransport) Read(p []byte) (int, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			want := len(p)
			if s.ChunkSize > 0 && want > s.ChunkSize {
				want = s.ChunkSize
			}
			n := copy(p[:want], s.pending)
			s.pending = s.pending[n:]
			if len(s.pending) > 0 {
				s.signal()
			}
			s.mu.Unlock()
			return n, nil
		}
		if s.closed {
			s.mu.Unlock()
			return 0, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.closedCh:
		}
	}
}

func (s *SimTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closedCh)
	}
	return nil
}

// Inject queues an unsolicited record for the host.
func (s *SimTransport) Inject(code byte, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushLocked(code, payload)
}

// Frames returns copies of every frame transmitted so far.
func (s *SimTransport) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	for i, f := range s.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Commands returns every record the host has written.
func (s *SimTransport) Commands() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.commands...)
}

// Resets reports how many CmdReset records were received.
func (s *SimTransport) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *SimTransport) pushLocked(code byte, payload []byte) {
	rec, err := EncodeCommand(code, payload)
	if err != nil {
		rec, _ = EncodeCommand(RspError, []byte(err.Error()))
	}
	s.pending = append(s.pending, rec...)
	s.signal()
}

func (s *SimTransport) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Package line drives a BSC multidrop line: poll and select cycles for every
// attached terminal, serialized over one dongle.
package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/bsc"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/dongle"
)

const (
	DefaultResponseTimeout = 3 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultMaxBlockSize    = 252
	DefaultMaxAttempts     = 4
)

// Config holds the link parameters. Zero fields take the defaults.
type Config struct {
	ControllerAddress int
	ResponseTimeout   time.Duration
	PollInterval      time.Duration
	// MaxBlockSize bounds the logical payload per block, before DLE doubling.
	MaxBlockSize int
	MaxAttempts  int
	// QueueLimit bounds each terminal's outbound queue, zero is unbounded.
	QueueLimit int
}

func (c Config) withDefaults() Config {
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxBlockSize <= 0 {
		c.MaxBlockSize = DefaultMaxBlockSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Port is what the line needs from the dongle.
type Port interface {
	SendCommand(code byte, payload []byte) error
	AwaitResponse(ctx context.Context, timeout time.Duration) (dongle.Record, error)
	Flush() int
}

// Stats counts line activity.
type Stats struct {
	Rounds           uint64
	FramesSent       uint64
	FramesReceived   uint64
	Timeouts         uint64
	Naks             uint64
	BadFrames        uint64
	BccErrors        uint64
	RecordsDelivered uint64
	PayloadsSent     uint64
	Requeued         uint64
	Aborted          uint64
}

// BisyncLine is the link state machine. All exchanges run on the goroutine
// calling Run (or the cycle methods directly); only Stop, Stats, State and
// the terminal queues are safe to touch from elsewhere.
type BisyncLine struct {
	port   Port
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	terminals []*BscTerminal
	state     ExchangeState
	stats     Stats

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a line over port. A nil logger uses slog.Default.
func New(port Port, cfg Config, logger *slog.Logger) *BisyncLine {
	if logger == nil {
		logger = slog.Default()
	}
	return &BisyncLine{
		port:   port,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "line"),
		stop:   make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (l *BisyncLine) Config() Config {
	return l.cfg
}

// AddTerminal registers a terminal at address on the configured controller.
// Terminals are polled in registration order.
func (l *BisyncLine) AddTerminal(address int, typ string) (*BscTerminal, error) {
	if _, err := bsc.PollChar(address); err != nil {
		return nil, fmt.Errorf("terminal address: %w", err)
	}
	if _, err := bsc.SelectChar(l.cfg.ControllerAddress); err != nil {
		return nil, fmt.Errorf("controller address: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.terminals {
		if t.Address == address {
			return nil, fmt.Errorf("terminal address 0x%02X already registered", address)
		}
	}
	t := NewTerminal(l.cfg.ControllerAddress, address, typ, l.cfg.QueueLimit)
	l.terminals = append(l.terminals, t)
	return t, nil
}

// Terminals returns the registered terminals in order.
func (l *BisyncLine) Terminals() []*BscTerminal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*BscTerminal(nil), l.terminals...)
}

// State returns the state of the current or last exchange.
func (l *BisyncLine) State() ExchangeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *BisyncLine) setState(s ExchangeState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (l *BisyncLine) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *BisyncLine) count(fn func(s *Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}

// Transmit puts f on the line without waiting for an answer.
func (l *BisyncLine) Transmit(f *bsc.Frame) error {
	if err := l.port.SendCommand(dongle.CmdTransmit, f.Bytes()); err != nil {
		return err
	}
	l.count(func(s *Stats) { s.FramesSent++ })
	return nil
}

// SendEot resets the line. No answer is expected.
func (l *BisyncLine) SendEot() error {
	l.setState(StateIdle)
	if err := l.Transmit(bsc.MakeFrameEot()); err != nil {
		l.logger.Warn("send EOT failed", "error", err)
		return err
	}
	return nil
}

// Exchange transmits f and waits for the answer. Failures never surface as
// errors: a timeout yields a ResponseTimeout frame and any transport or
// dongle failure a ResponseOtherError frame.
func (l *BisyncLine) Exchange(ctx context.Context, f *bsc.Frame) *bsc.Frame {
	l.port.Flush()
	l.setState(StateSent)
	if err := l.Transmit(f); err != nil {
		l.logger.Warn("transmit failed", "error", err)
		l.setState(StateIdle)
		return bsc.NewResponse(bsc.ResponseOtherError)
	}
	l.setState(StateAwaitingResponse)

	deadline := time.Now().Add(l.cfg.ResponseTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return l.timedOut()
		}
		rec, err := l.port.AwaitResponse(ctx, remaining)
		switch {
		case dongle.IsTimeout(err):
			return l.timedOut()
		case err != nil:
			l.logger.Warn("await response failed", "error", err)
			l.setState(StateIdle)
			return bsc.NewResponse(bsc.ResponseOtherError)
		}
		if rec.Code != dongle.RspFrame {
			l.logger.Debug("ignoring dongle record", "code", dongle.CodeName(rec.Code))
			continue
		}

		resp := bsc.CreateFrame(rec.Payload)
		typ := resp.Type()
		l.count(func(s *Stats) {
			s.FramesReceived++
			if typ == bsc.FrameBad {
				s.BadFrames++
			}
		})
		l.setState(StateForResponse(typ))
		return resp
	}
}

func (l *BisyncLine) timedOut() *bsc.Frame {
	l.count(func(s *Stats) { s.Timeouts++ })
	l.setState(StateTimedOut)
	return bsc.NewResponse(bsc.ResponseTimeout)
}

// PollTerminal runs one poll cycle and delivers any accumulated text to the
// terminal's session. Header blocks are acknowledged but not accumulated.
// Data gathered before a timeout or an unexpected frame is discarded.
func (l *BisyncLine) PollTerminal(ctx context.Context, t *BscTerminal) Outcome {
	log := l.logger.With("terminal", t.Address)

	poll, err := bsc.MakeFramePollAddress(t.ControlUnit, t.Address)
	if err != nil {
		log.Error("cannot build poll frame", "error", err)
		return OutcomeAborted
	}
	if err := l.SendEot(); err != nil {
		return OutcomeAborted
	}

	var record []byte
	ack := 1
	naks := 0
	resp := l.Exchange(ctx, poll)
	for {
		typ := resp.ResponseType()
		switch {
		case typ == bsc.FrameEOT:
			if len(record) == 0 {
				return OutcomeNoData
			}
			l.deliver(t, record)
			return OutcomeDelivered

		case typ == bsc.ResponseTimeout:
			if len(record) > 0 {
				log.Info("poll timed out, discarding partial record", "bytes", len(record))
			}
			return OutcomeAborted

		case typ.IsText():
			if !resp.CheckBcc() {
				naks++
				l.count(func(s *Stats) { s.BccErrors++ })
				log.Debug("block check failed", "frame", resp, "attempt", naks)
				if naks >= l.cfg.MaxAttempts {
					l.abort(log, "too many damaged blocks", record)
					return OutcomeAborted
				}
				resp = l.Exchange(ctx, bsc.MakeFrameNak())
				continue
			}
			naks = 0
			if !resp.HeaderBeforeText() {
				record = append(record, resp.TextBytes()...)
			}
			resp = l.Exchange(ctx, bsc.MakeFrameAck(ack))
			ack ^= 1

		default:
			l.abort(log, "unexpected response to poll: "+typ.String(), record)
			return OutcomeAborted
		}
	}
}

func (l *BisyncLine) abort(log *slog.Logger, reason string, discarded []byte) {
	l.count(func(s *Stats) { s.Aborted++ })
	log.Info("cycle aborted", "reason", reason, "discarded", len(discarded))
}

func (l *BisyncLine) deliver(t *BscTerminal, record []byte) {
	if err := t.Deliver(record); err != nil {
		if errors.Is(err, ErrNoSession) {
			l.logger.Warn("dropping record, terminal has no session", "terminal", t.Address, "bytes", len(record))
		} else {
			l.logger.Error("record delivery failed", "terminal", t.Address, "error", err)
		}
		return
	}
	l.count(func(s *Stats) { s.RecordsDelivered++ })
}

// SendToTerminal pops one queued payload and sends it in transparent blocks.
// A payload refused at select goes back to the front of the queue. Once a
// block has been sent, any failure drops the rest of the payload.
func (l *BisyncLine) SendToTerminal(ctx context.Context, t *BscTerminal) Outcome {
	log := l.logger.With("terminal", t.Address)

	payload, ok := t.DrainOne()
	if !ok {
		return OutcomeIdle
	}

	sel, err := bsc.MakeFrameSelectAddress(t.ControlUnit, t.Address)
	if err != nil {
		log.Error("cannot build select frame", "error", err)
		return OutcomeAborted
	}
	if err := l.SendEot(); err != nil {
		l.requeue(t, payload)
		return OutcomeUnavailable
	}

	resp := l.Exchange(ctx, sel)
	switch typ := resp.ResponseType(); typ {
	case bsc.FrameACK:
	case bsc.FrameWACK:
		l.requeue(t, payload)
		return OutcomeBusy
	case bsc.FrameRVI:
		l.requeue(t, payload)
		return OutcomePendingStatus
	case bsc.ResponseTimeout:
		l.requeue(t, payload)
		return OutcomeUnavailable
	default:
		log.Info("unexpected response to select", "type", typ)
		l.requeue(t, payload)
		return OutcomeRejected
	}

	blocks := Chunk(payload, l.cfg.MaxBlockSize)
	for i, block := range blocks {
		frame := bsc.MakeFrameCommand(block, i == len(blocks)-1, true)
		if !l.sendBlock(ctx, log, frame) {
			l.abort(log, fmt.Sprintf("block %d of %d not acknowledged", i+1, len(blocks)), payload)
			return OutcomeAborted
		}
	}

	if err := l.SendEot(); err != nil {
		return OutcomeAborted
	}
	l.count(func(s *Stats) { s.PayloadsSent++ })
	return OutcomeSent
}

// sendBlock makes up to MaxAttempts attempts. NAK and ENQ answers resend
// the same block and count as attempts.
func (l *BisyncLine) sendBlock(ctx context.Context, log *slog.Logger, frame *bsc.Frame) bool {
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		resp := l.Exchange(ctx, frame)
		switch typ := resp.ResponseType(); typ {
		case bsc.FrameACK:
			return true
		case bsc.FrameNAK, bsc.FrameENQ:
			l.count(func(s *Stats) { s.Naks++ })
			log.Debug("block rejected, resending", "type", typ, "attempt", attempt)
		default:
			log.Debug("block failed", "type", typ, "attempt", attempt)
			return false
		}
	}
	return false
}

func (l *BisyncLine) requeue(t *BscTerminal, payload []byte) {
	t.Requeue(payload)
	l.count(func(s *Stats) { s.Requeued++ })
}

// Chunk splits payload into blocks of at most size logical bytes. An empty
// payload yields one empty block and a size below 1 is treated as 1.
func Chunk(payload []byte, size int) [][]byte {
	if size < 1 {
		size = 1
	}
	if len(payload) == 0 {
		return [][]byte{nil}
	}
	blocks := make([][]byte, 0, (len(payload)+size-1)/size)
	for len(payload) > size {
		blocks = append(blocks, payload[:size])
		payload = payload[size:]
	}
	return append(blocks, payload)
}

// RunRound polls every terminal, then makes one send attempt per terminal.
// Stop and ctx are checked between terminals.
func (l *BisyncLine) RunRound(ctx context.Context) {
	terminals := l.Terminals()
	for _, t := range terminals {
		if l.halted(ctx) {
			return
		}
		outcome := l.PollTerminal(ctx, t)
		l.logger.Debug("poll", "terminal", t.Address, "outcome", outcome)
	}
	for _, t := range terminals {
		if l.halted(ctx) {
			return
		}
		outcome := l.SendToTerminal(ctx, t)
		if outcome != OutcomeIdle {
			l.logger.Debug("send", "terminal", t.Address, "outcome", outcome, "pending", t.Pending())
		}
	}
	l.count(func(s *Stats) { s.Rounds++ })
}

// Run repeats rounds until Stop is called or ctx ends. An in-flight
// exchange completes before the stop is honoured. Queued data is abandoned.
func (l *BisyncLine) Run(ctx context.Context) error {
	l.logger.Info("line running",
		"controller", l.cfg.ControllerAddress,
		"terminals", len(l.Terminals()),
		"response_timeout", l.cfg.ResponseTimeout)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			l.logger.Info("line stopped")
			return nil
		case <-timer.C:
		}

		l.RunRound(ctx)
		timer.Reset(l.cfg.PollInterval)
	}
}

// Stop asks Run to return.
func (l *BisyncLine) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *BisyncLine) halted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

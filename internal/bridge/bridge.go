// Package bridge connects the terminals of one BSC line to a TN3270 host:
// every configured terminal gets its own host session, records polled from
// the terminal go to the host and host records are queued for the next
// select.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenTraceLab/OpenTraceBSC/internal/config"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/dongle"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/hexdump"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/line"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/script"
	"github.com/OpenTraceLab/OpenTraceBSC/pkg/tn3270"
)

// DefaultRedialDelay is the pause before a dropped host session is redialed.
const DefaultRedialDelay = 5 * time.Second

// DialFunc opens a host session for one terminal.
type DialFunc func(ctx context.Context, addr, terminalType string, logger *slog.Logger) (*tn3270.Client, error)

// Option customizes a Bridge.
type Option func(*Bridge)

// WithTransport uses t instead of opening the configured one.
func WithTransport(t dongle.Transport) Option {
	return func(b *Bridge) { b.transport = t }
}

// WithDialer replaces tn3270.Dial.
func WithDialer(dial DialFunc) Option {
	return func(b *Bridge) { b.dial = dial }
}

// WithRedialDelay sets the pause before redialing a dropped host session.
func WithRedialDelay(d time.Duration) Option {
	return func(b *Bridge) { b.redialDelay = d }
}

// Bridge owns the dongle, the line and the host sessions.
type Bridge struct {
	cfg    *config.Config
	logger *slog.Logger

	transport   dongle.Transport
	dial        DialFunc
	redialDelay time.Duration

	dongle    *dongle.Dongle
	line      *line.BisyncLine
	responder *script.Responder

	mu       sync.Mutex
	sessions map[int]*tn3270.Client
}

// New opens the transport and registers the configured terminals. Only a
// transport that cannot be opened is fatal; host sessions are dialed by Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		cfg:         cfg,
		logger:      logger,
		dial:        tn3270.Dial,
		redialDelay: DefaultRedialDelay,
		sessions:    make(map[int]*tn3270.Client),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.transport == nil {
		t, err := b.openTransport()
		if err != nil {
			return nil, err
		}
		b.transport = t
	}

	b.dongle = dongle.New(b.transport, logger)
	b.line = line.New(b.dongle, cfg.LineSettings(), logger)

	for _, tc := range cfg.Line.Terminals {
		if _, err := b.line.AddTerminal(int(tc.Address), cfg.TerminalType(tc)); err != nil {
			b.dongle.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Bridge) openTransport() (dongle.Transport, error) {
	kind, err := dongle.ParseInterfaceKind(b.cfg.Line.Transport)
	if err != nil {
		return nil, err
	}

	opts := dongle.OpenOptions{
		Kind:      kind,
		Path:      b.cfg.Line.SerialDevice,
		BaudRate:  b.cfg.Line.BaudRate,
		VendorID:  uint16(b.cfg.Line.USBVendorID),
		ProductID: uint16(b.cfg.Line.USBProductID),
	}
	if kind == dongle.InterfaceKindSim && b.cfg.Line.Script != "" {
		r, err := script.Load(b.cfg.Line.Script, b.logger)
		if err != nil {
			return nil, err
		}
		b.responder = r
		opts.Sim = dongle.NewSimTransport(r.Respond)
	}

	t, err := dongle.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s transport: %w", kind, err)
	}
	return t, nil
}

// Line returns the link state machine.
func (b *Bridge) Line() *line.BisyncLine {
	return b.line
}

// Dongle returns the dongle client.
func (b *Bridge) Dongle() *dongle.Dongle {
	return b.dongle
}

// Responder returns the scripted terminal driving a simulator transport, or
// nil.
func (b *Bridge) Responder() *script.Responder {
	return b.responder
}

// Session returns the live host session of the terminal at address.
func (b *Bridge) Session(address int) (*tn3270.Client, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.sessions[address]
	return c, ok
}

// Run dials a host session per terminal and drives the line until ctx ends
// or Stop is called. The dongle is closed on return.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.dongle.Close()

	infoCtx, cancel := context.WithTimeout(ctx, dongle.DefaultTimeout)
	fw, err := b.dongle.Info(infoCtx)
	cancel()
	if err != nil {
		b.logger.Warn("dongle did not identify itself", "error", err)
	} else {
		b.logger.Info("dongle ready", "firmware", fw)
	}

	ctx, cancelSessions := context.WithCancel(ctx)
	terminals := b.line.Terminals()

	// Sessions are dialed before the first poll so early records have
	// somewhere to go.
	clients := make([]*tn3270.Client, len(terminals))
	for i, t := range terminals {
		clients[i] = b.connect(ctx, t)
	}

	var wg sync.WaitGroup
	for i, t := range terminals {
		wg.Add(1)
		go func(t *line.BscTerminal, client *tn3270.Client) {
			defer wg.Done()
			b.serveTerminal(ctx, t, client)
		}(t, clients[i])
	}

	b.logger.Info("bridge started", "terminals", len(terminals), "host", b.cfg.HostAddress())
	err = b.line.Run(ctx)

	cancelSessions()
	wg.Wait()

	st := b.line.Stats()
	b.logger.Info("line stopped",
		"rounds", st.Rounds,
		"delivered", st.RecordsDelivered,
		"sent", st.PayloadsSent,
		"timeouts", st.Timeouts,
		"aborted", st.Aborted)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop ends Run after the current round.
func (b *Bridge) Stop() {
	b.line.Stop()
}

// connect dials the host for t and attaches the session. It returns nil
// when the dial fails.
func (b *Bridge) connect(ctx context.Context, t *line.BscTerminal) *tn3270.Client {
	log := b.logger.With("terminal", t.String())
	addr := b.cfg.HostAddress()

	client, err := b.dial(ctx, addr, t.Type, log)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("host connect failed", "host", addr, "error", err)
		}
		return nil
	}
	log.Info("host session open", "host", addr, "type", t.Type)
	b.attach(t, client, log)
	return client
}

// serveTerminal runs the host session of t, redialing after a drop.
func (b *Bridge) serveTerminal(ctx context.Context, t *line.BscTerminal, client *tn3270.Client) {
	log := b.logger.With("terminal", t.String())

	for {
		if client == nil {
			client = b.connect(ctx, t)
		}
		if client != nil {
			err := client.Run(ctx)

			b.detach(t)
			client.Close()
			client = nil
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Warn("host session failed", "error", err)
			} else {
				log.Info("host closed the session")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.redialDelay):
		}
	}
}

func (b *Bridge) attach(t *line.BscTerminal, client *tn3270.Client, log *slog.Logger) {
	client.OnRecord(func(record []byte) {
		hexdump.Log(log, slog.LevelDebug, "host record", record)
		if err := t.Enqueue(record); err != nil {
			log.Warn("dropping host record", "bytes", len(record), "error", err)
		}
	})
	t.Attach(client)

	b.mu.Lock()
	b.sessions[t.Address] = client
	b.mu.Unlock()
}

func (b *Bridge) detach(t *line.BscTerminal) {
	t.Detach()
	b.mu.Lock()
	delete(b.sessions, t.Address)
	b.mu.Unlock()
}

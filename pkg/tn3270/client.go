// Package tn3270 is a minimal TN3270 client: it negotiates BINARY, EOR and
// TERMINAL-TYPE with a host and exchanges EOR-delimited 3270 records. The
// records themselves are passed through uninterpreted.
package tn3270

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/hexdump"
)

// RecordFunc receives each complete record from the host.
type RecordFunc func(record []byte)

// Client is one TN3270 session.
type Client struct {
	conn         net.Conn
	terminalType string
	logger       *slog.Logger

	options *OptionSet
	parser  *Parser

	writeMu sync.Mutex
	writer  *Writer

	mu       sync.Mutex
	onRecord RecordFunc
	closed   bool
}

// Dial connects to a TN3270 host.
func Dial(ctx context.Context, addr, terminalType string, logger *slog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	c := NewClient(conn, terminalType, logger)
	c.logger.Info("connected to TN3270 host", "addr", addr)
	return c, nil
}

// NewClient wraps an established connection. An empty terminal type
// selects DefaultTerminalType.
func NewClient(conn net.Conn, terminalType string, logger *slog.Logger) *Client {
	if terminalType == "" {
		terminalType = DefaultTerminalType
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		conn:         conn,
		terminalType: terminalType,
		logger:       logger.With("component", "tn3270", "ttype", terminalType),
		options:      NewOptionSet(),
		writer:       NewWriter(conn),
	}
	c.parser = NewParser(c)
	return c
}

// TerminalType returns the type reported to the host.
func (c *Client) TerminalType() string {
	return c.terminalType
}

// Options exposes the negotiation state.
func (c *Client) Options() *OptionSet {
	return c.options
}

// OnRecord registers the receiver of host records.
func (c *Client) OnRecord(fn RecordFunc) {
	c.mu.Lock()
	c.onRecord = fn
	c.mu.Unlock()
}

// Run reads from the host until the connection closes or ctx ends. A
// connection closed by Close returns nil.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			hexdump.Log(c.logger, slog.LevelDebug, "telnet <", buf[:n])
			c.parser.Feed(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.isClosed() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("tn3270 read: %w", err)
		}
	}
}

// SendRecord sends one record to the host. It satisfies line.Session.
func (c *Client) SendRecord(data []byte) error {
	hexdump.Log(c.logger, slog.LevelDebug, "telnet >", data)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.writer.WriteRecord(data); err != nil {
		return fmt.Errorf("tn3270 write: %w", err)
	}
	return nil
}

// SetDesired changes the local desire for an option and negotiates it.
func (c *Client) SetDesired(option byte, state OptionState) error {
	if reply := c.options.SetDesired(option, state); reply != nil {
		return c.writeRaw(reply)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) writeRaw(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.WriteRaw(p)
}

// HandleCommand answers option negotiation.
func (c *Client) HandleCommand(cmd, option byte) {
	c.logger.Debug("telnet command", "cmd", CommandNames[cmd], "opt", optionName(option))
	switch cmd {
	case WILL, WONT, DO, DONT:
		if reply := c.options.Receive(cmd, option); reply != nil {
			if err := c.writeRaw(reply); err != nil {
				c.logger.Warn("negotiation reply failed", "error", err)
			}
		}
	}
}

// HandleSubNegotiation answers TERMINAL-TYPE SEND.
func (c *Client) HandleSubNegotiation(option byte, data []byte) {
	if option != OptTType || len(data) == 0 || data[0] != SEND {
		c.logger.Debug("ignoring sub negotiation", "opt", optionName(option))
		return
	}
	c.logger.Debug("sending terminal type")
	reply := append([]byte{IS}, c.terminalType...)
	c.writeMu.Lock()
	err := c.writer.WriteSubNegotiation(OptTType, reply)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("terminal type reply failed", "error", err)
	}
}

// HandleRecord forwards a completed record.
func (c *Client) HandleRecord(record []byte) {
	c.mu.Lock()
	fn := c.onRecord
	c.mu.Unlock()
	if fn == nil {
		c.logger.Warn("dropping host record, no receiver", "bytes", len(record))
		return
	}
	fn(record)
}

func optionName(code byte) string {
	if name, ok := OptionNames[code]; ok {
		return name
	}
	return fmt.Sprintf("UNSUPPORTED_%d", code)
}

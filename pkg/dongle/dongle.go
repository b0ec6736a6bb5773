// Package dongle drives the USB/serial adapter that puts BSC frames on the
// synchronous line. Commands and responses travel as length-prefixed records.
package dongle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/hexdump"
)

const recordBuffer = 64

// Dongle multiplexes a Transport into outbound commands and a stream of
// inbound records. A background goroutine reads and reassembles the stream.
type Dongle struct {
	transport Transport
	logger    *slog.Logger

	writeMu sync.Mutex
	records chan Record

	done      chan struct{}
	closeOnce sync.Once

	dead    chan struct{}
	deadErr error
}

// New starts reading from t. A nil logger uses slog.Default.
func New(t Transport, logger *slog.Logger) *Dongle {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dongle{
		transport: t,
		logger:    logger.With("component", "dongle"),
		records:   make(chan Record, recordBuffer),
		done:      make(chan struct{}),
		dead:      make(chan struct{}),
	}
	go d.readLoop()
	return d
}

func (d *Dongle) readLoop() {
	var ra Reassembler
	buf := make([]byte, readChunk)
	for {
		n, err := d.transport.Read(buf)
		if n > 0 {
			for _, rec := range ra.Feed(buf[:n]) {
				select {
				case d.records <- rec:
				case <-d.done:
					return
				}
			}
		}
		if err != nil {
			select {
			case <-d.done:
				d.deadErr = ErrClosed
			default:
				d.logger.Error("dongle read failed", "error", err)
				d.deadErr = fmt.Errorf("dongle read: %w", err)
			}
			close(d.dead)
			return
		}
		if n == 0 {
			select {
			case <-d.done:
				d.deadErr = ErrClosed
				close(d.dead)
				return
			default:
			}
		}
	}
}

// SendHeader writes a record header announcing length payload bytes.
func (d *Dongle) SendHeader(code byte, length int) error {
	hdr, err := EncodeHeader(code, length)
	if err != nil {
		return err
	}
	return d.write(hdr)
}

// SendBytes writes raw bytes, normally the payload following SendHeader.
func (d *Dongle) SendBytes(data []byte) error {
	return d.write(data)
}

// SendCommand writes a complete record in a single transport write.
func (d *Dongle) SendCommand(code byte, payload []byte) error {
	rec, err := EncodeCommand(code, payload)
	if err != nil {
		return err
	}
	if d.logger.Enabled(context.Background(), slog.LevelDebug) {
		d.logger.Debug("send command", "code", CodeName(code), "len", len(payload))
	}
	return d.write(rec)
}

// Transmit puts frame on the line.
func (d *Dongle) Transmit(frame []byte) error {
	hexdump.Log(d.logger, slog.LevelDebug, "line <", frame)
	return d.SendCommand(CmdTransmit, frame)
}

func (d *Dongle) write(p []byte) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if _, err := d.transport.Write(p); err != nil {
		return fmt.Errorf("dongle write: %w", err)
	}
	return nil
}

// AwaitResponse returns the next inbound record. It fails with ErrTimeout
// when nothing arrives within timeout. RspError records are returned along
// with a *DongleError.
func (d *Dongle) AwaitResponse(ctx context.Context, timeout time.Duration) (Record, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec := <-d.records:
		return d.inspect(rec)
	default:
	}

	select {
	case rec := <-d.records:
		return d.inspect(rec)
	case <-timer.C:
		return Record{}, ErrTimeout
	case <-ctx.Done():
		return Record{}, ctx.Err()
	case <-d.dead:
		return Record{}, d.deadErr
	}
}

func (d *Dongle) inspect(rec Record) (Record, error) {
	switch rec.Code {
	case RspError:
		err := &DongleError{Message: string(rec.Payload)}
		d.logger.Warn("dongle reported error", "message", err.Message)
		return rec, err
	case RspFrame:
		hexdump.Log(d.logger, slog.LevelDebug, "line >", rec.Payload)
	}
	return rec, nil
}

// Flush discards records that arrived but were never awaited.
func (d *Dongle) Flush() int {
	n := 0
	for {
		select {
		case <-d.records:
			n++
		default:
			if n > 0 {
				d.logger.Debug("flushed stale records", "count", n)
			}
			return n
		}
	}
}

// Info asks the firmware for its identification string.
func (d *Dongle) Info(ctx context.Context) (string, error) {
	d.Flush()
	if err := d.SendCommand(CmdInfo, nil); err != nil {
		return "", err
	}
	deadline := time.Now().Add(DefaultTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrTimeout
		}
		rec, err := d.AwaitResponse(ctx, remaining)
		if err != nil {
			return "", err
		}
		if rec.Code == RspInfo {
			return string(rec.Payload), nil
		}
	}
}

// Reset clears the firmware's line receiver and any queued records.
func (d *Dongle) Reset() error {
	if err := d.SendCommand(CmdReset, nil); err != nil {
		return err
	}
	d.Flush()
	return nil
}

// Close stops the reader and closes the transport.
func (d *Dongle) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.transport.Close()
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

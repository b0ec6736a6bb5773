package dongle

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Transport is the byte stream to the dongle. Read may return (0, nil) when
// a poll interval passes with no data.
type Transport interface {
	io.ReadWriteCloser
}

const (
	// DefaultTimeout bounds dongle housekeeping exchanges such as Info.
	DefaultTimeout = 2 * time.Second

	readChunk = 4096
)

var (
	ErrTimeout         = errors.New("dongle: response timeout")
	ErrClosed          = errors.New("dongle: closed")
	ErrPayloadTooLarge = errors.New("dongle: payload too large")
)

// DongleError is an error reported by the dongle firmware in an RspError
// record.
type DongleError struct {
	Message string
}

func (e *DongleError) Error() string {
	return fmt.Sprintf("dongle error: %s", e.Message)
}

// IsTimeout reports whether err is a response timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Package radio defines the boundary to the radio front-end drivers.
package radio

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ftl/rfheatmap/core"
)

// SampleSource provides blocks of IQ samples.
//
// ReadBlock fills buf with at most len(buf) samples and returns their count. A count of zero
// with a nil error means that no data was available within the timeout.
type SampleSource interface {
	ReadBlock(buf core.Block, timeout time.Duration) (int, error)
	Close() error
}

// Transmitter is implemented by sources that also have a transmit path.
type Transmitter interface {
	WriteBlock(samples core.Block, timeout time.Duration) error
}

// Tuner is implemented by sources that can be retuned while running.
type Tuner interface {
	SetCenterFrequency(f core.Frequency) error
}

// Status codes reported by the drivers, following the SoapySDR conventions.
const (
	StatusTimeout      = -1
	StatusStreamError  = -2
	StatusCorruption   = -3
	StatusOverflow     = -4
	StatusNotSupported = -5
	StatusTimeError    = -6
	StatusUnderflow    = -7
	StatusDisconnected = -100
)

// StatusText returns a short description of the given status code.
func StatusText(code int) string {
	switch code {
	case StatusTimeout:
		return "timeout"
	case StatusStreamError:
		return "stream error"
	case StatusCorruption:
		return "corruption"
	case StatusOverflow:
		return "overflow"
	case StatusNotSupported:
		return "not supported"
	case StatusTimeError:
		return "time error"
	case StatusUnderflow:
		return "underflow"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Error reported by a driver operation.
type Error struct {
	Op    string
	Code  int
	Fatal bool
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: status %d (%s)", e.Op, e.Code, StatusText(e.Code))
	}
	return fmt.Sprintf("%s: status %d (%s): %v", e.Op, e.Code, StatusText(e.Code), e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns a recoverable driver error.
func NewError(op string, code int, cause error) *Error {
	return &Error{Op: op, Code: code, Err: cause}
}

// NewFatalError returns a driver error that ends the affected worker.
func NewFatalError(op string, code int, cause error) *Error {
	return &Error{Op: op, Code: code, Fatal: true, Err: cause}
}

// IsFatal reports if err contains a fatal driver error.
func IsFatal(err error) bool {
	var radioErr *Error
	if errors.As(err, &radioErr) {
		return radioErr.Fatal
	}
	return false
}

// Code returns the status code contained in err, or 0.
func Code(err error) int {
	var radioErr *Error
	if errors.As(err, &radioErr) {
		return radioErr.Code
	}
	return 0
}

// ErrTxUnsupported is returned by sources without a transmit path.
var ErrTxUnsupported = NewFatalError("write", StatusNotSupported, errors.New("no transmit path"))

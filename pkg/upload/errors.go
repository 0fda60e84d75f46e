package upload

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoFile is returned when a request carries no file
	ErrNoFile = errors.New("no file selected")
	// ErrInvalidWaveform is returned for a waveform outside Waveforms
	ErrInvalidWaveform = errors.New("invalid waveform")
	// ErrTransport matches every *TransportError
	ErrTransport = errors.New("transport failure")
)

// TransportError reports a request that produced no usable response: the
// connection failed, timed out, was cancelled, or the body was not JSON.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTransport) match any TransportError
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Timeout reports whether the request hit its deadline
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Canceled reports whether the caller cancelled the request
func (e *TransportError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}

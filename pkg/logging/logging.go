// Package logging builds the go-kit loggers used across midi2wav
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New returns a logfmt logger writing to w, filtered at the named level.
// Unknown level names fall back to info.
func New(w io.Writer, lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, Option(lvl))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// Option maps a level name to a go-kit level filter option
func Option(lvl string) level.Option {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return level.AllowDebug()
	case "warn", "warning":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	case "none", "off":
		return level.AllowNone()
	default:
		return level.AllowInfo()
	}
}

// Nop returns a logger that discards everything
func Nop() log.Logger {
	return log.NewNopLogger()
}

// ToFile opens path for appending and returns a logger writing to it. An
// empty path yields a Nop logger; the returned closer is always non-nil.
func ToFile(path, lvl string) (log.Logger, io.Closer, error) {
	if path == "" {
		return Nop(), nopCloser{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return New(f, lvl), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

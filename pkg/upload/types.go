// Package upload submits MIDI files to a conversion service and fetches the
// rendered audio
package upload

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Waveform is the oscillator shape the service renders notes with
type Waveform string

const (
	WaveSine     Waveform = "sine"
	WaveTriangle Waveform = "triangle"
	WaveSquare   Waveform = "square"
	WaveSaw      Waveform = "saw"
)

// Waveforms lists every accepted waveform in display order
var Waveforms = []Waveform{WaveSine, WaveTriangle, WaveSquare, WaveSaw}

// DefaultWaveform is used when none is chosen
const DefaultWaveform = WaveSine

// Valid reports whether w is one of Waveforms
func (w Waveform) Valid() bool {
	for _, v := range Waveforms {
		if w == v {
			return true
		}
	}
	return false
}

// ParseWaveform accepts a waveform name case-insensitively
func ParseWaveform(s string) (Waveform, error) {
	w := Waveform(strings.ToLower(strings.TrimSpace(s)))
	if w == "" {
		return DefaultWaveform, nil
	}
	if !w.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidWaveform, s)
	}
	return w, nil
}

// FileField is the multipart field carrying the MIDI file
const FileField = "myMIDIFile"

// Fields names the multipart fields of an upload
type Fields struct {
	OutputName string
	Waveform   string
}

// DefaultFields are the field names the reference page uses
var DefaultFields = Fields{OutputName: "wavFileName", Waveform: "myWaveForm"}

// Request is one upload. It is built per submit and not reused.
type Request struct {
	File       io.Reader
	FileName   string
	OutputName string
	Waveform   Waveform
}

// Response is the JSON body the conversion service replies with
type Response struct {
	URL     string    `json:"url,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Created time.Time `json:"created,omitempty"`
	Success bool      `json:"success,omitempty"`
}

// Result is the outcome of a request that reached the service and returned
// a parseable body
type Result struct {
	URL        string
	Message    string
	StatusCode int
}

// OK reports a successful conversion: a 2xx status carrying a URL. A URL in
// a non-2xx reply does not count.
func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300 && r.URL != ""
}

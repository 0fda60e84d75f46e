// Package render synthesises monophonic MIDI melodies into 16-bit mono WAV
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/james-see/midi2wav/pkg/midiinfo"
	"github.com/james-see/midi2wav/pkg/upload"
)

const (
	SampleRate = 44100
	BitDepth   = 16

	// MaxDuration bounds the rendered length
	MaxDuration = 10 * time.Minute

	// wavPCM is the WAVE_FORMAT_PCM format tag
	wavPCM = 1

	headroom = 0.8
	ramp     = 5 * time.Millisecond
)

var (
	// ErrNoNotes is returned for files without any sounded note
	ErrNoNotes = errors.New("MIDI file contains no notes")
	// ErrPolyphonic is returned when notes overlap
	ErrPolyphonic = errors.New("MIDI file is not monophonic")
	// ErrTooLong is returned when the melody exceeds MaxDuration
	ErrTooLong = errors.New("MIDI file is too long to render")
	// ErrUnsupportedTiming is returned for SMPTE timed files
	ErrUnsupportedTiming = errors.New("MIDI file uses SMPTE timing, only metric (ticks per quarter) timing is supported")
)

// Render writes sum's notes as a WAV file using the given waveform
func Render(sum *midiinfo.Summary, wave upload.Waveform, w io.WriteSeeker) error {
	if !wave.Valid() {
		return fmt.Errorf("%w: %q", upload.ErrInvalidWaveform, wave)
	}
	if len(sum.Notes) == 0 {
		return ErrNoNotes
	}
	if sum.Resolution == 0 {
		return ErrUnsupportedTiming
	}
	if sum.Polyphonic() {
		return ErrPolyphonic
	}

	total := sum.Duration()
	if last := sum.TimeAt(sum.Notes[len(sum.Notes)-1].End); last > total {
		total = last
	}
	if total > MaxDuration {
		return ErrTooLong
	}
	if total <= 0 {
		return ErrNoNotes
	}

	buf := &audio.IntBuffer{
		Format:         audio.FormatMono44100,
		Data:           make([]int, samplesFor(total)),
		SourceBitDepth: BitDepth,
	}

	peak := float64(audio.IntMaxSignedValue(BitDepth)) * headroom
	for _, n := range sum.Notes {
		start := samplesFor(sum.TimeAt(n.Start))
		end := samplesFor(sum.TimeAt(n.End))
		if end > len(buf.Data) {
			end = len(buf.Data)
		}
		amp := peak * float64(n.Velocity) / 127.0
		fill(buf.Data[start:end], wave, Frequency(n.Key), amp)
	}

	enc := wav.NewEncoder(w, SampleRate, BitDepth, 1, wavPCM)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to encode WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish WAV: %w", err)
	}
	return nil
}

// Frequency returns the equal-tempered pitch of a MIDI key (A4 = 69 = 440Hz)
func Frequency(key uint8) float64 {
	return 440.0 * math.Pow(2, (float64(key)-69.0)/12.0)
}

func samplesFor(d time.Duration) int {
	return int(d.Seconds() * SampleRate)
}

// fill writes one note into out, shaping its edges to avoid clicks
func fill(out []int, wave upload.Waveform, freq, amp float64) {
	edge := samplesFor(ramp)
	if edge*2 > len(out) {
		edge = len(out) / 2
	}
	step := freq / SampleRate
	phase := 0.0

	for i := range out {
		gain := 1.0
		switch {
		case edge > 0 && i < edge:
			gain = float64(i) / float64(edge)
		case edge > 0 && i >= len(out)-edge:
			gain = float64(len(out)-1-i) / float64(edge)
		}
		out[i] = int(amp * gain * oscillate(wave, phase))

		phase += step
		if phase >= 1 {
			phase -= math.Floor(phase)
		}
	}
}

// oscillate returns the waveform value in [-1, 1] at phase in [0, 1)
func oscillate(wave upload.Waveform, phase float64) float64 {
	switch wave {
	case upload.WaveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	case upload.WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case upload.WaveSaw:
		return 2*phase - 1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

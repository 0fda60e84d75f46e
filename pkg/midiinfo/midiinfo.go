// Package midiinfo summarises Standard MIDI Files: tracks, tempo, notes and
// playing time
package midiinfo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultBPM applies until the first tempo event
const DefaultBPM = 120.0

// Note is a sounded note with its span in ticks
type Note struct {
	Track    int
	Channel  uint8
	Key      uint8
	Velocity uint8
	Start    int64
	End      int64
}

// TempoChange is a set-tempo meta event
type TempoChange struct {
	Tick int64
	BPM  float64
}

// Summary describes a parsed file
type Summary struct {
	Format     uint16
	Tracks     int
	Resolution uint16 // ticks per quarter note; 0 for SMPTE timing
	TrackNames []string
	Tempos     []TempoChange // sorted by tick
	Notes      []Note        // sorted by start
	EndTick    int64
}

// InspectFile reads and summarises the file at path
func InspectFile(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return Inspect(data)
}

// Inspect parses MIDI data and summarises it
func Inspect(data []byte) (*Summary, error) {
	if len(data) < 14 || string(data[:4]) != "MThd" {
		return nil, errors.New("not a standard MIDI file")
	}

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	sum := &Summary{
		Format: uint16(data[8])<<8 | uint16(data[9]),
		Tracks: len(s.Tracks),
	}
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		sum.Resolution = mt.Resolution()
	}

	type noteKey struct {
		track   int
		channel uint8
		key     uint8
	}

	for ti, track := range s.Tracks {
		open := map[noteKey][]Note{}
		var tick int64

		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := ev.Message

			if len(msg) >= 2 && msg[0] == 0xFF {
				switch msg[1] {
				case 0x51: // set tempo
					if len(msg) >= 6 && msg[2] == 0x03 {
						usPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
						if usPerBeat > 0 {
							sum.Tempos = append(sum.Tempos, TempoChange{Tick: tick, BPM: 60000000.0 / float64(usPerBeat)})
						}
					}
				case 0x03: // track name
					if text, ok := metaText(msg); ok && text != "" {
						sum.TrackNames = append(sum.TrackNames, text)
					}
				}
				continue
			}

			if len(msg) < 3 {
				continue
			}
			status := msg[0] & 0xF0
			k := noteKey{track: ti, channel: msg[0] & 0x0F, key: msg[1]}
			velocity := msg[2]

			switch {
			case status == 0x90 && velocity > 0:
				open[k] = append(open[k], Note{
					Track:    ti,
					Channel:  k.channel,
					Key:      k.key,
					Velocity: velocity,
					Start:    tick,
				})
			case status == 0x80 || (status == 0x90 && velocity == 0):
				if started := open[k]; len(started) > 0 {
					n := started[0]
					n.End = tick
					sum.Notes = append(sum.Notes, n)
					open[k] = started[1:]
				}
			}
		}

		// notes never released run to the end of their track
		for _, started := range open {
			for _, n := range started {
				n.End = tick
				sum.Notes = append(sum.Notes, n)
			}
		}
		if tick > sum.EndTick {
			sum.EndTick = tick
		}
	}

	sort.SliceStable(sum.Tempos, func(i, j int) bool { return sum.Tempos[i].Tick < sum.Tempos[j].Tick })
	sort.SliceStable(sum.Notes, func(i, j int) bool {
		if sum.Notes[i].Start != sum.Notes[j].Start {
			return sum.Notes[i].Start < sum.Notes[j].Start
		}
		return sum.Notes[i].Key < sum.Notes[j].Key
	})
	return sum, nil
}

// BPM returns the opening tempo
func (s *Summary) BPM() float64 {
	if len(s.Tempos) > 0 && s.Tempos[0].Tick == 0 {
		return s.Tempos[0].BPM
	}
	return DefaultBPM
}

// TimeAt converts a tick position to elapsed time, following tempo changes
func (s *Summary) TimeAt(tick int64) time.Duration {
	if s.Resolution == 0 || tick <= 0 {
		return 0
	}
	var (
		elapsed float64 // seconds
		at      int64
		bpm     = DefaultBPM
	)
	for _, tc := range s.Tempos {
		if tc.Tick >= tick {
			break
		}
		elapsed += s.seconds(tc.Tick-at, bpm)
		at = tc.Tick
		bpm = tc.BPM
	}
	elapsed += s.seconds(tick-at, bpm)
	return time.Duration(elapsed * float64(time.Second))
}

func (s *Summary) seconds(ticks int64, bpm float64) float64 {
	return float64(ticks) / float64(s.Resolution) * 60.0 / bpm
}

// Duration is the playing time of the longest track
func (s *Summary) Duration() time.Duration {
	return s.TimeAt(s.EndTick)
}

// Polyphonic reports whether any two notes sound at the same time
func (s *Summary) Polyphonic() bool {
	var until int64 = -1
	for _, n := range s.Notes {
		if n.Start < until {
			return true
		}
		if n.End > until {
			until = n.End
		}
	}
	return false
}

// String renders the summary for display
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Format:     %d\n", s.Format)
	fmt.Fprintf(&b, "Tracks:     %d\n", s.Tracks)
	if s.Resolution > 0 {
		fmt.Fprintf(&b, "Resolution: %d ticks/quarter\n", s.Resolution)
	} else {
		b.WriteString("Resolution: SMPTE\n")
	}
	fmt.Fprintf(&b, "Tempo:      %.1f bpm\n", s.BPM())
	fmt.Fprintf(&b, "Notes:      %d\n", len(s.Notes))
	fmt.Fprintf(&b, "Duration:   %s\n", s.Duration().Round(time.Millisecond))
	if len(s.TrackNames) > 0 {
		fmt.Fprintf(&b, "Names:      %s\n", strings.Join(s.TrackNames, ", "))
	}
	if s.Polyphonic() {
		b.WriteString("Polyphonic: yes\n")
	}
	return b.String()
}

// metaText extracts the text of a meta event (FF type len text)
func metaText(msg []byte) (string, bool) {
	if len(msg) < 3 {
		return "", false
	}
	length, n := readVarLen(msg[2:])
	if n == 0 || 2+n+length > len(msg) {
		return "", false
	}
	return string(msg[2+n : 2+n+length]), true
}

// readVarLen decodes a MIDI variable length quantity, returning the value and
// the number of bytes consumed (0 on malformed input)
func readVarLen(b []byte) (int, int) {
	var v int
	for i := 0; i < len(b) && i < 4; i++ {
		v = v<<7 | int(b[i]&0x7F)
		if b[i]&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}

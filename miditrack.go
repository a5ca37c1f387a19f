package engrave

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"
)

// TrackMetadata is the header information extracted from one MIDI track,
// separate from its note events (§6.1).
type TrackMetadata struct {
	Index           int
	Name            string
	Program         int // -1 if no program-change event was seen
	HasProgram      bool
	ChannelsSeen    map[uint8]bool
}

// MultiTrackContainer is the result of reading a Standard MIDI File: the
// flattened note list every pipeline phase operates on, plus the per-track
// and file-level metadata a caller (the CLI, primarily) reports but the
// core phases don't need.
type MultiTrackContainer struct {
	Notes          []TimedNote
	Tracks         []TrackMetadata
	Divisions    int // ticks per quarter note
	TempoBPM     float64
	TimeSigNum   uint8
	TimeSigDenom uint8
}

// ScoreMetadata carries the file-level information the measure partitioner
// and MusicXML emitter need beyond the flattened note stream: the time
// signature and tempo the notes are laid out against, and per-track
// instrument metadata for the part-list (§4.10, §4.11, §6.1).
func (c *MultiTrackContainer) ScoreMetadata() ScoreMetadata {
	return ScoreMetadata{
		TimeSigNum:   c.TimeSigNum,
		TimeSigDenom: c.TimeSigDenom,
		TempoBPM:     c.TempoBPM,
		Tracks:       c.Tracks,
	}
}

// openNoteKey identifies a sounding note-on event waiting for its matching
// note-off by (track, channel, pitch), so overlapping notes on different
// channels never get paired with each other.
type openNoteKey struct {
	track   int
	channel uint8
	pitch   uint8
}

// ReadMultiTrackContainer reads a Standard MIDI File into a
// MultiTrackContainer, pairing note-on/note-off events across all tracks
// and accumulating each track's own delta-time independently while
// walking each smf.Track in turn.
func ReadMultiTrackContainer(data *smf.SMF) (*MultiTrackContainer, error) {
	ticksPerQuarter, ok := data.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("engrave: unsupported MIDI time format, expected metric ticks")
	}

	container := &MultiTrackContainer{
		Divisions:    int(ticksPerQuarter),
		TempoBPM:     120,
		TimeSigNum:   4,
		TimeSigDenom: 4,
	}

	open := make(map[openNoteKey]TimedNote)

	for ti, track := range data.Tracks {
		meta := TrackMetadata{Index: ti, Program: -1, ChannelsSeen: make(map[uint8]bool)}

		var tick uint32
		for _, event := range track {
			tick = satAdd32(tick, event.Delta)
			msg := event.Message

			var text string
			if msg.GetMetaTrackName(&text) {
				meta.Name = text
				continue
			}

			var bpm float64
			if msg.GetMetaTempo(&bpm) {
				container.TempoBPM = bpm
				continue
			}
			var num, denom uint8
			if msg.GetMetaTimeSig(&num, &denom, nil, nil) {
				container.TimeSigNum = num
				container.TimeSigDenom = 1 << denom
				continue
			}
			var ch, key, vel uint8
			if msg.GetProgramChange(&ch, &vel) {
				meta.Program = int(vel)
				meta.HasProgram = true
				meta.ChannelsSeen[ch] = true
				continue
			}

			if msg.GetNoteOn(&ch, &key, &vel) && vel > 0 {
				meta.ChannelsSeen[ch] = true
				open[openNoteKey{track: ti, channel: ch, pitch: key}] = TimedNote{
					Pitch:     key,
					Channel:   ch,
					Velocity:  vel,
					StartTick: tick,
					Track:     uint8(ti),
				}
				continue
			}

			isNoteOff := msg.GetNoteOff(&ch, &key, &vel)
			isZeroVelOn := msg.GetNoteOn(&ch, &key, &vel) && vel == 0
			if isNoteOff || isZeroVelOn {
				k := openNoteKey{track: ti, channel: ch, pitch: key}
				if start, ok := open[k]; ok {
					start.Duration = satSub32(tick, start.StartTick)
					container.Notes = append(container.Notes, start)
					delete(open, k)
				}
			}
		}

		container.Tracks = append(container.Tracks, meta)
	}

	// Any note-on left without a matching note-off is kept with a duration
	// of one quarter note (Divisions ticks) from its start, rather than
	// discarding real sounding material.
	for _, n := range open {
		n.Duration = uint32(container.Divisions)
		container.Notes = append(container.Notes, n)
	}

	return container, nil
}

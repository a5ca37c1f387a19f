package engrave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func buildTestSMF(t *testing.T, ticksPerQuarter uint16) *smf.SMF {
	t.Helper()
	s := smf.NewSMF1()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	track := smf.Track{}
	track = append(track, smf.Event{Delta: 0, Message: smf.Message(smf.MetaTrackSequenceName("Lead"))})
	track = append(track, smf.Event{Delta: 0, Message: smf.Message(smf.MetaTempo(120.0))})
	track = append(track, smf.Event{Delta: 0, Message: smf.Message(smf.MetaTimeSig(4, 4, 24, 8))})
	track = append(track, smf.Event{Delta: 0, Message: smf.Message(midi.NoteOn(0, 60, 100))})
	track = append(track, smf.Event{Delta: uint32(ticksPerQuarter), Message: smf.Message(midi.NoteOff(0, 60))})
	track = append(track, smf.Event{Delta: 0, Message: smf.EOT})

	s.Add(track)
	return s
}

func TestReadMultiTrackContainerPairsNoteOnOff(t *testing.T) {
	s := buildTestSMF(t, 480)

	container, err := ReadMultiTrackContainer(s)
	require.NoError(t, err)
	require.Len(t, container.Notes, 1)

	n := container.Notes[0]
	assert.Equal(t, uint8(60), n.Pitch)
	assert.Equal(t, uint32(0), n.StartTick)
	assert.Equal(t, uint32(480), n.Duration)
	assert.Equal(t, 480, container.Divisions)
	assert.Equal(t, uint8(4), container.TimeSigNum)
	assert.Equal(t, uint8(4), container.TimeSigDenom)
}

func TestReadMultiTrackContainerCapturesTrackName(t *testing.T) {
	s := buildTestSMF(t, 480)

	container, err := ReadMultiTrackContainer(s)
	require.NoError(t, err)
	require.Len(t, container.Tracks, 1)
	assert.Equal(t, "Lead", container.Tracks[0].Name)
}

func TestReadMultiTrackContainerRejectsNonMetricTimeFormat(t *testing.T) {
	s := smf.NewSMF1()
	s.TimeFormat = nil

	_, err := ReadMultiTrackContainer(s)
	assert.Error(t, err)
}

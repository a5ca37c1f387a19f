package engrave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupVoicesDefaultsUnassignedToVoiceOne(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		{Pitch: 60, StartTick: 0, Duration: 480},
		{Pitch: 62, StartTick: 480, Duration: 480},
	})

	groups := GroupVoices([]int{0, 1}, notes)
	require.Len(t, groups, 1)
	assert.Equal(t, uint8(1), groups[0].Voice)
	assert.Len(t, groups[0].Notes, 2)
}

func TestGroupVoicesOrdersAscendingAndSeparatesVoices(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		{Pitch: 60, Voice: 2, StartTick: 0, Duration: 480},
		{Pitch: 64, Voice: 1, StartTick: 0, Duration: 480},
	})

	groups := GroupVoices([]int{0, 1}, notes)
	require.Len(t, groups, 2)
	assert.Equal(t, uint8(1), groups[0].Voice)
	assert.Equal(t, uint8(2), groups[1].Voice)
}

func TestGroupVoicesMarksChordMembership(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		{Pitch: 60, StartTick: 0, Duration: 480},
		{Pitch: 64, StartTick: 0, Duration: 480},
		{Pitch: 67, StartTick: 480, Duration: 480},
	})

	groups := GroupVoices([]int{0, 1, 2}, notes)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Notes, 3)
	assert.False(t, groups[0].Notes[0].IsChordMember)
	assert.True(t, groups[0].Notes[1].IsChordMember)
	assert.False(t, groups[0].Notes[2].IsChordMember)
}

package engrave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restNote(start, duration uint32) TimedNote {
	return TimedNote{Pitch: 0, Velocity: 0, StartTick: start, Duration: duration}
}

func TestOptimizeRestsConsolidatesAdjacentRuns(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		restNote(0, 240),
		restNote(240, 240),
		{Pitch: 60, StartTick: 480, Duration: 480},
	})

	arena := NewScopedArena(0, false)
	err := OptimizeRests(notes, arena, QualityConfig{}, 480, 10000)
	require.NoError(t, err)

	require.NotNil(t, notes[0].Rest)
	assert.True(t, notes[0].Rest.IsOptimizedRest)
	assert.Equal(t, uint32(480), notes[0].Rest.Duration)
	assert.Nil(t, notes[1].Rest, "absorbed rest carries no annotation of its own")
}

func TestOptimizeRestsKeepsGapBeyondTolerance(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		restNote(0, 100),
		restNote(200, 100), // gap of 100 > restGapToleranceTicks
	})

	arena := NewScopedArena(0, false)
	err := OptimizeRests(notes, arena, QualityConfig{}, 480, 10000)
	require.NoError(t, err)

	require.NotNil(t, notes[0].Rest)
	assert.False(t, notes[0].Rest.IsOptimizedRest)
	assert.Equal(t, uint32(100), notes[0].Rest.Duration)
	require.NotNil(t, notes[1].Rest)
}

func TestIsNegligibleRestDuration(t *testing.T) {
	assert.True(t, IsNegligibleRestDuration(1, 480))
	assert.False(t, IsNegligibleRestDuration(480, 480))
}

func TestOptimizeRestsPrioritizeReadabilityBonus(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		restNote(10, 50), // off-beat onset, non-zero misalignment
	})

	arena := NewScopedArena(0, false)
	plain := QualityConfig{}
	err := OptimizeRests(notes, arena, plain, 480, 10000)
	require.NoError(t, err)
	baseline := notes[0].Rest.AlignmentScore

	notes2 := makeEnhanced([]TimedNote{restNote(10, 50)})
	arena2 := NewScopedArena(0, false)
	boosted := QualityConfig{PrioritizeReadability: true}
	err = OptimizeRests(notes2, arena2, boosted, 480, 10000)
	require.NoError(t, err)

	assert.Greater(t, notes2[0].Rest.AlignmentScore, baseline)
}

package engrave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinateClearsDynamicsOnRest(t *testing.T) {
	notes := makeEnhanced([]TimedNote{restNote(0, 480)})
	arena := NewScopedArena(0, false)
	notes[0].Dynamics = &DynamicsInfo{DynamicMark: DynF}

	result, err := Coordinate(notes, arena, CoordinationConfig{FailureMode: FailureModeFallback}, QualityConfig{EnableRestBeamCoordination: true}, 480, 10000)
	require.NoError(t, err)
	assert.Nil(t, notes[0].Dynamics)
	assert.Equal(t, 1, result.ConflictsDetected)
	assert.Equal(t, 1, result.ConflictsResolved)
}

func TestCoordinateFlagsMixedVoiceChord(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		{Pitch: 60, Voice: 1, StartTick: 0, Duration: 480},
		{Pitch: 64, Voice: 2, StartTick: 0, Duration: 480},
	})
	arena := NewScopedArena(0, false)

	result, err := Coordinate(notes, arena, CoordinationConfig{FailureMode: FailureModeFallback}, QualityConfig{EnableRestBeamCoordination: true}, 480, 10000)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ConflictsDetected)
	assert.Equal(t, 1, result.ConflictsIgnored)
}

func TestCoordinateBeamInconsistencyWithinTupletNormalizes(t *testing.T) {
	sig := TupletInfo{Type: TupletTriplet, StartTick: 0, EndTick: 480, StartsTuplet: true, EndsTuplet: false}
	sigEnd := sig
	sigEnd.StartsTuplet = false
	sigEnd.EndsTuplet = true

	notes := makeEnhanced([]TimedNote{
		{Pitch: 60, StartTick: 0, Duration: 160},
		{Pitch: 62, StartTick: 160, Duration: 160},
	})
	notes[0].Tuplet = &sig
	notes[1].Tuplet = &sigEnd
	notes[0].Beaming = &BeamingInfo{State: BeamBegin, Level: 1, GroupID: 0}
	notes[1].Beaming = &BeamingInfo{State: BeamEnd, Level: 2, GroupID: 0}

	arena := NewScopedArena(0, false)
	result, err := Coordinate(notes, arena, CoordinationConfig{FailureMode: FailureModeFallback}, QualityConfig{EnableRestBeamCoordination: true}, 480, 10000)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), notes[0].Beaming.Level)
	assert.Equal(t, uint8(1), notes[1].Beaming.Level)
	assert.GreaterOrEqual(t, result.ConflictsResolved, 1)
}

func TestCoordinateNoConflictsIsClean(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		{Pitch: 60, StartTick: 0, Duration: 480},
	})
	arena := NewScopedArena(0, false)
	result, err := Coordinate(notes, arena, CoordinationConfig{FailureMode: FailureModeStrict}, QualityConfig{EnableRestBeamCoordination: true}, 480, 10000)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ConflictsDetected)
}

func TestCoordinateStrictModeRejectsWithoutMutating(t *testing.T) {
	notes := makeEnhanced([]TimedNote{restNote(0, 480)})
	arena := NewScopedArena(0, false)
	notes[0].Dynamics = &DynamicsInfo{DynamicMark: DynF}

	result, err := Coordinate(notes, arena, CoordinationConfig{FailureMode: FailureModeStrict}, QualityConfig{EnableRestBeamCoordination: true}, 480, 10000)
	assert.ErrorIs(t, err, ErrCoordinationConflict)
	assert.Equal(t, 1, result.ConflictsDetected)
	assert.Equal(t, 0, result.ConflictsResolved)
	assert.NotNil(t, notes[0].Dynamics, "strict mode must not mutate before rejecting")
}

func TestCoordinateIgnoreModeDetectsWithoutMutatingOrErroring(t *testing.T) {
	notes := makeEnhanced([]TimedNote{restNote(0, 480)})
	arena := NewScopedArena(0, false)
	notes[0].Dynamics = &DynamicsInfo{DynamicMark: DynF}

	result, err := Coordinate(notes, arena, CoordinationConfig{FailureMode: FailureModeIgnore}, QualityConfig{EnableRestBeamCoordination: true}, 480, 10000)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ConflictsDetected)
	assert.Equal(t, 0, result.ConflictsResolved)
	assert.NotNil(t, notes[0].Dynamics)
}

func TestCoordinateSkipsRestBeamRuleWhenDisabled(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		{Pitch: 60, StartTick: 0, Duration: 160},
		{Pitch: 62, StartTick: 160, Duration: 160},
	})
	notes[0].Beaming = &BeamingInfo{State: BeamBegin, Level: 1, GroupID: 0}
	notes[1].Beaming = &BeamingInfo{State: BeamEnd, Level: 1, GroupID: 0}
	notes[1].Note.Pitch, notes[1].Note.Velocity = 0, 0 // now a rest inside the recorded beam span

	arena := NewScopedArena(0, false)
	result, err := Coordinate(notes, arena, CoordinationConfig{FailureMode: FailureModeFallback}, QualityConfig{EnableRestBeamCoordination: false}, 480, 10000)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ConflictsDetected, "rule 4 must not run when EnableRestBeamCoordination is false")
	assert.Equal(t, BeamEnd, notes[1].Beaming.State, "beam span left untouched when the rule is disabled")
}

func TestCoordinateStrictModeIgnoresMetricsOnlyRules(t *testing.T) {
	notes := makeEnhanced([]TimedNote{
		{Pitch: 60, Voice: 1, StartTick: 0, Duration: 480},
		{Pitch: 64, Voice: 2, StartTick: 0, Duration: 480},
	})
	arena := NewScopedArena(0, false)

	result, err := Coordinate(notes, arena, CoordinationConfig{FailureMode: FailureModeStrict}, QualityConfig{EnableRestBeamCoordination: true}, 480, 10000)
	require.NoError(t, err, "a mixed-voice chord is legitimate notation, not a rejectable conflict")
	assert.Equal(t, 1, result.ConflictsIgnored)
}

package engrave

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineRunEndToEndTriplet(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{
		{Pitch: 60, Velocity: 80, StartTick: 0, Duration: 160},
		{Pitch: 62, Velocity: 80, StartTick: 160, Duration: 160},
		{Pitch: 64, Velocity: 80, StartTick: 320, Duration: 160},
	}

	xml, metrics, err := p.Run(notes, ScoreMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.NotesProcessed)
	assert.Equal(t, 1, metrics.Measures)
	assert.Contains(t, string(xml), "<tuplet type=\"start\"/>")
	assert.Contains(t, string(xml), "<tuplet type=\"stop\"/>")
}

func TestPipelineRunEndToEndBeamedSixteenths(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{
		{Pitch: 60, Velocity: 80, StartTick: 0, Duration: 120},
		{Pitch: 62, Velocity: 80, StartTick: 120, Duration: 120},
		{Pitch: 64, Velocity: 80, StartTick: 240, Duration: 120},
		{Pitch: 65, Velocity: 80, StartTick: 360, Duration: 120},
	}

	xml, _, err := p.Run(notes, ScoreMetadata{})
	require.NoError(t, err)
	assert.Contains(t, string(xml), "<beam number=\"2\">begin</beam>")
	assert.Contains(t, string(xml), "<beam number=\"2\">end</beam>")
}

func TestPipelineRunEndToEndRestConsolidation(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{
		{Pitch: 0, Velocity: 0, StartTick: 0, Duration: 240},
		{Pitch: 0, Velocity: 0, StartTick: 240, Duration: 240},
		{Pitch: 60, Velocity: 80, StartTick: 480, Duration: 480},
	}

	xml, _, err := p.Run(notes, ScoreMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(xml), "<rest/>"))
}

func TestPipelineRunEndToEndDynamicsOnRestIsCleared(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{
		{Pitch: 0, Velocity: 0, StartTick: 0, Duration: 480},
		{Pitch: 60, Velocity: 80, StartTick: 480, Duration: 480},
	}

	xml, metrics, err := p.Run(notes, ScoreMetadata{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, metrics.Coordination.ConflictsResolved, 0)
	// Only the pitched note carries a dynamics marking; the rest has none.
	assert.Equal(t, 1, strings.Count(string(xml), "<dynamics>"))
}

func TestPipelineRunEndToEndMultiVoiceMeasure(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{
		{Pitch: 60, Velocity: 80, Voice: 1, StartTick: 0, Duration: 480},
		{Pitch: 48, Velocity: 80, Voice: 2, StartTick: 0, Duration: 480},
	}

	xml, metrics, err := p.Run(notes, ScoreMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Coordination.ConflictsIgnored)
	assert.Contains(t, string(xml), "<backup>")
}

func TestPipelineRunCircuitBreakerTripsOnBatchSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Performance.MaxNotesPerBatch = 2
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{
		{Pitch: 60, StartTick: 0, Duration: 120},
		{Pitch: 62, StartTick: 120, Duration: 120},
		{Pitch: 64, StartTick: 240, Duration: 120},
	}

	_, _, err := p.Run(notes, ScoreMetadata{})
	assert.ErrorIs(t, err, ErrSystemStabilityRisk)
}

func TestPipelineRunCircuitBreakerTripsOnComplexity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Performance.ComplexityThreshold = 1
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{
		{Pitch: 60, StartTick: 0, Duration: 120},
		{Pitch: 62, StartTick: 120, Duration: 120},
	}

	_, _, err := p.Run(notes, ScoreMetadata{})
	assert.ErrorIs(t, err, ErrSystemStabilityRisk)
}

func TestPipelineRunDisablingFeatureSkipsPhase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Features.Tuplet = false
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{
		{Pitch: 60, Velocity: 80, StartTick: 0, Duration: 160},
		{Pitch: 62, Velocity: 80, StartTick: 160, Duration: 160},
		{Pitch: 64, Velocity: 80, StartTick: 320, Duration: 160},
	}

	xml, _, err := p.Run(notes, ScoreMetadata{})
	require.NoError(t, err)
	assert.NotContains(t, string(xml), "<tuplet")
}

func TestPipelineRunResetsArenaBetweenCalls(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{{Pitch: 60, Velocity: 80, StartTick: 0, Duration: 480}}

	_, m1, err := p.Run(notes, ScoreMetadata{})
	require.NoError(t, err)
	_, m2, err := p.Run(notes, ScoreMetadata{})
	require.NoError(t, err)

	// Run snapshots metrics before its deferred reset, so the second run
	// sees the one cycle the first run completed.
	assert.Equal(t, int64(1), m2.Arena.Cycles)
	assert.Equal(t, m1.NotesProcessed, m2.NotesProcessed)
}

func TestPipelineRunThreadsScoreMetadataIntoOutput(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{
		{Pitch: 60, Velocity: 80, StartTick: 0, Duration: 480},
	}
	meta := ScoreMetadata{
		TimeSigNum: 3, TimeSigDenom: 4, TempoBPM: 96,
		Tracks: []TrackMetadata{{Index: 0, Name: "Violin"}},
	}

	xml, _, err := p.Run(notes, meta)
	require.NoError(t, err)
	out := string(xml)
	assert.Contains(t, out, "<time><beats>3</beats><beat-type>4</beat-type></time>")
	assert.Contains(t, out, `<sound tempo="96"/>`)
	assert.Contains(t, out, "Violin")
	assert.Contains(t, out, `<barline location="right"><bar-style>regular</bar-style></barline>`)
}

func TestPipelineRunRejectsOverPerformanceTargetWithoutFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Performance.EnablePerformanceFallback = false
	cfg.Performance.MaxProcessingTimePerNoteNs = 1
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{{Pitch: 60, Velocity: 80, StartTick: 0, Duration: 480}}

	_, _, err := p.Run(notes, ScoreMetadata{})
	assert.ErrorIs(t, err, ErrPerformanceTargetExceeded)
}

func TestPipelineRunWarnsOnlyOverPerformanceTargetWithFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Performance.EnablePerformanceFallback = true
	cfg.Performance.MaxProcessingTimePerNoteNs = 1
	p := NewPipeline(cfg, nil)

	notes := []TimedNote{{Pitch: 60, Velocity: 80, StartTick: 0, Duration: 480}}

	_, _, err := p.Run(notes, ScoreMetadata{})
	require.NoError(t, err, "fallback enabled means the target is a warning, not a rejection")
}

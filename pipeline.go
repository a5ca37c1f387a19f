package engrave

import (
	"fmt"
	"sort"
	"time"
)

// PipelineMetrics is the plain-value metrics object returned alongside a
// rendered score, aggregating arena and coordination accounting the way
// ScopedArena.Metrics aggregates its own (§9).
type PipelineMetrics struct {
	NotesProcessed    int
	Measures          int
	ElapsedMs         int64
	Coordination      CoordinationResult
	Arena             ArenaMetrics
	PrecisionWarnings []PrecisionWarning
}

// ScoreMetadata carries the file-level context a batch of notes is
// rendered against: the time signature the measure partitioner buckets
// against, the tempo and per-track instrument info the emitter writes into
// the first measure and part-list. The zero value is 4/4 at 120 BPM with an
// unnamed single part.
type ScoreMetadata struct {
	TimeSigNum   uint8
	TimeSigDenom uint8
	TempoBPM     float64
	Tracks       []TrackMetadata
}

// Pipeline owns the collaborators a batch is processed with: a config
// snapshot, a logger, and a reusable arena. It holds no package-level
// state, so multiple pipelines (e.g. one per worker goroutine) never
// interfere with each other.
type Pipeline struct {
	cfg    Config
	logger *Logger
	arena  *ScopedArena
}

// NewPipeline constructs a pipeline from a config and an optional logger
// (nil falls back to a no-op logger, never a process-wide default).
func NewPipeline(cfg Config, logger *Logger) *Pipeline {
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		arena:  NewScopedArena(0, cfg.Performance.EnablePerformanceFallback),
	}
}

// estimateComplexity is the emergency circuit breaker's cheap proxy for how
// expensive a batch will be to coordinate: note count scaled by the number
// of distinct voices in play, since cross-voice interaction (chords,
// coordination rule 6) is what makes a batch of otherwise-simple notes
// expensive.
func estimateComplexity(notes []TimedNote) int {
	voices := make(map[uint8]bool)
	for _, n := range notes {
		voices[n.EffectiveVoice()] = true
	}
	factor := len(voices)
	if factor < 1 {
		factor = 1
	}
	return len(notes) * factor
}

func sortByStartTick(enhanced []EnhancedTimedNote) {
	sort.SliceStable(enhanced, func(i, j int) bool {
		return enhanced[i].Note.StartTick < enhanced[j].Note.StartTick
	})
	for i := range enhanced {
		enhanced[i].Index = i
	}
}

// Run processes one batch of notes through every enabled phase, in the
// fixed order tuplet -> beam -> rest -> dynamics -> coordination -> stem,
// then partitions measures and emits MusicXML. The arena is reset for the
// next cycle before returning, win or lose.
func (p *Pipeline) Run(notes []TimedNote, meta ScoreMetadata) ([]byte, PipelineMetrics, error) {
	start := time.Now()
	n := len(notes)
	defer p.arena.ResetForNextCycle(n)

	perf := p.cfg.Performance
	if perf.EnableEmergencyCircuitBreaker {
		if perf.MaxNotesPerBatch > 0 && n > perf.MaxNotesPerBatch {
			p.logger.Errorf("batch of %d notes exceeds max_notes_per_batch %d", n, perf.MaxNotesPerBatch)
			return nil, PipelineMetrics{}, fmt.Errorf("engrave: %w", ErrSystemStabilityRisk)
		}
		if complexity := estimateComplexity(notes); perf.ComplexityThreshold > 0 && complexity > perf.ComplexityThreshold {
			p.logger.Errorf("estimated complexity %d exceeds threshold %d", complexity, perf.ComplexityThreshold)
			return nil, PipelineMetrics{}, fmt.Errorf("engrave: %w", ErrSystemStabilityRisk)
		}
	}

	enhanced := make([]EnhancedTimedNote, n)
	for i, note := range notes {
		enhanced[i] = EnhancedTimedNote{Note: note, Index: i}
	}
	sortByStartTick(enhanced)

	maxOuter := perf.MaxIterationsPerLoop
	maxInner := perf.MaxIterationsPerLoop
	if maxOuter <= 0 {
		maxOuter = 10000
	}
	if maxInner <= 0 {
		maxInner = maxOuter
	}

	deadline := time.Duration(perf.MaxTotalProcessingTimeSeconds * float64(time.Second))
	checkDeadline := func(phase string) error {
		if perf.EnableEmergencyCircuitBreaker && deadline > 0 && time.Since(start) > deadline {
			p.logger.Errorf("processing deadline exceeded after phase %q", phase)
			return fmt.Errorf("engrave: phase %s: %w", phase, ErrProcessingTimeout)
		}
		return nil
	}

	if p.cfg.Features.Tuplet {
		if err := DetectTuplets(enhanced, p.arena, p.cfg.Quality, p.cfg.Divisions, maxOuter, maxInner); err != nil {
			return nil, PipelineMetrics{}, fmt.Errorf("engrave: tuplet phase: %w", err)
		}
		if err := checkDeadline("tuplet"); err != nil {
			return nil, PipelineMetrics{}, err
		}
	}
	if p.cfg.Features.Beam {
		if err := GroupBeams(enhanced, p.arena, p.cfg.Quality, p.cfg.Divisions, maxOuter); err != nil {
			return nil, PipelineMetrics{}, fmt.Errorf("engrave: beam phase: %w", err)
		}
		if err := checkDeadline("beam"); err != nil {
			return nil, PipelineMetrics{}, err
		}
	}
	if p.cfg.Features.Rest {
		if err := OptimizeRests(enhanced, p.arena, p.cfg.Quality, p.cfg.Divisions, maxOuter); err != nil {
			return nil, PipelineMetrics{}, fmt.Errorf("engrave: rest phase: %w", err)
		}
		if err := checkDeadline("rest"); err != nil {
			return nil, PipelineMetrics{}, err
		}
	}
	if p.cfg.Features.Dynamics {
		if err := MapDynamics(enhanced, p.arena, p.cfg.DynamicsConfig, maxOuter); err != nil {
			return nil, PipelineMetrics{}, fmt.Errorf("engrave: dynamics phase: %w", err)
		}
		if err := checkDeadline("dynamics"); err != nil {
			return nil, PipelineMetrics{}, err
		}
	}

	var coordResult CoordinationResult
	if p.cfg.Features.Coordination {
		var err error
		coordResult, err = Coordinate(enhanced, p.arena, p.cfg.Coordination, p.cfg.Quality, p.cfg.Divisions, maxOuter)
		if err != nil {
			p.logger.Warnf("coordination: %v", err)
			if p.cfg.Coordination.FailureMode == FailureModeStrict {
				return nil, PipelineMetrics{}, fmt.Errorf("engrave: coordination phase: %w", err)
			}
		}
		if err := checkDeadline("coordination"); err != nil {
			return nil, PipelineMetrics{}, err
		}
	}

	if err := ResolveStems(enhanced, p.arena, maxOuter); err != nil {
		return nil, PipelineMetrics{}, fmt.Errorf("engrave: stem phase: %w", err)
	}
	if err := checkDeadline("stem"); err != nil {
		return nil, PipelineMetrics{}, err
	}

	measures, err := PartitionMeasures(enhanced, p.cfg.Divisions, meta.TimeSigNum, meta.TimeSigDenom)
	if err != nil {
		p.logger.Errorf("measure partitioning: %v", err)
		return nil, PipelineMetrics{}, fmt.Errorf("engrave: %w", err)
	}

	xmlBytes, warnings, err := EmitMusicXML(enhanced, measures, p.cfg.Divisions, meta)
	if err != nil {
		return nil, PipelineMetrics{}, fmt.Errorf("engrave: emission: %w", err)
	}

	metrics := PipelineMetrics{
		NotesProcessed:    n,
		Measures:          len(measures),
		ElapsedMs:         time.Since(start).Milliseconds(),
		Coordination:      coordResult,
		Arena:             p.arena.Metrics(),
		PrecisionWarnings: warnings,
	}
	p.logger.Infof("processed %d notes into %d measures in %dms", n, len(measures), metrics.ElapsedMs)

	if perf.MaxProcessingTimePerNoteNs > 0 && metrics.Arena.AvgNsPerNote > float64(perf.MaxProcessingTimePerNoteNs) {
		if !perf.EnablePerformanceFallback {
			return nil, PipelineMetrics{}, fmt.Errorf("engrave: %w: %.0fns/note exceeds target %dns/note",
				ErrPerformanceTargetExceeded, metrics.Arena.AvgNsPerNote, perf.MaxProcessingTimePerNoteNs)
		}
		p.logger.Warnf("%.0fns/note exceeds target %dns/note, continuing (performance fallback enabled)",
			metrics.Arena.AvgNsPerNote, perf.MaxProcessingTimePerNoteNs)
	}

	return xmlBytes, metrics, nil
}

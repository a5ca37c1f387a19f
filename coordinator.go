package engrave

// CoordinationResult is the plain-value summary returned by Coordinate, per
// §9's "metrics become a value type" convention.
type CoordinationResult struct {
	ConflictsDetected int
	ConflictsResolved int
	ConflictsIgnored  int
}

// measureLengthTicksAssumed is the coordinator's working assumption of one
// 4/4 measure's length, used only to flag tuplets that straddle a measure
// boundary (§4.8 rule 5). The real measure grid is computed later by the
// partitioner; the coordinator runs before it and only needs an estimate
// good enough to count candidates for its metrics.
func measureLengthTicksAssumed(divisions int) uint32 {
	return uint32(divisions) * 4
}

// tupletSignature identifies which tuplet (if any) a note belongs to by
// value, since each note owns its own arena-allocated TupletInfo copy
// rather than sharing a pointer with its tuplet-mates.
type tupletSignature struct {
	present       bool
	typ           TupletType
	startTick     uint32
	endTick       uint32
}

func signatureOf(t *TupletInfo) tupletSignature {
	if t == nil {
		return tupletSignature{}
	}
	return tupletSignature{present: true, typ: t.Type, startTick: t.StartTick, endTick: t.EndTick}
}

func (a tupletSignature) equal(b tupletSignature) bool {
	return a.present == b.present && a.typ == b.typ && a.startTick == b.startTick && a.endTick == b.endTick
}

// Coordinate runs the fixed conflict-detection rules of §4.8 over a
// fully-annotated batch and applies the matching resolution for each. It
// never allocates new annotation records (only clears or adjusts existing
// ones), but still participates in arena phase accounting like every other
// phase.
func Coordinate(notes []EnhancedTimedNote, arena *ScopedArena, cfg CoordinationConfig, quality QualityConfig, divisions int, maxOuterIter int) (CoordinationResult, error) {
	arena.BeginPhase(PhaseCoordination)
	defer arena.EndPhase(len(notes))

	// FailureModeFallback auto-fixes every mutating rule below. Strict and
	// ignore both leave the batch untouched: strict because it is about to
	// reject the batch outright, ignore because it reports the conflicts
	// it found without correcting anything.
	mutate := cfg.FailureMode == FailureModeFallback || cfg.FailureMode == ""

	var result CoordinationResult
	iterations := 0

	tick := func() bool {
		iterations++
		return iterations <= maxOuterIter
	}

	for i := range notes {
		if !tick() {
			break
		}
		n := &notes[i]

		if n.IsRest() && n.Dynamics != nil {
			result.ConflictsDetected++
			if mutate {
				n.Dynamics = nil
				result.ConflictsResolved++
			}
		}
	}

	resolveBeamTupletBoundaries(notes, &result, &iterations, maxOuterIter, mutate)
	resolveBeamInconsistencyWithinTuplets(notes, &result, &iterations, maxOuterIter, mutate)
	if quality.EnableRestBeamCoordination {
		resolveRestSplitBeamGroups(notes, &result, &iterations, maxOuterIter, mutate)
	}
	resolvable := result.ConflictsDetected

	countPartialTupletsAtMeasureBoundaries(notes, divisions, &result, &iterations, maxOuterIter)
	countMixedVoiceChordAmbiguity(notes, &result, &iterations, maxOuterIter)

	// Only the mutating rules (1-4) represent a conflict strict mode can
	// reject the batch over; rules 5-6 are informational counts of
	// legitimate notation (a tuplet split across a measure, a deliberate
	// multi-voice chord) and never block anything.
	if cfg.FailureMode == FailureModeStrict && resolvable > 0 {
		return result, ErrCoordinationConflict
	}
	return result, nil
}

// resolveBeamTupletBoundaries implements §4.8 rule 2: a beam group whose
// members don't all share the same tuplet membership is truncated at the
// first membership change, splitting it into independently-numbered runs
// rather than leaving a beam that straddles a tuplet boundary.
func resolveBeamTupletBoundaries(notes []EnhancedTimedNote, result *CoordinationResult, iterations *int, maxOuterIter int, mutate bool) {
	i := 0
	for i < len(notes) {
		*iterations++
		if *iterations > maxOuterIter {
			return
		}
		if notes[i].Beaming == nil || notes[i].Beaming.State != BeamBegin {
			i++
			continue
		}
		runStart := i
		sig := signatureOf(notes[i].Tuplet)
		j := i + 1
		mismatch := -1
		for j < len(notes) && notes[j].Beaming != nil && notes[j].Beaming.GroupID == notes[runStart].Beaming.GroupID {
			if mismatch < 0 && !signatureOf(notes[j].Tuplet).equal(sig) {
				mismatch = j
			}
			j++
		}
		if mismatch > 0 {
			result.ConflictsDetected++
			if mutate {
				splitBeamRun(notes, runStart, mismatch, j)
				result.ConflictsResolved++
			}
		}
		i = j
	}
}

// splitBeamRun re-numbers the beam run [start, end) into two runs at the
// boundary index `at`, recomputing begin/continue/end state for each half
// and demoting a half of length 1 to no beam at all (§4.4's "runs of
// length < 2 don't beam").
func splitBeamRun(notes []EnhancedTimedNote, start, at, end int) {
	relabel := func(lo, hi int) {
		if hi-lo < 2 {
			for k := lo; k < hi; k++ {
				if notes[k].Beaming != nil {
					notes[k].Beaming.State = BeamNone
					notes[k].Beaming.CanBeam = false
				}
			}
			return
		}
		for k := lo; k < hi; k++ {
			if notes[k].Beaming == nil {
				continue
			}
			notes[k].Beaming.GroupID = lo
			switch {
			case k == lo:
				notes[k].Beaming.State = BeamBegin
			case k == hi-1:
				notes[k].Beaming.State = BeamEnd
			default:
				notes[k].Beaming.State = BeamContinue
			}
		}
	}
	relabel(start, at)
	relabel(at, end)
}

// resolveBeamInconsistencyWithinTuplets implements §4.8 rule 3: if members
// of the same tuplet span disagree on beam sub-division level, all beamed
// members of that tuplet are normalized down to the lowest level observed,
// the more conservative notation choice.
func resolveBeamInconsistencyWithinTuplets(notes []EnhancedTimedNote, result *CoordinationResult, iterations *int, maxOuterIter int, mutate bool) {
	i := 0
	for i < len(notes) {
		*iterations++
		if *iterations > maxOuterIter {
			return
		}
		if notes[i].Tuplet == nil || !notes[i].Tuplet.StartsTuplet {
			i++
			continue
		}
		sig := signatureOf(notes[i].Tuplet)
		j := i
		minLevel := uint8(0)
		inconsistent := false
		for j < len(notes) && signatureOf(notes[j].Tuplet).equal(sig) {
			if notes[j].Beaming != nil {
				if minLevel == 0 || notes[j].Beaming.Level < minLevel {
					if minLevel != 0 && notes[j].Beaming.Level != minLevel {
						inconsistent = true
					}
					minLevel = notes[j].Beaming.Level
				} else if notes[j].Beaming.Level != minLevel {
					inconsistent = true
				}
			}
			j++
		}
		if inconsistent {
			result.ConflictsDetected++
			if mutate {
				for k := i; k < j; k++ {
					if notes[k].Beaming != nil {
						notes[k].Beaming.Level = minLevel
					}
				}
				result.ConflictsResolved++
			}
		}
		i = j
	}
}

// resolveRestSplitBeamGroups implements §4.8 rule 4 defensively: GroupBeams
// already breaks a run at a rest, so this should never fire, but a
// coordinator that trusts upstream phases unconditionally would propagate a
// corrupt group straight to the emitter. Any rest found inside a recorded
// beam span gets the span truncated to its non-rest prefix. Gated by
// quality.EnableRestBeamCoordination at the call site in Coordinate.
func resolveRestSplitBeamGroups(notes []EnhancedTimedNote, result *CoordinationResult, iterations *int, maxOuterIter int, mutate bool) {
	i := 0
	for i < len(notes) {
		*iterations++
		if *iterations > maxOuterIter {
			return
		}
		if notes[i].Beaming == nil || notes[i].Beaming.State != BeamBegin {
			i++
			continue
		}
		groupID := notes[i].Beaming.GroupID
		j := i + 1
		splitAt := -1
		for j < len(notes) && notes[j].Beaming != nil && notes[j].Beaming.GroupID == groupID {
			if notes[j].IsRest() && splitAt < 0 {
				splitAt = j
			}
			j++
		}
		if splitAt > 0 {
			result.ConflictsDetected++
			if mutate {
				splitBeamRun(notes, i, splitAt, splitAt)
				for k := splitAt; k < j; k++ {
					notes[k].Beaming.State = BeamNone
					notes[k].Beaming.CanBeam = false
				}
				result.ConflictsResolved++
			}
		}
		i = j
	}
}

// countPartialTupletsAtMeasureBoundaries implements §4.8 rule 5 as a
// metrics-only check: a tuplet whose span crosses the assumed measure grid
// is counted but not rewritten, since the emitter already copes with a
// tuplet split across a measure via each note's own StartsTuplet/EndsTuplet.
func countPartialTupletsAtMeasureBoundaries(notes []EnhancedTimedNote, divisions int, result *CoordinationResult, iterations *int, maxOuterIter int) {
	measureLen := measureLengthTicksAssumed(divisions)
	if measureLen == 0 {
		return
	}
	for i := range notes {
		*iterations++
		if *iterations > maxOuterIter {
			return
		}
		t := notes[i].Tuplet
		if t == nil || !t.StartsTuplet {
			continue
		}
		if t.StartTick/measureLen != (t.EndTick-1)/measureLen {
			result.ConflictsDetected++
			result.ConflictsIgnored++
		}
	}
}

// countMixedVoiceChordAmbiguity implements §4.8 rule 6 as a metrics-only
// check: several notes sharing a start tick across different voices is
// legitimate multi-voice writing, not an error, so it is counted and left
// for the voice partitioner and emitter to render with explicit <backup>
// elements rather than altered here.
func countMixedVoiceChordAmbiguity(notes []EnhancedTimedNote, result *CoordinationResult, iterations *int, maxOuterIter int) {
	i := 0
	for i < len(notes) {
		*iterations++
		if *iterations > maxOuterIter {
			return
		}
		j := i + 1
		voices := map[uint8]bool{notes[i].Note.EffectiveVoice(): true}
		for j < len(notes) && notes[j].Note.StartTick == notes[i].Note.StartTick {
			voices[notes[j].Note.EffectiveVoice()] = true
			j++
		}
		if len(voices) > 1 {
			result.ConflictsDetected++
			result.ConflictsIgnored++
		}
		i = j
	}
}

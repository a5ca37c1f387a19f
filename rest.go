package engrave

// restGapToleranceTicks is the §4.5 maximum gap between consecutive
// rests that still allows them to merge into one run.
const restGapToleranceTicks = 10

// spansCrossBeat reports whether the half-open tick span [start, end)
// occupies more than one beat of `quarter` ticks.
func spansCrossBeat(start, end, quarter uint32) bool {
	if quarter == 0 || end <= start {
		return false
	}
	return beatIndex(start, quarter) != beatIndex(end-1, quarter)
}

// IsNegligibleRestDuration reports whether a rest is too short to notate
// at all (§4.5's tiny-residual-rest suppression, applied by the emitter).
func IsNegligibleRestDuration(duration uint32, divisions int) bool {
	if divisions <= 0 {
		return false
	}
	return duration < uint32(divisions)/20
}

func restAlignmentScore(startTick, quarter uint32) float64 {
	if quarter == 0 {
		return 1
	}
	offset := startTick % quarter
	if offset == 0 {
		return 1
	}
	return 1 - float64(offset)/float64(quarter)
}

// OptimizeRests scans notes in start-tick order and merges consecutive
// rest runs into a single annotated rest per §4.5. A run may only cross
// into a new beat if its first (unmerged) rest already would have crossed
// that boundary on its own.
func OptimizeRests(notes []EnhancedTimedNote, arena *ScopedArena, cfg QualityConfig, divisions int, maxOuterIter int) error {
	arena.BeginPhase(PhaseRest)
	defer arena.EndPhase(len(notes))

	if len(notes) == 0 {
		return nil
	}
	quarter := uint32(divisions)

	iterations := 0
	i := 0
	for i < len(notes) {
		iterations++
		if iterations > maxOuterIter {
			return nil
		}

		notes[i].Flags.RestProcessed = true

		if !notes[i].IsRest() {
			i++
			continue
		}

		runStart := i
		firstOwnDuration := notes[i].Note.Duration
		beatBoundary := satAdd32((beatIndex(notes[i].Note.StartTick, quarter)+1)*quarter, 0)
		distanceToBoundary := satSub32(beatBoundary, notes[i].Note.StartTick)
		allowedCross := firstOwnDuration >= distanceToBoundary

		totalDuration := firstOwnDuration
		j := i + 1
		for j < len(notes) {
			iterations++
			if iterations > maxOuterIter {
				break
			}
			if !notes[j].IsRest() {
				break
			}
			cur := &notes[j-1]
			gap := satSub32(notes[j].Note.StartTick, satAdd32(cur.Note.StartTick, cur.Note.Duration))
			if gap > restGapToleranceTicks {
				break
			}

			mergedEnd := satAdd32(notes[j].Note.StartTick, notes[j].Note.Duration)
			if spansCrossBeat(notes[runStart].Note.StartTick, mergedEnd, quarter) && !allowedCross {
				break
			}

			totalDuration = satSub32(mergedEnd, notes[runStart].Note.StartTick)
			notes[j].Flags.RestProcessed = true
			j++
		}

		runLen := j - i
		info, err := arena.AllocRest()
		if err == nil {
			*info = RestInfo{
				StartTime:        notes[runStart].Note.StartTick,
				Duration:         totalDuration,
				IsOptimizedRest:  runLen > 1,
				OriginalDuration: firstOwnDuration,
				AlignmentScore:   restAlignmentScore(notes[runStart].Note.StartTick, quarter),
			}
			if cfg.PrioritizeReadability {
				info.AlignmentScore = minFloat(1, info.AlignmentScore+0.05)
			}
			notes[runStart].Rest = info
		}

		i = j
		if i <= runStart {
			i = runStart + 1
		}
	}

	return nil
}

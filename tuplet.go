package engrave

// tupletSpacingToleranceTicks is the §4.3 `spacing_tolerance`: interval
// deviation beyond this many ticks from a window's first interval marks
// the window as irregular and worth attempting to classify.
const tupletSpacingToleranceTicks = 20

// tupletMaxTimingError is the §4.3 `max_timing_error`: the maximum
// fractional deviation of a candidate window's span from the expected
// span for its note count.
const tupletMaxTimingError = 0.15

// tupletCandidateSizes are the note counts the detector will attempt to
// classify, in ascending order; each maps 1:1 onto a TupletType.
var tupletCandidateSizes = []int{3, 5, 6, 7}

func tupletTypeForCount(n int) TupletType {
	switch n {
	case 3:
		return TupletTriplet
	case 5:
		return TupletQuintuplet
	case 6:
		return TupletSextuplet
	case 7:
		return TupletSeptuplet
	default:
		return TupletNone
	}
}

// DetectTuplets scans notes in start-tick order for irregular-spacing
// groupings and annotates each member note's Tuplet field. Classification
// is best-effort: unclassified regions are simply left without a
// TupletInfo and the phase always returns nil. An iteration-cap breach
// ends the scan early and an arena allocation failure abandons the
// current window; either way annotations already made stay in place.
func DetectTuplets(notes []EnhancedTimedNote, arena *ScopedArena, cfg QualityConfig, divisions int, maxOuterIter, maxInnerIter int) error {
	arena.BeginPhase(PhaseTuplet)
	defer arena.EndPhase(len(notes))

	if divisions <= 0 || len(notes) == 0 {
		return nil
	}
	beatUnit := uint32(divisions)
	windowSpanMax := beatUnit * 2

	minConfidence := cfg.TupletMinConfidence
	if minConfidence <= 0 {
		minConfidence = 0.70
	}

	outerIterations := 0
	i := 0
	for i < len(notes) {
		outerIterations++
		if outerIterations > maxOuterIter {
			// Safety breach: abort the phase, keep whatever was
			// already annotated.
			return nil
		}

		notes[i].Flags.TupletProcessed = true

		if notes[i].Tuplet != nil {
			i++
			continue
		}

		windowSize := tupletWindowSize(notes, i, windowSpanMax, maxInnerIter)
		if windowSize < 3 {
			i++
			continue
		}

		matchedSize := tupletClassifyWindow(notes, i, windowSize, arena, beatUnit, minConfidence, maxInnerIter)

		stride := windowSize / 2
		if stride < 1 {
			stride = 1
		}
		_ = matchedSize
		i += stride
	}

	return nil
}

// tupletWindowSize returns how many consecutive notes starting at i fit
// within maxSpan ticks (measured start-to-start), bounded by the inner
// iteration cap and a sane upper bound so a dense cluster of short notes
// can't grow the window unboundedly.
func tupletWindowSize(notes []EnhancedTimedNote, i int, maxSpan uint32, maxInnerIter int) int {
	const hardCap = 32
	count := 1
	iterations := 0
	for i+count < len(notes) && count < hardCap {
		iterations++
		if iterations > maxInnerIter {
			break
		}
		span := satSub32(notes[i+count].Note.StartTick, notes[i].Note.StartTick)
		if span > maxSpan {
			break
		}
		count++
	}
	return count
}

// tupletClassifyWindow attempts to classify a subset of notes[i:i+windowSize]
// against each candidate size, largest first so septuplets/sextuplets are
// preferred over a spurious triplet match on their leading notes. On a
// successful classification it allocates one TupletInfo per member note
// and returns the matched size, or 0 if nothing classified.
func tupletClassifyWindow(notes []EnhancedTimedNote, i, windowSize int, arena *ScopedArena, beatUnit uint32, minConfidence float64, maxInnerIter int) int {
	for ci := len(tupletCandidateSizes) - 1; ci >= 0; ci-- {
		size := tupletCandidateSizes[ci]
		if size > windowSize {
			continue
		}
		if i+size > len(notes) {
			continue
		}

		window := notes[i : i+size]
		firstNote := window[0].Note.StartTick

		// already-annotated notes in this candidate window block reuse
		alreadyTaken := false
		for _, n := range window {
			if n.Tuplet != nil {
				alreadyTaken = true
				break
			}
		}
		if alreadyTaken {
			continue
		}

		lastNoteEnd := window[size-1].Note.EndTick()
		span := satSub32(lastNoteEnd, firstNote)

		firstInterval := satSub32(window[1].Note.StartTick, window[0].Note.StartTick)
		irregular := false
		innerIter := 0
		for k := 1; k < size-1; k++ {
			innerIter++
			if innerIter > maxInnerIter {
				break
			}
			interval := satSub32(window[k+1].Note.StartTick, window[k].Note.StartTick)
			diff := absInt64(int64(interval) - int64(firstInterval))
			if diff > tupletSpacingToleranceTicks {
				irregular = true
			}
		}
		// Per §4.3 step 2, a window of exactly one of the special
		// counts always attempts classification; interval
		// irregularity is an additional trigger for non-special
		// counts, but since size is always one of the candidate
		// counts here the trigger is already satisfied.
		_ = irregular

		expectedSpan := float64(beatUnit)
		timingError := 0.0
		if expectedSpan > 0 {
			timingError = absFloat(float64(span)-expectedSpan) / expectedSpan
		}
		if timingError > tupletMaxTimingError {
			continue
		}

		confidence := 1 - timingError/tupletMaxTimingError
		if confidence < minConfidence {
			continue
		}

		typ := tupletTypeForCount(size)
		tupletStart := firstNote
		tupletEnd := satAdd32(firstNote, beatUnit)

		for idx := 0; idx < size; idx++ {
			info, err := arena.AllocTuplet()
			if err != nil {
				return 0
			}
			*info = TupletInfo{
				Type:         typ,
				StartTick:    tupletStart,
				EndTick:      tupletEnd,
				BeatUnit:     beatUnit,
				Position:     idx,
				Confidence:   confidence,
				StartsTuplet: window[idx].Note.StartTick == tupletStart,
				EndsTuplet:   idx == size-1,
			}
			notes[i+idx].Tuplet = info
			notes[i+idx].Flags.TupletProcessed = true
		}

		return size
	}
	return 0
}

package engrave

// beamGapToleranceTicks is the §4.4 maximum inter-note gap (post
// saturating subtraction) that still allows a beam run to continue.
const beamGapToleranceTicks = 60

// sameTupletMembership reports whether two (possibly nil) tuplet
// annotations refer to the same detected tuplet span. Each note in a
// tuplet owns its own arena-allocated TupletInfo copy rather than a shared
// pointer (per §9's "avoid cyclic structures... shared integer id, not a
// back-reference" — here the [Type,StartTick,EndTick] triple plays that
// role), so membership is compared by value, not by pointer identity.
func sameTupletMembership(a, b *TupletInfo) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Type == b.Type && a.StartTick == b.StartTick && a.EndTick == b.EndTick
}

func beamable(n *EnhancedTimedNote, quarter uint32) bool {
	return !n.IsRest() && n.Note.Duration > 0 && n.Note.Duration < quarter
}

func beatIndex(tick, quarter uint32) uint32 {
	if quarter == 0 {
		return 0
	}
	return tick / quarter
}

// shouldBreakBeamRun decides whether the beam run ending at cur should
// close before considering next, per the §4.4 closing conditions: a rest,
// a long note, a beat boundary, a gap over tolerance, or (when tuplet
// coordination is on) a change of tuplet membership.
func shouldBreakBeamRun(cur, next *EnhancedTimedNote, quarter uint32, tupletCoordination bool) bool {
	if next.IsRest() {
		return true
	}
	if next.Note.Duration >= quarter {
		return true
	}
	if beatIndex(cur.Note.StartTick, quarter) != beatIndex(next.Note.StartTick, quarter) {
		return true
	}
	gap := satSub32(next.Note.StartTick, satAdd32(cur.Note.StartTick, cur.Note.Duration))
	if gap > beamGapToleranceTicks {
		return true
	}
	if tupletCoordination && !sameTupletMembership(cur.Tuplet, next.Tuplet) {
		return true
	}
	return false
}

// GroupBeams scans notes in start-tick order and assigns BeamingInfo to
// runs of two or more consecutive beamable notes, per §4.4. Complexity is
// linear; maxOuterIter bounds the scan exactly like the other phases.
func GroupBeams(notes []EnhancedTimedNote, arena *ScopedArena, cfg QualityConfig, divisions int, maxOuterIter int) error {
	arena.BeginPhase(PhaseBeam)
	defer arena.EndPhase(len(notes))

	if divisions <= 0 || len(notes) == 0 {
		return nil
	}
	quarter := uint32(divisions)
	sixteenth := quarter / 4

	iterations := 0
	i := 0
	for i < len(notes) {
		iterations++
		if iterations > maxOuterIter {
			return nil
		}

		notes[i].Flags.BeamingProcessed = true

		if !beamable(&notes[i], quarter) {
			i++
			continue
		}

		runStart := i
		j := i + 1
		for j < len(notes) {
			iterations++
			if iterations > maxOuterIter {
				break
			}
			notes[j].Flags.BeamingProcessed = true
			if shouldBreakBeamRun(&notes[j-1], &notes[j], quarter, cfg.EnableBeamTupletCoordination) {
				break
			}
			if !beamable(&notes[j], quarter) {
				break
			}
			j++
		}

		runLen := j - runStart
		if runLen >= 2 {
			groupID := runStart
			for k := runStart; k < j; k++ {
				info, err := arena.AllocBeaming()
				if err != nil {
					return nil
				}
				state := BeamContinue
				switch k {
				case runStart:
					state = BeamBegin
				case j - 1:
					state = BeamEnd
				}
				level := uint8(1)
				if notes[k].Note.Duration <= sixteenth {
					level = 2
				}
				beatPos := float64(notes[k].Note.StartTick%quarter) / float64(quarter)

				*info = BeamingInfo{
					State:        state,
					Level:        level,
					CanBeam:      true,
					BeatPosition: beatPos,
					GroupID:      groupID,
				}
				notes[k].Beaming = info
			}
		}

		i = j
		if i <= runStart {
			i = runStart + 1
		}
	}

	return nil
}

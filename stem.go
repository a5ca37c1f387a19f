package engrave

// stemMiddleLinePitch is the MIDI pitch treated as the staff's middle
// line for stem-direction purposes (B4 on a treble staff). Notes above it
// get downward stems by default; notes at or below it get upward stems.
const stemMiddleLinePitch = 71

func voiceStemPreference(voice uint8, fallback StemDirection) StemDirection {
	switch voice {
	case 1:
		return StemUp
	case 2:
		return StemDown
	default:
		return fallback
	}
}

// resolveSingleNoteDirection implements §4.7(b): pitch-vs-middle-line
// decides the base direction, then voice 1/2 preference overrides it.
func resolveSingleNoteDirection(pitch uint8, voice uint8) StemDirection {
	base := StemUp
	if int(pitch) > stemMiddleLinePitch {
		base = StemDown
	}
	return voiceStemPreference(voice, base)
}

// resolveBeamGroupDirection implements §4.7(a): the pitch furthest from
// the middle line decides the direction that minimizes total stem length
// across the group (the classic "outer note" engraving rule); ties (no
// pitch strictly further from the line than its mirror, or all pitches on
// the line) fall back to voice preference, defaulting up.
func resolveBeamGroupDirection(pitches []uint8, voice uint8) StemDirection {
	maxDist := -1
	extremeAbove := false
	ambiguous := true

	for _, p := range pitches {
		d := int(p) - stemMiddleLinePitch
		dist := d
		if dist < 0 {
			dist = -dist
		}
		if dist > maxDist {
			maxDist = dist
			extremeAbove = d > 0
			ambiguous = dist == 0
		} else if dist == maxDist && dist > 0 && (d > 0) != extremeAbove {
			ambiguous = true
		}
	}

	if maxDist <= 0 || ambiguous {
		return voiceStemPreference(voice, StemUp)
	}
	if extremeAbove {
		return StemDown
	}
	return StemUp
}

// ResolveStems assigns a StemInfo to every non-rest note, per §4.7.
func ResolveStems(notes []EnhancedTimedNote, arena *ScopedArena, maxOuterIter int) error {
	arena.BeginPhase(PhaseStem)
	defer arena.EndPhase(len(notes))

	groupPitches := make(map[int][]uint8)
	for i := range notes {
		if notes[i].Beaming != nil && !notes[i].IsRest() {
			gid := notes[i].Beaming.GroupID
			groupPitches[gid] = append(groupPitches[gid], notes[i].Note.Pitch)
		}
	}

	iterations := 0
	for i := range notes {
		iterations++
		if iterations > maxOuterIter {
			return nil
		}

		n := &notes[i]
		n.Flags.StemProcessed = true
		if n.IsRest() {
			continue
		}

		voice := n.Note.EffectiveVoice()
		inBeamGroup := n.Beaming != nil

		var direction StemDirection
		var groupIDPtr *int
		if inBeamGroup {
			gid := n.Beaming.GroupID
			groupIDPtr = &gid
			direction = resolveBeamGroupDirection(groupPitches[gid], voice)
		} else {
			direction = resolveSingleNoteDirection(n.Note.Pitch, voice)
		}

		info, err := arena.AllocStem()
		if err != nil {
			return nil
		}
		*info = StemInfo{
			Direction:      direction,
			BeamInfluenced: inBeamGroup,
			Voice:          voice,
			InBeamGroup:    inBeamGroup,
			BeamGroupID:    groupIDPtr,
			StaffPosition:  int(n.Note.Pitch) - 60,
		}
		n.Stem = info
	}

	return nil
}

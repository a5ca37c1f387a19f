package engrave

// dynamicsTable is a precomputed 128-entry velocity->dynamic lookup built
// once per preset (§4.6). Index 0 is unused (velocity 0 means rest and is
// never looked up).
type dynamicsTable [128]Dynamic

// buildDynamicsTable partitions [1,127] into eight ranges per the given
// upper bounds (inclusive), in ascending Dynamic order.
func buildDynamicsTable(bounds [7]uint8) dynamicsTable {
	var t dynamicsTable
	for v := 1; v <= 127; v++ {
		d := DynFFF
		for i, b := range bounds {
			if uint8(v) <= b {
				d = Dynamic(i)
				break
			}
		}
		t[v] = d
	}
	return t
}

var (
	// classicalDynamicsTable is the default preset: roughly even eighths
	// of the velocity range.
	classicalDynamicsTable = buildDynamicsTable([7]uint8{15, 31, 47, 63, 79, 95, 111})

	// romanticDynamicsTable widens the mf/f boundary for stronger
	// contrast between moderate and loud playing.
	romanticDynamicsTable = buildDynamicsTable([7]uint8{11, 23, 39, 55, 71, 95, 115})

	// modernDynamicsTable compresses the soft end (fewer ppp/pp steps
	// see real use).
	modernDynamicsTable = buildDynamicsTable([7]uint8{7, 19, 39, 63, 83, 99, 115})
)

func tableForPreset(preset DynamicsPreset) dynamicsTable {
	switch preset {
	case DynamicsRomantic:
		return romanticDynamicsTable
	case DynamicsModern:
		return modernDynamicsTable
	default:
		return classicalDynamicsTable
	}
}

// MapDynamics allocates a DynamicsInfo for every non-rest note whose
// velocity is in [1,127], using the preset's precomputed table. Every note
// the scan reaches gets DynamicsProcessed=true; a rest or a velocity-0 note
// gets no annotation. The mapping itself is a pure function of
// velocity; contextual collapsing of repeated identical dynamics into a
// single notated direction happens at emission time, not here.
func MapDynamics(notes []EnhancedTimedNote, arena *ScopedArena, preset DynamicsPreset, maxOuterIter int) error {
	arena.BeginPhase(PhaseDynamics)
	defer arena.EndPhase(len(notes))

	table := tableForPreset(preset)

	iterations := 0
	for i := range notes {
		iterations++
		if iterations > maxOuterIter {
			return nil
		}

		n := &notes[i]
		n.Flags.DynamicsProcessed = true

		if n.IsRest() || n.Note.Velocity == 0 || n.Note.Velocity > 127 {
			continue
		}

		info, err := arena.AllocDynamics()
		if err != nil {
			return nil
		}
		*info = DynamicsInfo{
			TimePosition: n.Note.StartTick,
			DynamicMark:  table[n.Note.Velocity],
		}
		n.Dynamics = info
	}

	return nil
}

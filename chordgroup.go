package engrave

import "sort"

// ChordGroup is a non-empty set of notes sharing an EXACT start tick
// (zero tolerance — §4.2). Duration is taken from the first note: a
// chord's notated duration is the duration of its first-encountered
// member.
type ChordGroup struct {
	StartTick uint32
	Duration  uint32
	Notes     []TimedNote
}

// GroupChords groups notes with exactly equal StartTick across all
// tracks, by pitch ascending within a chord, ordered by chord start tick.
// Tolerance is fixed at zero ticks: close-but-not-equal onsets are never
// merged, guarding against chord fusion that downstream MusicXML consumers
// (e.g. MuseScore) would reject.
//
// Complexity is O(n log n): a single stable sort on start tick (with pitch
// as a secondary key) followed by a linear run-grouping pass.
func GroupChords(notes []TimedNote) []ChordGroup {
	if len(notes) == 0 {
		return nil
	}

	sorted := make([]TimedNote, len(notes))
	copy(sorted, notes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartTick != sorted[j].StartTick {
			return sorted[i].StartTick < sorted[j].StartTick
		}
		return sorted[i].Pitch < sorted[j].Pitch
	})

	var groups []ChordGroup
	i := 0
	for i < len(sorted) {
		start := sorted[i].StartTick
		j := i
		for j < len(sorted) && sorted[j].StartTick == start {
			j++
		}
		groups = append(groups, ChordGroup{
			StartTick: start,
			Duration:  sorted[i].Duration,
			Notes:     append([]TimedNote(nil), sorted[i:j]...),
		})
		i = j
	}

	return groups
}

// chordOrderedIndices returns every index of notes ordered the same way
// GroupChords orders raw notes: start tick ascending, pitch ascending
// within an exact tie. The measure partitioner and the voice grouper both
// need chord members in this order (pitch ascending within a chord, never
// input order), so they read indices through this helper rather than
// duplicating the comparator GroupChords already establishes.
func chordOrderedIndices(notes []EnhancedTimedNote) []int {
	idx := make([]int, len(notes))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		na, nb := notes[idx[a]].Note, notes[idx[b]].Note
		if na.StartTick != nb.StartTick {
			return na.StartTick < nb.StartTick
		}
		return na.Pitch < nb.Pitch
	})
	return idx
}

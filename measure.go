package engrave

// maxMeasuresPerBatch and maxNotesPerMeasure are the §4.10 capacity caps
// the partitioner enforces regardless of configuration, the same way the
// pipeline's own circuit breaker caps batch size and complexity.
const (
	maxMeasuresPerBatch = 10000
	maxNotesPerMeasure  = 1000
)

// Measure is one notated measure: a tick span, the time signature it was
// partitioned under, and the notes (by index into the originating batch)
// assigned to it.
type Measure struct {
	Index        int
	StartTick    uint32
	EndTick      uint32
	TimeSigNum   uint8
	TimeSigDenom uint8
	MaxDuration  uint32
	NoteIdx      []int

	// FillerRestTicks is nonzero when the measure's content falls short of
	// MaxDuration by at least one 32nd note, left unfilled by the source
	// material rather than by a gap in partitioning.
	FillerRestTicks uint32

	// OverflowTicks is nonzero when a note assigned to this measure (by
	// its start tick) extends past EndTick — real notation would tie it
	// into the next measure, which this partitioner does not synthesize;
	// this field surfaces the overrun instead of dropping it silently.
	OverflowTicks uint32
}

// measureMaxDuration computes beats * (4/beat_type_denominator) *
// divisions_per_quarter (§3's Measure.max_duration), the tick span one
// measure covers under the given time signature.
func measureMaxDuration(timeSigNum, timeSigDenom uint8, divisions int) uint32 {
	if timeSigDenom == 0 || divisions <= 0 {
		return 0
	}
	return uint32(timeSigNum) * uint32(4*divisions) / uint32(timeSigDenom)
}

// PartitionMeasures assigns every chord to the measure its start tick falls
// within, under the time-signature-derived max_duration (§4.10), in
// start-tick order with pitch-ascending tie-breaking (chordOrderedIndices).
// For each measure it tracks the furthest tick any assigned note reaches:
// short of MaxDuration by at least a 32nd note, that gap is recorded as
// FillerRestTicks (EmitMusicXML does not write a rest for it); past
// MaxDuration, the overrun is
// recorded as OverflowTicks instead of being silently absorbed into the
// bucket with no record at all.
//
// It caps both the number of measures and the notes within any single
// measure per §4.10's stability limits, returning ErrSystemStabilityRisk if
// either cap would be exceeded rather than silently truncating the batch.
func PartitionMeasures(notes []EnhancedTimedNote, divisions int, timeSigNum, timeSigDenom uint8) ([]Measure, error) {
	if divisions <= 0 || len(notes) == 0 {
		return nil, nil
	}
	if timeSigNum == 0 {
		timeSigNum = 4
	}
	if timeSigDenom == 0 {
		timeSigDenom = 4
	}
	maxDuration := measureMaxDuration(timeSigNum, timeSigDenom, divisions)
	if maxDuration == 0 {
		return nil, nil
	}
	fillerThreshold := uint32(divisions) / 8 // one 32nd note

	var measures []Measure
	var highWater []uint32 // furthest in-capacity tick reached, parallel to measures
	byIndex := make(map[int]int)

	for _, i := range chordOrderedIndices(notes) {
		n := &notes[i]
		midx := int(n.Note.StartTick / maxDuration)

		pos, ok := byIndex[midx]
		if !ok {
			if len(measures) >= maxMeasuresPerBatch {
				return measures, ErrSystemStabilityRisk
			}
			start := uint32(midx) * maxDuration
			measures = append(measures, Measure{
				Index:        midx,
				StartTick:    start,
				EndTick:      satAdd32(start, maxDuration),
				TimeSigNum:   timeSigNum,
				TimeSigDenom: timeSigDenom,
				MaxDuration:  maxDuration,
			})
			highWater = append(highWater, 0)
			pos = len(measures) - 1
			byIndex[midx] = pos
		}

		if len(measures[pos].NoteIdx) >= maxNotesPerMeasure {
			return measures, ErrSystemStabilityRisk
		}
		measures[pos].NoteIdx = append(measures[pos].NoteIdx, i)

		reach := satAdd32(n.Note.StartTick-measures[pos].StartTick, n.Note.Duration)
		switch {
		case reach > maxDuration:
			if over := reach - maxDuration; over > measures[pos].OverflowTicks {
				measures[pos].OverflowTicks = over
			}
		case reach > highWater[pos]:
			highWater[pos] = reach
		}
	}

	for pos := range measures {
		if measures[pos].OverflowTicks > 0 {
			continue // already past capacity; nothing unused left to fill
		}
		if remaining := maxDuration - highWater[pos]; remaining >= fillerThreshold {
			measures[pos].FillerRestTicks = remaining
		}
	}

	sortMeasuresByIndex(measures)
	return measures, nil
}

// sortMeasuresByIndex orders measures ascending by index, the order the
// emitter requires. PartitionMeasures walks notes in start-tick order, so
// it already creates measures in ascending order; this pass leaves such a
// slice unchanged.
func sortMeasuresByIndex(measures []Measure) {
	for i := 1; i < len(measures); i++ {
		j := i
		for j > 0 && measures[j-1].Index > measures[j].Index {
			measures[j-1], measures[j] = measures[j], measures[j-1]
			j--
		}
	}
}

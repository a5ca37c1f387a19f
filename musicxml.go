package engrave

import (
	"bytes"
	"fmt"
)

// musicXMLHeader is the fixed declaration and DOCTYPE every emitted document
// starts with; MusicXML readers (including MuseScore) rely on the DOCTYPE to
// pick the right schema version.
const musicXMLHeader = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>
<!DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 4.0 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd">
`

// durationUnit is a lookup row mapping a duration expressed in units of
// 1/64 of a quarter note (one 256th note) to its MusicXML <type> name and
// dot count.
type durationUnit struct {
	units int
	name  string
	dots  int
}

// durationTable is ordered longest-first so the closest-above candidate is
// found before falling back to the nearest remaining entry.
var durationTable = []durationUnit{
	{768, "breve", 1},
	{512, "breve", 0},
	{384, "whole", 1},
	{256, "whole", 0},
	{192, "half", 1},
	{128, "half", 0},
	{96, "quarter", 1},
	{64, "quarter", 0},
	{48, "eighth", 1},
	{32, "eighth", 0},
	{24, "16th", 1},
	{16, "16th", 0},
	{12, "32nd", 1},
	{8, "32nd", 0},
	{6, "64th", 1},
	{4, "64th", 0},
	{3, "128th", 1},
	{2, "128th", 0},
	{1, "256th", 0},
}

// notatedDuration returns the duration a note should be measured against
// for <type>/<dot> purposes: its raw tick duration, unless it belongs to a
// tuplet, in which case the duration is scaled back to what a plain
// (non-tupleted) note of the same notated shape would occupy — the
// <time-modification> element carries the actual/normal ratio separately,
// while <duration> always reports the real tick length.
func notatedDuration(n *EnhancedTimedNote) uint32 {
	d := n.Note.Duration
	if n.Tuplet != nil {
		actual, normal := n.Tuplet.Type.ActualNormal()
		if normal > 0 {
			d = uint32(float64(d) * float64(actual) / float64(normal))
		}
	}
	return d
}

// noteTypeAndDots converts a tick duration to a MusicXML note type and dot
// count, rounding to the nearest 1/64-of-a-quarter unit. Any rounding produces a
// PrecisionWarning so callers can surface it without aborting emission.
func noteTypeAndDots(durationTicks uint32, divisions int) (name string, dots int, warn *PrecisionWarning) {
	if divisions <= 0 {
		return "quarter", 0, nil
	}
	exact := float64(durationTicks) * 64 / float64(divisions)
	units := int(exact + 0.5)

	best := durationTable[0]
	bestDiff := absInt64(int64(units) - int64(best.units))
	for _, d := range durationTable[1:] {
		diff := absInt64(int64(units) - int64(d.units))
		if diff < bestDiff {
			bestDiff = diff
			best = d
		}
	}

	if bestDiff != 0 || exact != float64(units) {
		warn = &PrecisionWarning{Tick: durationTicks, Divisions: divisions, PPQ: divisions, Rounded: best.units}
	}
	return best.name, best.dots, warn
}

// pitchClassNames maps a MIDI pitch-class (0-11) to a MusicXML step and
// alter, preferring sharps over enharmonic flats.
var pitchClassNames = [12]struct {
	step  string
	alter int
}{
	{"C", 0}, {"C", 1}, {"D", 0}, {"D", 1}, {"E", 0}, {"F", 0},
	{"F", 1}, {"G", 0}, {"G", 1}, {"A", 0}, {"A", 1}, {"B", 0},
}

func pitchToStepAlterOctave(pitch uint8) (step string, alter, octave int) {
	class := pitchClassNames[pitch%12]
	return class.step, class.alter, int(pitch)/12 - 1
}

func dynamicElementName(d Dynamic) string {
	return d.String()
}

// writeEscaped writes s as MusicXML character data, escaping the handful of
// characters that matter for well-formedness; part names are the only
// free-text field this emitter writes.
func writeEscaped(buf *bytes.Buffer, s string) {
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '"':
			buf.WriteString("&quot;")
		default:
			buf.WriteRune(r)
		}
	}
}

// scorePart is one <score-part>/<part> pair's worth of metadata: the
// instrument name and, when the source track carried a program-change
// event, its General MIDI program number. Parts without a known program
// still get a score-part entry so every MIDI track is represented.
type scorePart struct {
	id         string
	name       string
	hasProgram bool
	program    int
}

func partsFromTracks(tracks []TrackMetadata) []scorePart {
	if len(tracks) == 0 {
		return []scorePart{{id: "P1", name: "Part 1"}}
	}
	parts := make([]scorePart, len(tracks))
	for i, t := range tracks {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("Part %d", i+1)
		}
		parts[i] = scorePart{
			id:         fmt.Sprintf("P%d", i+1),
			name:       name,
			hasProgram: t.HasProgram,
			program:    t.Program,
		}
	}
	return parts
}

// EmitMusicXML renders a fully-annotated, measure-partitioned batch as a
// score-partwise MusicXML document. It returns the accumulated precision
// warnings from any duration that didn't divide evenly into the configured
// divisions, per §7. All notes are written under the first declared part;
// meta.Tracks only supplies the part-list's instrument metadata (§6.1), since
// the pipeline itself processes a single flattened note stream.
func EmitMusicXML(notes []EnhancedTimedNote, measures []Measure, divisions int, meta ScoreMetadata) ([]byte, []PrecisionWarning, error) {
	if divisions <= 0 {
		return nil, nil, fmt.Errorf("engrave: emission requires positive divisions, got %d", divisions)
	}

	timeSigNum, timeSigDenom := meta.TimeSigNum, meta.TimeSigDenom
	if timeSigNum == 0 {
		timeSigNum = 4
	}
	if timeSigDenom == 0 {
		timeSigDenom = 4
	}
	tempo := meta.TempoBPM
	if tempo <= 0 {
		tempo = 120
	}
	parts := partsFromTracks(meta.Tracks)
	partID := parts[0].id

	var buf bytes.Buffer
	var warnings []PrecisionWarning
	var lastDynamic *Dynamic

	buf.WriteString(musicXMLHeader)
	buf.WriteString(`<score-partwise version="4.0">` + "\n")
	buf.WriteString("  <part-list>\n")
	for _, p := range parts {
		fmt.Fprintf(&buf, `    <score-part id="%s">`+"\n", p.id)
		buf.WriteString("      <part-name>")
		writeEscaped(&buf, p.name)
		buf.WriteString("</part-name>\n")
		if p.hasProgram {
			fmt.Fprintf(&buf, "      <midi-instrument id=\"%s-I1\"><midi-program>%d</midi-program></midi-instrument>\n", p.id, p.program+1)
		}
		buf.WriteString("    </score-part>\n")
	}
	buf.WriteString("  </part-list>\n")
	fmt.Fprintf(&buf, `  <part id="%s">`+"\n", partID)

	for mi, measure := range measures {
		fmt.Fprintf(&buf, `    <measure number="%d">`+"\n", mi+1)
		if mi == 0 {
			buf.WriteString("      <attributes>\n")
			fmt.Fprintf(&buf, "        <divisions>%d</divisions>\n", divisions)
			buf.WriteString("        <key><fifths>0</fifths></key>\n")
			fmt.Fprintf(&buf, "        <time><beats>%d</beats><beat-type>%d</beat-type></time>\n", timeSigNum, timeSigDenom)
			buf.WriteString("        <clef><sign>G</sign><line>2</line></clef>\n")
			buf.WriteString("      </attributes>\n")
			fmt.Fprintf(&buf, "      <direction placement=\"above\">\n        <direction-type><metronome><beat-unit>quarter</beat-unit><per-minute>%g</per-minute></metronome></direction-type>\n        <sound tempo=\"%g\"/>\n      </direction>\n", tempo, tempo)
		}

		groups := GroupVoices(measure.NoteIdx, notes)
		for vi, group := range groups {
			consumed := emitVoice(&buf, notes, group, divisions, &lastDynamic, &warnings)
			if vi < len(groups)-1 {
				fmt.Fprintf(&buf, "      <backup><duration>%d</duration></backup>\n", consumed)
			}
		}

		buf.WriteString("      <barline location=\"right\"><bar-style>regular</bar-style></barline>\n")
		buf.WriteString("    </measure>\n")
	}

	fmt.Fprintf(&buf, "  </part>\n")
	buf.WriteString("</score-partwise>\n")
	return buf.Bytes(), warnings, nil
}

// emitVoice writes every note of one voice group and returns the total
// duration consumed (chord members do not advance it), used by the caller
// to size the <backup> before the next voice.
func emitVoice(buf *bytes.Buffer, notes []EnhancedTimedNote, group VoiceGroup, divisions int, lastDynamic **Dynamic, warnings *[]PrecisionWarning) uint32 {
	var consumed uint32
	skipUntil := uint32(0)

	for _, vn := range group.Notes {
		n := &notes[vn.Idx]

		if n.IsRest() {
			if n.Note.StartTick < skipUntil {
				continue // absorbed into an earlier consolidated rest
			}
			duration := n.Note.Duration
			if n.Rest != nil {
				duration = n.Rest.Duration
				skipUntil = satAdd32(n.Rest.StartTime, n.Rest.Duration)
			}
			if IsNegligibleRestDuration(duration, divisions) {
				consumed = satAdd32(consumed, duration)
				continue
			}
			emitRestNote(buf, duration, divisions, group.Voice, warnings)
			consumed = satAdd32(consumed, duration)
			continue
		}

		emitPitchedNote(buf, n, vn.IsChordMember, divisions, group.Voice, lastDynamic, warnings)
		if !vn.IsChordMember {
			consumed = satAdd32(consumed, n.Note.Duration)
		}
	}

	return consumed
}

func emitRestNote(buf *bytes.Buffer, duration uint32, divisions int, voice uint8, warnings *[]PrecisionWarning) {
	typeName, dots, warn := noteTypeAndDots(duration, divisions)
	if warn != nil {
		*warnings = append(*warnings, *warn)
	}
	buf.WriteString("      <note>\n        <rest/>\n")
	fmt.Fprintf(buf, "        <duration>%d</duration>\n", duration)
	fmt.Fprintf(buf, "        <voice>%d</voice>\n", voice)
	fmt.Fprintf(buf, "        <type>%s</type>\n", typeName)
	for i := 0; i < dots; i++ {
		buf.WriteString("        <dot/>\n")
	}
	buf.WriteString("      </note>\n")
}

func emitPitchedNote(buf *bytes.Buffer, n *EnhancedTimedNote, isChord bool, divisions int, voice uint8, lastDynamic **Dynamic, warnings *[]PrecisionWarning) {
	if n.Dynamics != nil && (*lastDynamic == nil || **lastDynamic != n.Dynamics.DynamicMark) {
		mark := n.Dynamics.DynamicMark
		fmt.Fprintf(buf, "      <direction placement=\"below\">\n        <direction-type><dynamics><%s/></dynamics></direction-type>\n        <sound dynamics=\"%d\"/>\n      </direction>\n", dynamicElementName(mark), n.Note.Velocity)
		*lastDynamic = &mark
	}

	step, alter, octave := pitchToStepAlterOctave(n.Note.Pitch)
	typeName, dots, warn := noteTypeAndDots(notatedDuration(n), divisions)
	if warn != nil {
		*warnings = append(*warnings, *warn)
	}

	buf.WriteString("      <note>\n")
	if isChord {
		buf.WriteString("        <chord/>\n")
	}
	buf.WriteString("        <pitch>\n")
	fmt.Fprintf(buf, "          <step>%s</step>\n", step)
	if alter != 0 {
		fmt.Fprintf(buf, "          <alter>%d</alter>\n", alter)
	}
	fmt.Fprintf(buf, "          <octave>%d</octave>\n", octave)
	buf.WriteString("        </pitch>\n")
	fmt.Fprintf(buf, "        <duration>%d</duration>\n", n.Note.Duration)
	fmt.Fprintf(buf, "        <voice>%d</voice>\n", voice)
	fmt.Fprintf(buf, "        <type>%s</type>\n", typeName)
	for i := 0; i < dots; i++ {
		buf.WriteString("        <dot/>\n")
	}

	if n.Tuplet != nil {
		actual, normal := n.Tuplet.Type.ActualNormal()
		fmt.Fprintf(buf, "        <time-modification><actual-notes>%d</actual-notes><normal-notes>%d</normal-notes></time-modification>\n", actual, normal)
	}
	if n.Stem != nil {
		fmt.Fprintf(buf, "        <stem>%s</stem>\n", n.Stem.Direction.String())
	}
	if n.Beaming != nil && n.Beaming.State != BeamNone {
		fmt.Fprintf(buf, "        <beam number=\"%d\">%s</beam>\n", n.Beaming.Level, n.Beaming.State.String())
	}

	if n.Tuplet != nil && (n.Tuplet.StartsTuplet || n.Tuplet.EndsTuplet) {
		buf.WriteString("        <notations>\n")
		if n.Tuplet.StartsTuplet {
			buf.WriteString("          <tuplet type=\"start\"/>\n")
		}
		if n.Tuplet.EndsTuplet {
			buf.WriteString("          <tuplet type=\"stop\"/>\n")
		}
		buf.WriteString("        </notations>\n")
	}

	buf.WriteString("      </note>\n")
}

// Package engrave implements the educational MIDI-to-MusicXML processing
// core: a multi-phase, memory-budgeted, conflict-resolving transformation
// from a flat sequence of timed notes into an annotated score graph that
// the MusicXML emitter renders mechanically.
//
// The pipeline is single-threaded and sequential: tuplet detection, beam
// grouping, rest optimization, dynamics mapping, cross-feature
// coordination, and stem direction resolution each run once, in that
// order, over annotations allocated from a ScopedArena (see arena.go).
// MIDI byte parsing, MXL zip packaging, CLI argument handling, and log
// sinks are external collaborators layered on top in cmd/miditomxl and
// miditrack.go/mxl.go; this package owns only the note-to-annotation
// transformation and the MusicXML text emission.
package engrave

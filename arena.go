package engrave

import "time"

// Phase identifies which stage of the pipeline is currently allocating,
// for per-phase accounting.
type Phase uint8

const (
	PhaseNone Phase = iota
	PhaseTuplet
	PhaseBeam
	PhaseRest
	PhaseDynamics
	PhaseCoordination
	PhaseStem
)

func (p Phase) String() string {
	switch p {
	case PhaseTuplet:
		return "tuplet"
	case PhaseBeam:
		return "beam"
	case PhaseRest:
		return "rest"
	case PhaseDynamics:
		return "dynamics"
	case PhaseCoordination:
		return "coordination"
	case PhaseStem:
		return "stem"
	default:
		return "none"
	}
}

// phaseUsage tracks bytes allocated for a single phase across the life of
// the arena (reset by ResetForNextCycle along with everything else except
// the cross-batch metrics fields).
type phaseUsage struct {
	bytes       int64
	allocations int64
}

// ScopedArena is a phase-aware bump allocator: annotations for one batch
// are allocated from growable typed pools and freed all at once by
// ResetForNextCycle. There is no per-allocation free list, matching §4.1
// and §9's "prefer a single typed bump allocator over a mixed free-list."
//
// It is not safe for concurrent use; the pipeline owns it exclusively for
// the duration of one batch (§5).
type ScopedArena struct {
	// errorRecovery, when true, makes Alloc* ignore maxBytes and allocate
	// normally instead of returning ErrOutOfMemory.
	errorRecovery bool
	maxBytes      int64

	activePhase Phase
	phaseStart  time.Time
	usage       map[Phase]*phaseUsage

	// Each annotation type is allocated from a growable list of fixed-size
	// blocks rather than one flat growable slice: growing the block list
	// only moves pointers-to-blocks, never the blocks themselves, so a
	// pointer returned by an earlier Alloc* call in the same cycle stays
	// valid for every later Alloc* call up to the next ResetForNextCycle.
	tuplets     []*[arenaBlockSize]TupletInfo
	tupletCount int
	beamings     []*[arenaBlockSize]BeamingInfo
	beamingCount int
	rests     []*[arenaBlockSize]RestInfo
	restCount int
	dynamics     []*[arenaBlockSize]DynamicsInfo
	dynamicCount int
	stems     []*[arenaBlockSize]StemInfo
	stemCount int

	// cross-batch metrics, monotone across ResetForNextCycle calls
	cycles          int64
	totalNotes      int64
	errorCount      int64
	totalBytes      int64
	peakBytes       int64
	resets          int64
	noteProcessNs   []int64 // moving sample of per-note processing time
}

// NewScopedArena creates an arena with the given maximum byte budget (0
// means unbounded) and error-recovery policy.
func NewScopedArena(maxBytes int64, errorRecovery bool) *ScopedArena {
	return &ScopedArena{
		errorRecovery: errorRecovery,
		maxBytes:      maxBytes,
		usage:         make(map[Phase]*phaseUsage),
	}
}

// BeginPhase records the active phase for subsequent allocations and
// starts its processing-time clock.
func (a *ScopedArena) BeginPhase(p Phase) {
	a.activePhase = p
	a.phaseStart = time.Now()
	if _, ok := a.usage[p]; !ok {
		a.usage[p] = &phaseUsage{}
	}
}

// EndPhase closes accounting for the active phase without freeing
// anything. noteCount is used to update the moving processing-time
// average.
func (a *ScopedArena) EndPhase(noteCount int) {
	if a.activePhase == PhaseNone {
		return
	}
	elapsed := time.Since(a.phaseStart)
	if noteCount > 0 {
		perNote := elapsed.Nanoseconds() / int64(noteCount)
		a.noteProcessNs = append(a.noteProcessNs, perNote)
		if len(a.noteProcessNs) > 64 {
			a.noteProcessNs = a.noteProcessNs[len(a.noteProcessNs)-64:]
		}
	}
	a.activePhase = PhaseNone
}

func (a *ScopedArena) track(size int64) bool {
	u := a.usage[a.activePhase]
	if u == nil {
		u = &phaseUsage{}
		a.usage[a.activePhase] = u
	}
	if a.maxBytes > 0 && a.totalBytes+size > a.maxBytes && !a.errorRecovery {
		a.errorCount++
		return false
	}
	u.bytes += size
	u.allocations++
	a.totalBytes += size
	if a.totalBytes > a.peakBytes {
		a.peakBytes = a.totalBytes
	}
	return true
}

// arenaBlockSize is the element count of one allocation block for every
// annotation type. Growing the block list never moves an already-handed-out
// block, so it never invalidates a pointer returned by an earlier Alloc*.
const arenaBlockSize = 256

// AllocTuplet returns a pointer to a fresh TupletInfo owned by the arena.
func (a *ScopedArena) AllocTuplet() (*TupletInfo, error) {
	if !a.track(int64(tupletInfoSize)) {
		return nil, ErrOutOfMemory
	}
	blockIdx, offset := a.tupletCount/arenaBlockSize, a.tupletCount%arenaBlockSize
	if blockIdx == len(a.tuplets) {
		a.tuplets = append(a.tuplets, &[arenaBlockSize]TupletInfo{})
	}
	a.tupletCount++
	return &a.tuplets[blockIdx][offset], nil
}

// AllocBeaming returns a pointer to a fresh BeamingInfo owned by the arena.
func (a *ScopedArena) AllocBeaming() (*BeamingInfo, error) {
	if !a.track(int64(beamingInfoSize)) {
		return nil, ErrOutOfMemory
	}
	blockIdx, offset := a.beamingCount/arenaBlockSize, a.beamingCount%arenaBlockSize
	if blockIdx == len(a.beamings) {
		a.beamings = append(a.beamings, &[arenaBlockSize]BeamingInfo{})
	}
	a.beamingCount++
	return &a.beamings[blockIdx][offset], nil
}

// AllocRest returns a pointer to a fresh RestInfo owned by the arena.
func (a *ScopedArena) AllocRest() (*RestInfo, error) {
	if !a.track(int64(restInfoSize)) {
		return nil, ErrOutOfMemory
	}
	blockIdx, offset := a.restCount/arenaBlockSize, a.restCount%arenaBlockSize
	if blockIdx == len(a.rests) {
		a.rests = append(a.rests, &[arenaBlockSize]RestInfo{})
	}
	a.restCount++
	return &a.rests[blockIdx][offset], nil
}

// AllocDynamics returns a pointer to a fresh DynamicsInfo owned by the arena.
func (a *ScopedArena) AllocDynamics() (*DynamicsInfo, error) {
	if !a.track(int64(dynamicsInfoSize)) {
		return nil, ErrOutOfMemory
	}
	blockIdx, offset := a.dynamicCount/arenaBlockSize, a.dynamicCount%arenaBlockSize
	if blockIdx == len(a.dynamics) {
		a.dynamics = append(a.dynamics, &[arenaBlockSize]DynamicsInfo{})
	}
	a.dynamicCount++
	return &a.dynamics[blockIdx][offset], nil
}

// AllocStem returns a pointer to a fresh StemInfo owned by the arena.
func (a *ScopedArena) AllocStem() (*StemInfo, error) {
	if !a.track(int64(stemInfoSize)) {
		return nil, ErrOutOfMemory
	}
	blockIdx, offset := a.stemCount/arenaBlockSize, a.stemCount%arenaBlockSize
	if blockIdx == len(a.stems) {
		a.stems = append(a.stems, &[arenaBlockSize]StemInfo{})
	}
	a.stemCount++
	return &a.stems[blockIdx][offset], nil
}

// approximate, portable struct sizes used purely for accounting; exact
// byte-for-byte accuracy is not required, only a stable relative cost.
const (
	tupletInfoSize   = 48
	beamingInfoSize  = 24
	restInfoSize     = 32
	dynamicsInfoSize = 24
	stemInfoSize     = 24
)

// ResetForNextCycle frees all annotations allocated since the last reset
// (or init). Every pointer previously returned by an Alloc* method becomes
// dangling; callers must not dereference EnhancedTimedNote annotation
// fields from a prior cycle after calling this. Cross-batch metrics
// (cycles, total notes, error count) carry forward.
func (a *ScopedArena) ResetForNextCycle(notesInBatch int) {
	a.tuplets, a.tupletCount = nil, 0
	a.beamings, a.beamingCount = nil, 0
	a.rests, a.restCount = nil, 0
	a.dynamics, a.dynamicCount = nil, 0
	a.stems, a.stemCount = nil, 0
	a.usage = make(map[Phase]*phaseUsage)
	a.totalBytes = 0
	a.activePhase = PhaseNone

	a.cycles++
	a.totalNotes += int64(notesInBatch)
	a.resets++
}

// ArenaMetrics is a plain-value snapshot of arena accounting, returned by
// Metrics(); per §9 "Metrics become a plain value type returned by
// get_metrics."
type ArenaMetrics struct {
	Cycles          int64
	TotalNotes      int64
	ErrorCount      int64
	PeakBytes       int64
	Resets          int64
	AvgNsPerNote    float64
	BytesPerPhase   map[Phase]int64
	AllocsPerPhase  map[Phase]int64
}

// Metrics returns a snapshot of the arena's cumulative accounting.
func (a *ScopedArena) Metrics() ArenaMetrics {
	m := ArenaMetrics{
		Cycles:         a.cycles,
		TotalNotes:     a.totalNotes,
		ErrorCount:     a.errorCount,
		PeakBytes:      a.peakBytes,
		Resets:         a.resets,
		BytesPerPhase:  make(map[Phase]int64, len(a.usage)),
		AllocsPerPhase: make(map[Phase]int64, len(a.usage)),
	}
	for p, u := range a.usage {
		m.BytesPerPhase[p] = u.bytes
		m.AllocsPerPhase[p] = u.allocations
	}
	if len(a.noteProcessNs) > 0 {
		var sum int64
		for _, v := range a.noteProcessNs {
			sum += v
		}
		m.AvgNsPerNote = float64(sum) / float64(len(a.noteProcessNs))
	}
	return m
}

// MemoryOverheadPercent reports peak arena bytes as a percentage of the
// base [TimedNote] footprint for baseNoteCount notes, used to check the
// <20% memory-overhead target (§4.1).
func (a *ScopedArena) MemoryOverheadPercent(baseNoteCount int) float64 {
	if baseNoteCount == 0 {
		return 0
	}
	const timedNoteSize = 16 // pitch+channel+velocity+voice+track padded + start+duration uint32s
	base := int64(baseNoteCount) * timedNoteSize
	if base == 0 {
		return 0
	}
	return float64(a.peakBytes) / float64(base) * 100
}

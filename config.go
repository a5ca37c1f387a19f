package engrave

import (
	"encoding/json"
	"fmt"
	"io"
)

// FeatureConfig enables or disables individual educational phases.
type FeatureConfig struct {
	Tuplet      bool `json:"tuplet"`
	Beam        bool `json:"beam"`
	Rest        bool `json:"rest"`
	Dynamics    bool `json:"dynamics"`
	Coordination bool `json:"coordination"`
}

// QualityConfig tunes detector thresholds and coordination behavior.
type QualityConfig struct {
	TupletMinConfidence           float64 `json:"tuplet_min_confidence"`
	EnableBeamTupletCoordination  bool    `json:"enable_beam_tuplet_coordination"`
	EnableRestBeamCoordination    bool    `json:"enable_rest_beam_coordination"`
	PrioritizeReadability         bool    `json:"prioritize_readability"`
}

// PerformanceConfig holds the circuit-breaker and performance-budget
// settings from §5/§6.
type PerformanceConfig struct {
	MaxProcessingTimePerNoteNs   int64   `json:"max_processing_time_per_note_ns"`
	MaxMemoryOverheadPercent     float64 `json:"max_memory_overhead_percent"`
	EnablePerformanceFallback    bool    `json:"enable_performance_fallback"`
	MaxTotalProcessingTimeSeconds float64 `json:"max_total_processing_time_seconds"`
	MaxIterationsPerLoop         int     `json:"max_iterations_per_loop"`
	MaxNotesPerBatch             int     `json:"max_notes_per_batch"`
	ComplexityThreshold          int     `json:"complexity_threshold"`
	EnableEmergencyCircuitBreaker bool   `json:"enable_emergency_circuit_breaker"`
}

// CoordinationFailureMode selects how the coordinator reacts to a conflict
// it cannot resolve with one of its fixed rules.
type CoordinationFailureMode string

const (
	FailureModeStrict   CoordinationFailureMode = "strict"
	FailureModeFallback CoordinationFailureMode = "fallback"
	FailureModeIgnore   CoordinationFailureMode = "ignore"
)

// CoordinationConfig holds the coordinator's policy settings.
type CoordinationConfig struct {
	FailureMode CoordinationFailureMode `json:"coordination_failure_mode"`
}

// DynamicsPreset selects one of the built-in velocity->dynamic tables.
type DynamicsPreset string

const (
	DynamicsClassical DynamicsPreset = "classical"
	DynamicsRomantic  DynamicsPreset = "romantic"
	DynamicsModern    DynamicsPreset = "modern"
)

// Config is the full recognized configuration surface. It is plain
// JSON-tagged data decoded straight off a reader, not a framework-driven
// settings object.
type Config struct {
	Features      FeatureConfig       `json:"features"`
	Quality       QualityConfig       `json:"quality"`
	Performance   PerformanceConfig   `json:"performance"`
	Coordination  CoordinationConfig  `json:"coordination"`
	DynamicsConfig DynamicsPreset     `json:"dynamics_config"`

	// Divisions is the MusicXML ticks-per-quarter resolution used by the
	// pipeline and emitter, required to interpret tick values. Defaults
	// to 480.
	Divisions int `json:"divisions"`
}

// DefaultConfig returns the documented default for every option (§6).
func DefaultConfig() Config {
	return Config{
		Features: FeatureConfig{
			Tuplet:       true,
			Beam:         true,
			Rest:         true,
			Dynamics:     true,
			Coordination: true,
		},
		Quality: QualityConfig{
			TupletMinConfidence:          0.70,
			EnableBeamTupletCoordination: true,
			EnableRestBeamCoordination:   true,
			PrioritizeReadability:        false,
		},
		Performance: PerformanceConfig{
			MaxProcessingTimePerNoteNs:    100,
			MaxMemoryOverheadPercent:      20,
			EnablePerformanceFallback:     true,
			MaxTotalProcessingTimeSeconds: 30,
			MaxIterationsPerLoop:          10000,
			MaxNotesPerBatch:              50000,
			ComplexityThreshold:           100000,
			EnableEmergencyCircuitBreaker: true,
		},
		Coordination: CoordinationConfig{
			FailureMode: FailureModeFallback,
		},
		DynamicsConfig: DynamicsClassical,
		Divisions:      480,
	}
}

// LoadConfig reads a JSON document into a Config seeded with defaults, so
// a partial document only overrides the fields it sets.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("engrave: decoding config: %w", err)
	}
	return cfg, nil
}

// Package config holds the Go-native configuration shapes a YAML loader
// (external) decodes into, with go-playground/validator/v10 struct tags
// checked by Validate (spec §6, SPEC_FULL.md §1.1). Orchestrator.Run takes
// its own orchestrator.Config and does not call Validate.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/turnforge/simcore/engine/core"
)

// VariableDefConfig is the YAML shape of one declared variable (spec
// §3.1) before it is handed to engine/schema.Build.
type VariableDefConfig struct {
	Kind          string   `yaml:"kind"           validate:"required,oneof=float int bool categorical"`
	Min           *float64 `yaml:"min,omitempty"`
	Max           *float64 `yaml:"max,omitempty"`
	AllowedValues []string `yaml:"allowed_values,omitempty"`
	Default       any      `yaml:"default"`
}

// StateVariablesConfig is `state_variables` (spec §6).
type StateVariablesConfig struct {
	AgentVars  map[string]VariableDefConfig `yaml:"agent_vars"`
	GlobalVars map[string]VariableDefConfig `yaml:"global_vars"`
}

// TerminationConfig is `simulation.termination`: an optional CEL
// predicate evaluated over the final global state (spec §4.10, §6).
type TerminationConfig struct {
	Predicate string `yaml:"predicate,omitempty"`
}

// SimulationConfig is `simulation`.
type SimulationConfig struct {
	Name                string              `yaml:"name"                 validate:"required"`
	MaxTurns            int                 `yaml:"max_turns"            validate:"required,gt=0"`
	CheckpointInterval  *int                `yaml:"checkpoint_interval,omitempty" validate:"omitempty,gt=0"`
	Termination         *TerminationConfig  `yaml:"termination,omitempty"`
}

// AgentConfig is one entry of `agents[]`.
type AgentConfig struct {
	Name            string         `yaml:"name"                       validate:"required"`
	Type            string         `yaml:"type"                       validate:"required"`
	InitialLocation string         `yaml:"initial_location,omitempty"`
	InitialState    map[string]any `yaml:"initial_state,omitempty"`
}

// SpatialConfig is `spatial`.
type SpatialConfig struct {
	TopologyType       string                     `yaml:"topology_type"                 validate:"required,oneof=grid hex_grid network regions"`
	Grid               *GridSpatialConfig         `yaml:"grid,omitempty"`
	HexGrid            *HexGridSpatialConfig      `yaml:"hex_grid,omitempty"`
	NetworkFile        *NetworkFileSpatialConfig  `yaml:"network_file,omitempty"`
	Regions            *RegionsSpatialConfig      `yaml:"regions,omitempty"`
	LocationAttributes map[string]map[string]any  `yaml:"location_attributes,omitempty"`
	AdditionalNetworks map[string][][2]string     `yaml:"additional_networks,omitempty"`
}

type GridSpatialConfig struct {
	Width        int  `yaml:"width"        validate:"required,gt=0"`
	Height       int  `yaml:"height"       validate:"required,gt=0"`
	Connectivity int  `yaml:"connectivity" validate:"required,oneof=4 8"`
	Wrapping     bool `yaml:"wrapping"`
}

type HexGridSpatialConfig struct {
	Radius int `yaml:"radius" validate:"gte=0"`
}

type NetworkFileSpatialConfig struct {
	EdgesFile string `yaml:"edges_file" validate:"required"`
}

type RegionsSpatialConfig struct {
	GeoJSONFile string `yaml:"geojson_file" validate:"required"`
}

// ObservabilityConfig is `observability`.
type ObservabilityConfig struct {
	Radius *int `yaml:"radius,omitempty" validate:"omitempty,gte=0"`
}

// LLMConfig is `llm`.
type LLMConfig struct {
	Model       string  `yaml:"model"                 validate:"required"`
	Host        string  `yaml:"host,omitempty"`
	Timeout     string  `yaml:"timeout,omitempty"`
	MaxRetries  int     `yaml:"max_retries"           validate:"gte=0"`
	Temperature float64 `yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
}

// ValidatorConfig is `validator`.
type ValidatorConfig struct {
	Type       string `yaml:"type"       validate:"required"`
	Permissive bool   `yaml:"permissive"`
}

// EngineConfig is `engine`.
type EngineConfig struct {
	Type string `yaml:"type" validate:"required"`
}

// LoggingConfig is `logging`.
type LoggingConfig struct {
	Level  string `yaml:"level"  validate:"required,oneof=DEBUG INFO WARNING ERROR"`
	Format string `yaml:"format" validate:"required,oneof=json console auto"`
}

// SimulationDefinition is the full decoded YAML document (spec §6's
// exhaustive top-level key table). Unrecognized top-level keys are a
// fatal config error — that strictness is enforced by the external YAML
// loader's strict-decode mode, not by this struct.
type SimulationDefinition struct {
	Simulation     SimulationConfig     `yaml:"simulation"      validate:"required"`
	StateVariables StateVariablesConfig `yaml:"state_variables" validate:"required"`
	Agents         []AgentConfig        `yaml:"agents"`
	Engine         EngineConfig         `yaml:"engine"          validate:"required"`
	Validator      ValidatorConfig      `yaml:"validator"       validate:"required"`
	Spatial        *SpatialConfig       `yaml:"spatial,omitempty"`
	Observability  ObservabilityConfig  `yaml:"observability,omitempty"`
	LLM            LLMConfig            `yaml:"llm"             validate:"required"`
	Logging        LoggingConfig        `yaml:"logging"         validate:"required"`
}

// Validate runs struct-tag validation, producing a ConfigError on the
// first violation (fail fast, never start a run; spec §6, §7).
func Validate(def *SimulationDefinition) error {
	v := validator.New()
	if err := v.Struct(def); err != nil {
		return core.NewError(fmt.Errorf("invalid configuration: %w", err), core.CodeConfigError, nil)
	}
	return nil
}

// ParseDuration parses a Go duration string, falling back to
// go-str2duration/v2 for the extended formats (e.g. "1d") the stdlib
// parser rejects (spec §5's per-call/per-turn timeouts).
func ParseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, core.NewError(fmt.Errorf("invalid duration %q: %w", s, err), core.CodeConfigError, nil)
	}
	return d, nil
}

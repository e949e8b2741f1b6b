package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() *SimulationDefinition {
	return &SimulationDefinition{
		Simulation:     SimulationConfig{Name: "trade-run", MaxTurns: 100},
		StateVariables: StateVariablesConfig{AgentVars: map[string]VariableDefConfig{}, GlobalVars: map[string]VariableDefConfig{}},
		Engine:         EngineConfig{Type: "trade"},
		Validator:      ValidatorConfig{Type: "llm", Permissive: true},
		LLM:            LLMConfig{Model: "llama3", MaxRetries: 1, Temperature: 0.5},
		Logging:        LoggingConfig{Level: "INFO", Format: "console"},
	}
}

func TestValidateAcceptsAWellFormedDefinition(t *testing.T) {
	require.NoError(t, Validate(validDefinition()))
}

func TestValidateRejectsMissingSimulationName(t *testing.T) {
	def := validDefinition()
	def.Simulation.Name = ""
	require.Error(t, Validate(def))
}

func TestValidateRejectsNonPositiveMaxTurns(t *testing.T) {
	def := validDefinition()
	def.Simulation.MaxTurns = 0
	require.Error(t, Validate(def))
}

func TestValidateRejectsUnknownLoggingLevel(t *testing.T) {
	def := validDefinition()
	def.Logging.Level = "VERBOSE"
	require.Error(t, Validate(def))
}

func TestValidateRejectsGridWithInvalidConnectivity(t *testing.T) {
	def := validDefinition()
	def.Spatial = &SpatialConfig{TopologyType: "grid", Grid: &GridSpatialConfig{Width: 3, Height: 3, Connectivity: 6}}
	require.Error(t, Validate(def))
}

func TestParseDurationAcceptsGoFormat(t *testing.T) {
	d, err := ParseDuration("90s", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestParseDurationFallsBackToStr2Duration(t *testing.T) {
	d, err := ParseDuration("1d", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)
}

func TestParseDurationEmptyUsesFallback(t *testing.T) {
	d, err := ParseDuration("", 42*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, d)
}

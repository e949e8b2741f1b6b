package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/spatial"
	"github.com/turnforge/simcore/engine/state"
)

func buildSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sc, err := schema.Build(
		map[string]schema.VariableDefinition{"gold": {Kind: schema.KindInt, Default: int64(0)}},
		map[string]schema.VariableDefinition{"season": {Kind: schema.KindCategorical, AllowedValues: []string{"spring", "winter"}, Default: "spring"}},
	)
	require.NoError(t, err)
	return sc
}

func TestAllocateRunIDIncrementsSequence(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	now := time.Date(2025, 10, 1, 14, 30, 25, 0, time.UTC)

	first, err := s.AllocateRunID("my sim/v2", 3, now)
	require.NoError(t, err)
	assert.Equal(t, "my_sim_v2_3agents_20251001_143025_01", first)

	require.NoError(t, s.Save(first, state.Initial(buildSchema(t)), nil, false))

	second, err := s.AllocateRunID("my sim/v2", 3, now)
	require.NoError(t, err)
	assert.Equal(t, "my_sim_v2_3agents_20251001_143025_02", second)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	sc := buildSchema(t)
	s := New(t.TempDir())
	snap := state.Initial(sc)
	rec, err := state.NewAgentRecord(sc, map[string]any{"gold": int64(7)}, []byte(`{"notes":"hi"}`))
	require.NoError(t, err)
	snap.Agents["alice"] = rec
	snap.Turn = 3

	require.NoError(t, s.Save("run1", snap, nil, false))

	loaded, err := s.Load("run1", -1, sc)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Turn)
	assert.Equal(t, int64(7), loaded.Agents["alice"].Vars["gold"].Raw())
	assert.JSONEq(t, `{"notes":"hi"}`, string(loaded.Agents["alice"].Memory))
}

func TestSaveWritesTurnFileOnInterval(t *testing.T) {
	sc := buildSchema(t)
	s := New(t.TempDir())
	snap := state.Initial(sc)
	snap.Turn = 10
	interval := 5

	require.NoError(t, s.Save("run1", snap, &interval, false))
	turns, err := s.ListCheckpointTurns("run1")
	require.NoError(t, err)
	assert.Equal(t, []int{10}, turns)
}

func TestSaveSkipsTurnFileOffInterval(t *testing.T) {
	sc := buildSchema(t)
	s := New(t.TempDir())
	snap := state.Initial(sc)
	snap.Turn = 7
	interval := 5

	require.NoError(t, s.Save("run1", snap, &interval, false))
	turns, err := s.ListCheckpointTurns("run1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestLoadRejectsSchemaFingerprintMismatch(t *testing.T) {
	sc := buildSchema(t)
	s := New(t.TempDir())
	require.NoError(t, s.Save("run1", state.Initial(sc), nil, false))

	otherSchema, err := schema.Build(
		map[string]schema.VariableDefinition{"silver": {Kind: schema.KindInt, Default: int64(0)}},
		map[string]schema.VariableDefinition{},
	)
	require.NoError(t, err)

	_, err = s.Load("run1", -1, otherSchema)
	require.Error(t, err)
}

func TestLoadMissingFileReturnsRemediationError(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Load("nonexistent", -1, buildSchema(t))
	require.Error(t, err)
}

func TestSaveAndLoadRoundTripsSpatialState(t *testing.T) {
	sc := buildSchema(t)
	s := New(t.TempDir())
	sp, err := spatial.Create(spatial.Config{TopologyType: spatial.TopologyGrid, Grid: &spatial.GridConfig{Width: 2, Height: 2, Connectivity: 4}})
	require.NoError(t, err)
	sp, err = spatial.MoveAgentsBatch(sp, map[string]string{"alice": "0,0"})
	require.NoError(t, err)
	snap := state.Initial(sc)
	rec, err := state.NewAgentRecord(sc, nil, nil)
	require.NoError(t, err)
	snap.Agents["alice"] = rec
	snap.Spatial = sp

	require.NoError(t, s.Save("run1", snap, nil, false))
	loaded, err := s.Load("run1", -1, sc)
	require.NoError(t, err)
	require.NotNil(t, loaded.Spatial)
	assert.Equal(t, "0,0", loaded.Spatial.AgentPositions["alice"])
	assert.True(t, spatial.IsAdjacent(loaded.Spatial, "0,0", "0,1", ""))
}

func TestShouldSave(t *testing.T) {
	five := 5
	t.Run("Should save on final regardless of interval", func(t *testing.T) {
		assert.True(t, ShouldSave(3, nil, true))
	})
	t.Run("Should save when turn is a positive multiple of interval", func(t *testing.T) {
		assert.True(t, ShouldSave(10, &five, false))
	})
	t.Run("Should not save turn 0 even if divisible", func(t *testing.T) {
		assert.False(t, ShouldSave(0, &five, false))
	})
	t.Run("Should not save off-interval turns", func(t *testing.T) {
		assert.False(t, ShouldSave(7, &five, false))
	})
	t.Run("Should not save when no interval is configured", func(t *testing.T) {
		assert.False(t, ShouldSave(10, nil, false))
	})
}

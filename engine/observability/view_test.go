package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/spatial"
	"github.com/turnforge/simcore/engine/state"
)

func buildSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sc, err := schema.Build(
		map[string]schema.VariableDefinition{
			"gold":   {Kind: schema.KindInt, Default: int64(0)},
			"secret": {Kind: schema.KindInt, Default: int64(0)},
		},
		map[string]schema.VariableDefinition{},
	)
	require.NoError(t, err)
	return sc
}

func TestFilterHidesOtherAgentsPrivateVars(t *testing.T) {
	sc := buildSchema(t)
	snap := state.Initial(sc)
	a, err := state.NewAgentRecord(sc, map[string]any{"gold": int64(5), "secret": int64(9)}, nil)
	require.NoError(t, err)
	b, err := state.NewAgentRecord(sc, map[string]any{"gold": int64(7), "secret": int64(3)}, nil)
	require.NoError(t, err)
	snap.Agents["a"] = a
	snap.Agents["b"] = b

	vis := FieldVisibility{Public: map[string]bool{"gold": true, "secret": false}}
	view := Filter("a", snap, -1, "", vis)

	t.Run("Should include own record in full", func(t *testing.T) {
		assert.Equal(t, int64(9), view.Own.Vars["secret"].Raw())
	})

	t.Run("Should expose only public vars of other agents", func(t *testing.T) {
		_, hasSecret := view.OtherAgents["b"]["secret"]
		assert.False(t, hasSecret)
		assert.Equal(t, int64(7), view.OtherAgents["b"]["gold"].Raw())
	})
}

func TestFilterRadiusDominatesPublicFilter(t *testing.T) {
	sc := buildSchema(t)
	sp, err := spatial.Create(spatial.Config{
		TopologyType: spatial.TopologyGrid,
		Grid:         &spatial.GridConfig{Width: 5, Height: 5, Connectivity: 4},
	})
	require.NoError(t, err)
	snap := state.Initial(sc)
	near, _ := state.NewAgentRecord(sc, nil, nil)
	far, _ := state.NewAgentRecord(sc, nil, nil)
	snap.Agents["near"] = near
	snap.Agents["far"] = far
	sp, err = spatial.MoveAgentsBatch(sp, map[string]string{"near": "0,0", "far": "4,4"})
	require.NoError(t, err)
	snap.Spatial = sp

	view := Filter("near", snap, 1, "", FieldVisibility{})

	t.Run("Should exclude agents outside the spatial radius regardless of field visibility", func(t *testing.T) {
		_, ok := view.OtherAgents["far"]
		assert.False(t, ok)
	})
}

func TestFilterWithNoSpatialStateKeepsEveryAgentVisible(t *testing.T) {
	sc := buildSchema(t)
	snap := state.Initial(sc)
	a, _ := state.NewAgentRecord(sc, nil, nil)
	b, _ := state.NewAgentRecord(sc, nil, nil)
	snap.Agents["a"] = a
	snap.Agents["b"] = b

	view := Filter("a", snap, 3, "", FieldVisibility{})
	_, ok := view.OtherAgents["b"]
	assert.True(t, ok)
}

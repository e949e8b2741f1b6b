package checkpoint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnforge/simcore/engine/spatial"
	"github.com/turnforge/simcore/engine/state"
)

// TestFromSnapshotIsByteDeterministic guards against map-iteration order
// leaking into checkpoint bytes: paused_agents and network edges must
// serialize in a stable order regardless of how many times the
// underlying Go maps are walked (spec §8 bytewise-identical checkpoints).
func TestFromSnapshotIsByteDeterministic(t *testing.T) {
	sc := buildSchema(t)
	sp, err := spatial.Create(spatial.Config{TopologyType: spatial.TopologyGrid, Grid: &spatial.GridConfig{Width: 3, Height: 1, Connectivity: 4}})
	require.NoError(t, err)
	sp, err = spatial.CreateNetwork(sp, "roads", []spatial.Edge{
		spatial.CanonicalEdge("1,0", "0,0"),
		spatial.CanonicalEdge("2,0", "1,0"),
		spatial.CanonicalEdge("0,0", "2,0"),
	}, nil)
	require.NoError(t, err)

	snap := state.Initial(sc)
	for _, name := range []string{"zeta", "alice", "mike", "bob"} {
		rec, err := state.NewAgentRecord(sc, nil, nil)
		require.NoError(t, err)
		snap.Agents[name] = rec
		snap.PausedAgents[name] = struct{}{}
	}
	snap.Spatial = sp

	var first []byte
	for i := 0; i < 20; i++ {
		doc := fromSnapshot(TypeInterval, "2025-01-01T00:00:00Z", snap)
		b, err := json.Marshal(doc)
		require.NoError(t, err)
		if i == 0 {
			first = b
			continue
		}
		assert.Equal(t, string(first), string(b), "checkpoint bytes must not depend on map iteration order")
	}
}

func TestSnapshotFingerprintIsStableAcrossPausedAgentOrder(t *testing.T) {
	sc := buildSchema(t)
	snap := state.Initial(sc)
	for _, name := range []string{"zeta", "alice", "mike", "bob"} {
		rec, err := state.NewAgentRecord(sc, nil, nil)
		require.NoError(t, err)
		snap.Agents[name] = rec
		snap.PausedAgents[name] = struct{}{}
	}

	var first string
	for i := 0; i < 20; i++ {
		fp, err := state.Fingerprint(snap)
		require.NoError(t, err)
		if i == 0 {
			first = fp
			continue
		}
		assert.Equal(t, first, fp)
	}
}

package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGrid(t *testing.T) {
	t.Run("Should build a 3x3 4-connected grid with no wrapping", func(t *testing.T) {
		s, err := Create(Config{
			TopologyType: TopologyGrid,
			Grid:         &GridConfig{Width: 3, Height: 3, Connectivity: 4, Wrapping: false},
		})
		require.NoError(t, err)
		assert.Len(t, s.Locations, 9)
		assert.ElementsMatch(t, []string{"0,1", "1,0"}, GetNeighbors(s, "0,0", ""))
	})
}

func TestShortestPathScenarioF(t *testing.T) {
	t.Run("Should return the lexicographically earliest length-5 path", func(t *testing.T) {
		s, err := Create(Config{
			TopologyType: TopologyGrid,
			Grid:         &GridConfig{Width: 3, Height: 3, Connectivity: 4, Wrapping: false},
		})
		require.NoError(t, err)

		path := ShortestPath(s, "0,0", "2,2", "")
		assert.Equal(t, []string{"0,0", "0,1", "0,2", "1,2", "2,2"}, path)
		assert.Equal(t, 4, GetDistance(s, "0,0", "2,2", ""))
	})

	t.Run("Should return -1 distance and nil path when unreachable", func(t *testing.T) {
		s, err := Create(Config{
			TopologyType: TopologyGrid,
			Grid:         &GridConfig{Width: 3, Height: 3, Connectivity: 4, Wrapping: false},
		})
		require.NoError(t, err)
		isolated, err := RemoveNetwork(s, "isolated-placeholder")
		require.NoError(t, err) // removing an absent non-default network is a no-op
		assert.Equal(t, -1, GetDistance(isolated, "0,0", "nowhere", ""))
		assert.Nil(t, ShortestPath(isolated, "0,0", "nowhere", ""))
	})
}

func TestHexGrid(t *testing.T) {
	t.Run("Should include the center and its six neighbors for radius 1", func(t *testing.T) {
		s, err := Create(Config{TopologyType: TopologyHexGrid, HexGrid: &HexGridConfig{Radius: 1}})
		require.NoError(t, err)
		assert.Len(t, s.Locations, 7)
		assert.Len(t, GetNeighbors(s, "0,0", ""), 6)
	})
}

func TestMoveAgentsBatchAtomic(t *testing.T) {
	s, err := Create(Config{TopologyType: TopologyGrid, Grid: &GridConfig{Width: 2, Height: 2, Connectivity: 4}})
	require.NoError(t, err)

	t.Run("Should apply all moves when every target exists", func(t *testing.T) {
		out, err := MoveAgentsBatch(s, map[string]string{"a": "0,0", "b": "1,1"})
		require.NoError(t, err)
		assert.Equal(t, "0,0", GetAgentPosition(out, "a"))
		assert.Equal(t, "1,1", GetAgentPosition(out, "b"))
	})

	t.Run("Should apply none when any target is invalid", func(t *testing.T) {
		_, err := MoveAgentsBatch(s, map[string]string{"a": "0,0", "b": "9,9"})
		require.Error(t, err)
		assert.Equal(t, "", GetAgentPosition(s, "a"))
	})
}

func TestRemoveNetworkRejectsDefault(t *testing.T) {
	s, err := Create(Config{TopologyType: TopologyGrid, Grid: &GridConfig{Width: 2, Height: 2, Connectivity: 4}})
	require.NoError(t, err)

	t.Run("Should reject removing the default network", func(t *testing.T) {
		_, err := RemoveNetwork(s, DefaultNetwork)
		require.Error(t, err)
	})

	t.Run("Should allow removing a non-default network", func(t *testing.T) {
		withNet, err := CreateNetwork(s, "trade", []Edge{{"0,0", "1,1"}}, nil)
		require.NoError(t, err)
		out, err := RemoveNetwork(withNet, "trade")
		require.NoError(t, err)
		_, ok := out.Networks["trade"]
		assert.False(t, ok)
	})
}

func TestRemoveConnectionIdempotent(t *testing.T) {
	s, err := Create(Config{TopologyType: TopologyGrid, Grid: &GridConfig{Width: 2, Height: 2, Connectivity: 4}})
	require.NoError(t, err)

	t.Run("Should return an equal state when removing an absent connection", func(t *testing.T) {
		before, err := RemoveConnection(s, "0,0", "1,1")
		require.NoError(t, err)
		after, err := RemoveConnection(before, "0,0", "1,1")
		require.NoError(t, err)
		assert.Equal(t, before.Connections, after.Connections)
	})
}

func TestFilterStateByProximity(t *testing.T) {
	s, err := Create(Config{TopologyType: TopologyGrid, Grid: &GridConfig{Width: 3, Height: 3, Connectivity: 4}})
	require.NoError(t, err)
	s, err = MoveAgentsBatch(s, map[string]string{"near": "0,0", "far": "2,2"})
	require.NoError(t, err)

	t.Run("Should exclude agents beyond the radius", func(t *testing.T) {
		filtered := FilterStateByProximity(s, "near", 1, "")
		_, hasNear := filtered.AgentPositions["near"]
		_, hasFar := filtered.AgentPositions["far"]
		assert.True(t, hasNear)
		assert.False(t, hasFar)
	})
}

func TestQueriesSafeOnNilState(t *testing.T) {
	t.Run("Should return safe defaults for every query when state is nil", func(t *testing.T) {
		var s *State
		assert.Equal(t, "", GetAgentPosition(s, "a"))
		assert.Nil(t, GetNeighbors(s, "x", ""))
		assert.Equal(t, -1, GetDistance(s, "x", "y", ""))
		assert.False(t, IsAdjacent(s, "x", "y", ""))
		assert.Nil(t, ShortestPath(s, "x", "y", ""))
		assert.Nil(t, GetAgentsAt(s, "x"))
		assert.Nil(t, GetAgentsWithin(s, "x", 1, ""))
		assert.False(t, HasConnection(s, "a", "b"))
	})
}

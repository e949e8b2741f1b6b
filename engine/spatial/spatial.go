// Package spatial implements the pluggable topology subsystem (spec §3.4,
// §4.3): a factory over grid/hex_grid/network/regions topologies,
// read-only queries that are total and safe-by-default, and engine-only
// mutations that always return a new State.
package spatial

import (
	"fmt"
	"sort"

	"github.com/turnforge/simcore/engine/core"
)

// TopologyType selects which concrete topology a State was built from.
type TopologyType string

const (
	TopologyGrid    TopologyType = "grid"
	TopologyHexGrid TopologyType = "hex_grid"
	TopologyNetwork TopologyType = "network"
	TopologyRegions TopologyType = "regions"
)

// DefaultNetwork is the always-present, non-removable network name.
const DefaultNetwork = "default"

// Location is one addressable point in the topology.
type Location struct {
	ID         string
	Attributes map[string]any
	Metadata   map[string]any
}

// Edge is a canonicalized (sorted) unordered pair of location IDs.
type Edge [2]string

// CanonicalEdge sorts a and b so that equal pairs compare equal
// regardless of argument order.
func CanonicalEdge(a, b string) Edge {
	if a <= b {
		return Edge{a, b}
	}
	return Edge{b, a}
}

// Network is a named set of edges between locations.
type Network struct {
	Name       string
	Edges      map[Edge]struct{}
	Attributes map[string]any
}

// ConnectionKey is the canonical key for a pairwise Connection.
type ConnectionKey = Edge

// Connection describes a typed link between two locations, independent
// of network membership.
type Connection struct {
	Type          string
	Attributes    map[string]any
	Bidirectional bool
}

// State is the full spatial world state (spec §3.4).
type State struct {
	TopologyType   TopologyType
	AgentPositions map[string]string // agent name -> location id
	Locations      map[string]Location
	Networks       map[string]Network
	Connections    map[ConnectionKey]Connection
}

// Clone returns a deep-enough copy that mutation helpers can build on
// without aliasing the receiver's maps.
func (s State) Clone() State {
	out := State{
		TopologyType:   s.TopologyType,
		AgentPositions: make(map[string]string, len(s.AgentPositions)),
		Locations:      make(map[string]Location, len(s.Locations)),
		Networks:       make(map[string]Network, len(s.Networks)),
		Connections:    make(map[ConnectionKey]Connection, len(s.Connections)),
	}
	for k, v := range s.AgentPositions {
		out.AgentPositions[k] = v
	}
	for k, v := range s.Locations {
		out.Locations[k] = Location{ID: v.ID, Attributes: copyAnyMap(v.Attributes), Metadata: copyAnyMap(v.Metadata)}
	}
	for k, v := range s.Networks {
		edges := make(map[Edge]struct{}, len(v.Edges))
		for e := range v.Edges {
			edges[e] = struct{}{}
		}
		out.Networks[k] = Network{Name: v.Name, Edges: edges, Attributes: copyAnyMap(v.Attributes)}
	}
	for k, v := range s.Connections {
		out.Connections[k] = Connection{Type: v.Type, Attributes: copyAnyMap(v.Attributes), Bidirectional: v.Bidirectional}
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// CheckInvariants validates the spatial invariants from spec §3.4/§8.
func CheckInvariants(s *State) error {
	if s == nil {
		return nil
	}
	for agent, loc := range s.AgentPositions {
		if _, ok := s.Locations[loc]; !ok {
			return core.NewError(
				fmt.Errorf("agent %q positioned at unknown location %q", agent, loc),
				core.CodeSpatialInvariant, map[string]any{"agent": agent, "location": loc},
			)
		}
	}
	for name, net := range s.Networks {
		for edge := range net.Edges {
			if _, ok := s.Locations[edge[0]]; !ok {
				return core.NewError(
					fmt.Errorf("network %q edge references unknown location %q", name, edge[0]),
					core.CodeSpatialInvariant, nil,
				)
			}
			if _, ok := s.Locations[edge[1]]; !ok {
				return core.NewError(
					fmt.Errorf("network %q edge references unknown location %q", name, edge[1]),
					core.CodeSpatialInvariant, nil,
				)
			}
		}
	}
	if _, ok := s.Networks[DefaultNetwork]; !ok {
		return core.NewError(fmt.Errorf("network %q must always exist", DefaultNetwork), core.CodeSpatialInvariant, nil)
	}
	return nil
}

// sortedKeys returns m's keys in sorted order, a determinism helper that
// does not depend on Go's randomized map iteration order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

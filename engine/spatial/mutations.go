package spatial

import (
	"fmt"

	"github.com/turnforge/simcore/engine/core"
)

// This file implements the engine-only mutation surface of spec §4.3.
// Every mutation returns a new State; the receiver is never mutated.

// MoveAgent returns a new State with agentName positioned at loc. loc
// must be a known location.
func MoveAgent(s *State, agentName, loc string) (*State, error) {
	if s == nil {
		return nil, core.NewError(fmt.Errorf("no spatial state to move agent in"), core.CodeSpatialInvariant, nil)
	}
	if _, ok := s.Locations[loc]; !ok {
		return nil, core.NewError(fmt.Errorf("move_agent: unknown location %q", loc), core.CodeSpatialInvariant, nil)
	}
	out := s.Clone()
	out.AgentPositions[agentName] = loc
	return &out, nil
}

// MoveAgentsBatch validates every target location exists before applying
// any move, so the batch is atomic: all moves happen, or none do.
func MoveAgentsBatch(s *State, moves map[string]string) (*State, error) {
	if s == nil {
		return nil, core.NewError(fmt.Errorf("no spatial state to move agents in"), core.CodeSpatialInvariant, nil)
	}
	for agent, loc := range moves {
		if _, ok := s.Locations[loc]; !ok {
			return nil, core.NewError(
				fmt.Errorf("move_agents_batch: unknown location %q for agent %q", loc, agent),
				core.CodeSpatialInvariant, nil,
			)
		}
	}
	out := s.Clone()
	for agent, loc := range moves {
		out.AgentPositions[agent] = loc
	}
	return &out, nil
}

// SetLocationAttribute returns a new State with a single attribute set on
// loc.
func SetLocationAttribute(s *State, loc, key string, value any) (*State, error) {
	return UpdateLocationAttributes(s, loc, map[string]any{key: value})
}

// UpdateLocationAttributes returns a new State with loc's attributes
// merged with attrs.
func UpdateLocationAttributes(s *State, loc string, attrs map[string]any) (*State, error) {
	if s == nil {
		return nil, core.NewError(fmt.Errorf("no spatial state to update"), core.CodeSpatialInvariant, nil)
	}
	if _, ok := s.Locations[loc]; !ok {
		return nil, core.NewError(fmt.Errorf("unknown location %q", loc), core.CodeSpatialInvariant, nil)
	}
	out := s.Clone()
	newLoc := out.Locations[loc]
	if newLoc.Attributes == nil {
		newLoc.Attributes = map[string]any{}
	}
	for k, v := range attrs {
		newLoc.Attributes[k] = v
	}
	out.Locations[loc] = newLoc
	return &out, nil
}

// AddConnection returns a new State with a Connection added between a and
// b.
func AddConnection(s *State, a, b string, conn Connection) (*State, error) {
	if s == nil {
		return nil, core.NewError(fmt.Errorf("no spatial state to connect"), core.CodeSpatialInvariant, nil)
	}
	if _, ok := s.Locations[a]; !ok {
		return nil, core.NewError(fmt.Errorf("add_connection: unknown location %q", a), core.CodeSpatialInvariant, nil)
	}
	if _, ok := s.Locations[b]; !ok {
		return nil, core.NewError(fmt.Errorf("add_connection: unknown location %q", b), core.CodeSpatialInvariant, nil)
	}
	out := s.Clone()
	out.Connections[CanonicalEdge(a, b)] = conn
	return &out, nil
}

// RemoveConnection returns a new State with the Connection between a and
// b removed. Idempotent: removing an absent connection returns an
// equivalent state.
func RemoveConnection(s *State, a, b string) (*State, error) {
	if s == nil {
		return nil, core.NewError(fmt.Errorf("no spatial state to modify"), core.CodeSpatialInvariant, nil)
	}
	out := s.Clone()
	delete(out.Connections, CanonicalEdge(a, b))
	return &out, nil
}

// UpdateConnectionAttribute returns a new State with a single attribute
// set on the Connection between a and b.
func UpdateConnectionAttribute(s *State, a, b, key string, value any) (*State, error) {
	if s == nil {
		return nil, core.NewError(fmt.Errorf("no spatial state to update"), core.CodeSpatialInvariant, nil)
	}
	key2 := CanonicalEdge(a, b)
	conn, ok := s.Connections[key2]
	if !ok {
		return nil, core.NewError(fmt.Errorf("no connection between %q and %q", a, b), core.CodeSpatialInvariant, nil)
	}
	out := s.Clone()
	newConn := conn
	if newConn.Attributes == nil {
		newConn.Attributes = map[string]any{}
	} else {
		newConn.Attributes = copyAnyMap(newConn.Attributes)
	}
	newConn.Attributes[key] = value
	out.Connections[key2] = newConn
	return &out, nil
}

// CreateNetwork returns a new State with a network named `name` defined
// over the given edges (endpoints must already be known locations).
func CreateNetwork(s *State, name string, edges []Edge, attrs map[string]any) (*State, error) {
	if s == nil {
		return nil, core.NewError(fmt.Errorf("no spatial state to modify"), core.CodeSpatialInvariant, nil)
	}
	edgeSet := map[Edge]struct{}{}
	for _, e := range edges {
		if _, ok := s.Locations[e[0]]; !ok {
			return nil, core.NewError(fmt.Errorf("create_network: unknown location %q", e[0]), core.CodeSpatialInvariant, nil)
		}
		if _, ok := s.Locations[e[1]]; !ok {
			return nil, core.NewError(fmt.Errorf("create_network: unknown location %q", e[1]), core.CodeSpatialInvariant, nil)
		}
		edgeSet[CanonicalEdge(e[0], e[1])] = struct{}{}
	}
	out := s.Clone()
	out.Networks[name] = Network{Name: name, Edges: edgeSet, Attributes: attrs}
	return &out, nil
}

// RemoveNetwork returns a new State with network `name` removed. Removing
// the "default" network is rejected.
func RemoveNetwork(s *State, name string) (*State, error) {
	if s == nil {
		return nil, core.NewError(fmt.Errorf("no spatial state to modify"), core.CodeSpatialInvariant, nil)
	}
	if name == DefaultNetwork {
		return nil, core.NewError(fmt.Errorf("network %q may not be removed", DefaultNetwork), core.CodeSpatialInvariant, nil)
	}
	out := s.Clone()
	delete(out.Networks, name)
	return &out, nil
}

// ApplyToRegion applies fn to every location id for which predicate
// returns true, returning a new State with the accumulated attribute
// updates. fn receives the current attributes and returns the updated
// attributes for that location.
func ApplyToRegion(
	s *State,
	predicate func(loc Location) bool,
	fn func(attrs map[string]any) map[string]any,
) (*State, error) {
	if s == nil {
		return nil, core.NewError(fmt.Errorf("no spatial state to modify"), core.CodeSpatialInvariant, nil)
	}
	out := s.Clone()
	for id, loc := range s.Locations {
		if !predicate(loc) {
			continue
		}
		updated := out.Locations[id]
		updated.Attributes = fn(copyAnyMap(updated.Attributes))
		out.Locations[id] = updated
	}
	return &out, nil
}

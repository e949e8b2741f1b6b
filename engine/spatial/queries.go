package spatial

import "sort"

// This file implements the read-only, total query surface of spec §4.3.
// Every function here returns a safe default (empty collection / zero
// value / -1) when s is nil, never mutates s, and never depends on map
// iteration order beyond the documented tie-breaks.

// GetAgentPosition returns the location id the agent occupies, or "" if
// absent or s is nil.
func GetAgentPosition(s *State, agentName string) string {
	if s == nil {
		return ""
	}
	return s.AgentPositions[agentName]
}

// GetNeighbors returns the location ids directly connected to loc within
// the named network (defaults to "default"), sorted for determinism.
func GetNeighbors(s *State, loc string, network string) []string {
	if s == nil {
		return nil
	}
	if network == "" {
		network = DefaultNetwork
	}
	net, ok := s.Networks[network]
	if !ok {
		return nil
	}
	var neighbors []string
	for edge := range net.Edges {
		if edge[0] == loc {
			neighbors = append(neighbors, edge[1])
		} else if edge[1] == loc {
			neighbors = append(neighbors, edge[0])
		}
	}
	sortStrings(neighbors)
	return neighbors
}

func sortStrings(s []string) { sort.Strings(s) }

// GetDistance returns the unweighted-edge BFS hop count between from and
// to within network, or -1 if unreachable or either location is absent.
func GetDistance(s *State, from, to string, network string) int {
	path := ShortestPath(s, from, to, network)
	if path == nil {
		return -1
	}
	return len(path) - 1
}

// IsAdjacent reports whether a and b are directly connected in network.
func IsAdjacent(s *State, a, b string, network string) bool {
	for _, n := range GetNeighbors(s, a, network) {
		if n == b {
			return true
		}
	}
	return false
}

// ShortestPath returns the shortest path from `from` to `to` (inclusive
// of both endpoints) within network, breaking ties lexicographically on
// the predecessor at each BFS step for determinism (spec §4.3, §5, §8
// Scenario F). Returns nil if no path exists or either endpoint is
// absent.
func ShortestPath(s *State, from, to string, network string) []string {
	if s == nil {
		return nil
	}
	if network == "" {
		network = DefaultNetwork
	}
	if _, ok := s.Locations[from]; !ok {
		return nil
	}
	if _, ok := s.Locations[to]; !ok {
		return nil
	}
	if from == to {
		return []string{from}
	}
	predecessor := map[string]string{from: ""}
	depth := map[string]int{from: 0}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		neighbors := GetNeighbors(s, cur, network)
		for _, n := range neighbors {
			if d, seen := depth[n]; seen {
				// Lexicographic tie-break: of all predecessors one layer
				// above n, keep the smallest id.
				if d == depth[cur]+1 && cur < predecessor[n] {
					predecessor[n] = cur
				}
				continue
			}
			depth[n] = depth[cur] + 1
			predecessor[n] = cur
			queue = append(queue, n)
		}
	}
	if _, ok := depth[to]; !ok {
		return nil
	}
	return reconstructPath(predecessor, from, to)
}

func reconstructPath(predecessor map[string]string, from, to string) []string {
	var path []string
	cur := to
	for {
		path = append([]string{cur}, path...)
		if cur == from {
			break
		}
		cur = predecessor[cur]
	}
	return path
}

// GetAgentsAt returns the (sorted) names of agents positioned at loc.
func GetAgentsAt(s *State, loc string) []string {
	if s == nil {
		return nil
	}
	var agents []string
	for agent, at := range s.AgentPositions {
		if at == loc {
			agents = append(agents, agent)
		}
	}
	sortStrings(agents)
	return agents
}

// GetAgentsWithin returns the (sorted) names of agents within radius hops
// of loc in network (radius 0 returns only agents at loc itself).
func GetAgentsWithin(s *State, loc string, radius int, network string) []string {
	if s == nil {
		return nil
	}
	var agents []string
	for agent, at := range s.AgentPositions {
		d := GetDistance(s, loc, at, network)
		if d >= 0 && d <= radius {
			agents = append(agents, agent)
		}
	}
	sortStrings(agents)
	return agents
}

// GetLocationAttribute returns a location's attribute value and whether
// it was present.
func GetLocationAttribute(s *State, loc, key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	l, ok := s.Locations[loc]
	if !ok || l.Attributes == nil {
		return nil, false
	}
	v, ok := l.Attributes[key]
	return v, ok
}

// GetLocationsByAttribute returns the (sorted) ids of locations whose
// attribute `key` equals `value`.
func GetLocationsByAttribute(s *State, key string, value any) []string {
	if s == nil {
		return nil
	}
	var ids []string
	for id, loc := range s.Locations {
		if loc.Attributes == nil {
			continue
		}
		if v, ok := loc.Attributes[key]; ok && equalAny(v, value) {
			ids = append(ids, id)
		}
	}
	sortStrings(ids)
	return ids
}

func equalAny(a, b any) bool {
	return a == b
}

// HasConnection reports whether a typed Connection exists between a and b.
func HasConnection(s *State, a, b string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Connections[CanonicalEdge(a, b)]
	return ok
}

// GetConnectionAttribute returns a connection's attribute value and
// whether it was present.
func GetConnectionAttribute(s *State, a, b, key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	conn, ok := s.Connections[CanonicalEdge(a, b)]
	if !ok || conn.Attributes == nil {
		return nil, false
	}
	v, ok := conn.Attributes[key]
	return v, ok
}

// FilterStateByProximity returns a copy of s restricted to locations and
// agents within radius hops of agentName's position in network. Used by
// the observability filter (spec §4.11) to compose radius-based
// visibility with field-level filtering. If agentName has no position,
// s itself is returned unfiltered.
func FilterStateByProximity(s *State, agentName string, radius int, network string) *State {
	if s == nil {
		return nil
	}
	origin := GetAgentPosition(s, agentName)
	if origin == "" {
		return s
	}
	if network == "" {
		network = DefaultNetwork
	}
	reachable := map[string]struct{}{}
	for id := range s.Locations {
		if d := GetDistance(s, origin, id, network); d >= 0 && d <= radius {
			reachable[id] = struct{}{}
		}
	}
	out := &State{
		TopologyType:   s.TopologyType,
		AgentPositions: map[string]string{},
		Locations:      map[string]Location{},
		Networks:       map[string]Network{},
		Connections:    map[ConnectionKey]Connection{},
	}
	for agent, loc := range s.AgentPositions {
		if _, ok := reachable[loc]; ok {
			out.AgentPositions[agent] = loc
		}
	}
	for id, loc := range s.Locations {
		if _, ok := reachable[id]; ok {
			out.Locations[id] = loc
		}
	}
	for name, net := range s.Networks {
		edges := map[Edge]struct{}{}
		for e := range net.Edges {
			_, okA := reachable[e[0]]
			_, okB := reachable[e[1]]
			if okA && okB {
				edges[e] = struct{}{}
			}
		}
		out.Networks[name] = Network{Name: net.Name, Edges: edges, Attributes: net.Attributes}
	}
	for key, conn := range s.Connections {
		_, okA := reachable[key[0]]
		_, okB := reachable[key[1]]
		if okA && okB {
			out.Connections[key] = conn
		}
	}
	return out
}

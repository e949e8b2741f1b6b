package spatial

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/turnforge/simcore/engine/core"
)

// GridConfig configures a grid topology (spec §4.3).
type GridConfig struct {
	Width        int  `json:"width"`
	Height       int  `json:"height"`
	Connectivity int  `json:"connectivity"` // 4 or 8
	Wrapping     bool `json:"wrapping"`
}

// HexGridConfig configures a hex_grid topology.
type HexGridConfig struct {
	Radius int `json:"radius"`
}

// NetworkFileConfig configures a network topology loaded from a JSON file.
type NetworkFileConfig struct {
	EdgesFile string `json:"edges_file"`
}

// RegionsConfig configures a regions topology loaded from a GeoJSON file.
type RegionsConfig struct {
	GeoJSONFile string `json:"geojson_file"`
}

// Config is the union of per-topology configuration plus the
// post-processing overrides spec §4.3 describes.
type Config struct {
	TopologyType        TopologyType
	Grid                *GridConfig
	HexGrid             *HexGridConfig
	NetworkFile         *NetworkFileConfig
	Regions             *RegionsConfig
	LocationAttributes  map[string]map[string]any // location id -> attribute overrides
	AdditionalNetworks  map[string][][2]string     // network name -> edges
}

// Create dispatches on cfg.TopologyType to build the initial spatial
// State, then applies location_attributes overrides and
// additional_networks.
func Create(cfg Config) (*State, error) {
	var s *State
	var err error
	switch cfg.TopologyType {
	case TopologyGrid:
		s, err = createGrid(cfg.Grid)
	case TopologyHexGrid:
		s, err = createHexGrid(cfg.HexGrid)
	case TopologyNetwork:
		s, err = createNetwork(cfg.NetworkFile)
	case TopologyRegions:
		s, err = createRegions(cfg.Regions)
	default:
		return nil, core.NewError(
			fmt.Errorf("unknown topology_type %q", cfg.TopologyType),
			core.CodeConfigError, nil,
		)
	}
	if err != nil {
		return nil, err
	}
	applyLocationAttributes(s, cfg.LocationAttributes)
	if err := applyAdditionalNetworks(s, cfg.AdditionalNetworks); err != nil {
		return nil, err
	}
	if err := CheckInvariants(s); err != nil {
		return nil, err
	}
	return s, nil
}

func applyLocationAttributes(s *State, overrides map[string]map[string]any) {
	for locID, attrs := range overrides {
		loc, ok := s.Locations[locID]
		if !ok {
			continue
		}
		if loc.Attributes == nil {
			loc.Attributes = map[string]any{}
		}
		for k, v := range attrs {
			loc.Attributes[k] = v
		}
		s.Locations[locID] = loc
	}
}

func applyAdditionalNetworks(s *State, nets map[string][][2]string) error {
	for name, edges := range nets {
		edgeSet := make(map[Edge]struct{}, len(edges))
		for _, e := range edges {
			if _, ok := s.Locations[e[0]]; !ok {
				return core.NewError(fmt.Errorf("network %q edge references unknown location %q", name, e[0]), core.CodeConfigError, nil)
			}
			if _, ok := s.Locations[e[1]]; !ok {
				return core.NewError(fmt.Errorf("network %q edge references unknown location %q", name, e[1]), core.CodeConfigError, nil)
			}
			edgeSet[CanonicalEdge(e[0], e[1])] = struct{}{}
		}
		s.Networks[name] = Network{Name: name, Edges: edgeSet, Attributes: map[string]any{}}
	}
	return nil
}

func newEmptyState(topo TopologyType) *State {
	return &State{
		TopologyType:   topo,
		AgentPositions: map[string]string{},
		Locations:      map[string]Location{},
		Networks: map[string]Network{
			DefaultNetwork: {Name: DefaultNetwork, Edges: map[Edge]struct{}{}, Attributes: map[string]any{}},
		},
		Connections: map[ConnectionKey]Connection{},
	}
}

func createGrid(cfg *GridConfig) (*State, error) {
	if cfg == nil {
		return nil, core.NewError(fmt.Errorf("grid topology requires configuration"), core.CodeConfigError, nil)
	}
	if cfg.Connectivity != 4 && cfg.Connectivity != 8 {
		return nil, core.NewError(fmt.Errorf("grid connectivity must be 4 or 8, got %d", cfg.Connectivity), core.CodeConfigError, nil)
	}
	s := newEmptyState(TopologyGrid)
	for x := 0; x < cfg.Width; x++ {
		for y := 0; y < cfg.Height; y++ {
			id := fmt.Sprintf("%d,%d", x, y)
			s.Locations[id] = Location{ID: id, Attributes: map[string]any{}, Metadata: map[string]any{}}
		}
	}
	offsets := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	if cfg.Connectivity == 8 {
		offsets = append(offsets, [2]int{1, 1}, [2]int{1, -1}, [2]int{-1, 1}, [2]int{-1, -1})
	}
	def := s.Networks[DefaultNetwork]
	for x := 0; x < cfg.Width; x++ {
		for y := 0; y < cfg.Height; y++ {
			from := fmt.Sprintf("%d,%d", x, y)
			for _, off := range offsets {
				nx, ny := x+off[0], y+off[1]
				if cfg.Wrapping {
					nx = ((nx % cfg.Width) + cfg.Width) % cfg.Width
					ny = ((ny % cfg.Height) + cfg.Height) % cfg.Height
				} else if nx < 0 || nx >= cfg.Width || ny < 0 || ny >= cfg.Height {
					continue
				}
				to := fmt.Sprintf("%d,%d", nx, ny)
				def.Edges[CanonicalEdge(from, to)] = struct{}{}
			}
		}
	}
	s.Networks[DefaultNetwork] = def
	return s, nil
}

func createHexGrid(cfg *HexGridConfig) (*State, error) {
	if cfg == nil {
		return nil, core.NewError(fmt.Errorf("hex_grid topology requires configuration"), core.CodeConfigError, nil)
	}
	s := newEmptyState(TopologyHexGrid)
	abs := func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	}
	inRange := func(q, r int) bool {
		s := -q - r
		m := abs(q)
		if abs(r) > m {
			m = abs(r)
		}
		if abs(s) > m {
			m = abs(s)
		}
		return m <= cfg.Radius
	}
	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			if !inRange(q, r) {
				continue
			}
			id := fmt.Sprintf("%d,%d", q, r)
			s.Locations[id] = Location{ID: id, Attributes: map[string]any{}, Metadata: map[string]any{}}
		}
	}
	offsets := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, -1}, {-1, 1}}
	def := s.Networks[DefaultNetwork]
	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			if !inRange(q, r) {
				continue
			}
			from := fmt.Sprintf("%d,%d", q, r)
			for _, off := range offsets {
				nq, nr := q+off[0], r+off[1]
				if !inRange(nq, nr) {
					continue
				}
				to := fmt.Sprintf("%d,%d", nq, nr)
				def.Edges[CanonicalEdge(from, to)] = struct{}{}
			}
		}
	}
	s.Networks[DefaultNetwork] = def
	return s, nil
}

type networkFile struct {
	Nodes      []string                  `json:"nodes"`
	Edges      [][2]string               `json:"edges"`
	Attributes map[string]map[string]any `json:"attributes,omitempty"`
}

func createNetwork(cfg *NetworkFileConfig) (*State, error) {
	if cfg == nil || cfg.EdgesFile == "" {
		return nil, core.NewError(fmt.Errorf("network topology requires an edges_file"), core.CodeConfigError, nil)
	}
	b, err := os.ReadFile(cfg.EdgesFile)
	if err != nil {
		return nil, core.NewError(fmt.Errorf("read edges_file: %w", err), core.CodeConfigError, nil)
	}
	var nf networkFile
	if err := json.Unmarshal(b, &nf); err != nil {
		return nil, core.NewError(fmt.Errorf("parse edges_file: %w", err), core.CodeConfigError, nil)
	}
	s := newEmptyState(TopologyNetwork)
	for _, id := range nf.Nodes {
		attrs := map[string]any{}
		if nf.Attributes != nil {
			if a, ok := nf.Attributes[id]; ok {
				attrs = a
			}
		}
		s.Locations[id] = Location{ID: id, Attributes: attrs, Metadata: map[string]any{}}
	}
	def := s.Networks[DefaultNetwork]
	for _, e := range nf.Edges {
		if _, ok := s.Locations[e[0]]; !ok {
			return nil, core.NewError(fmt.Errorf("edge references unknown node %q", e[0]), core.CodeConfigError, nil)
		}
		if _, ok := s.Locations[e[1]]; !ok {
			return nil, core.NewError(fmt.Errorf("edge references unknown node %q", e[1]), core.CodeConfigError, nil)
		}
		def.Edges[CanonicalEdge(e[0], e[1])] = struct{}{}
	}
	s.Networks[DefaultNetwork] = def
	return s, nil
}

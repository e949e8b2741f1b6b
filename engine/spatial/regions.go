package spatial

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/turnforge/simcore/engine/core"
)

// geoJSONFeatureCollection is the minimal GeoJSON shape this loader
// understands: a FeatureCollection of Polygon/MultiPolygon features, each
// carrying a required properties.name. No third-party GeoJSON library
// appears anywhere in the retrieved example corpus (see DESIGN.md), so
// this is a direct, narrowly-scoped decoder rather than a general GeoJSON
// implementation.
type geoJSONFeatureCollection struct {
	Type     string          `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   geoJSONGeometry `json:"geometry"`
}

type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ring is a closed polygon boundary: a sequence of [lon, lat] points.
type ring [][2]float64

func createRegions(cfg *RegionsConfig) (*State, error) {
	if cfg == nil || cfg.GeoJSONFile == "" {
		return nil, core.NewError(fmt.Errorf("regions topology requires a geojson_file"), core.CodeConfigError, nil)
	}
	b, err := os.ReadFile(cfg.GeoJSONFile)
	if err != nil {
		return nil, core.NewError(fmt.Errorf("read geojson_file: %w", err), core.CodeConfigError, nil)
	}
	var fc geoJSONFeatureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, core.NewError(fmt.Errorf("parse geojson_file: %w", err), core.CodeConfigError, nil)
	}
	if fc.Type != "FeatureCollection" {
		return nil, core.NewError(fmt.Errorf("geojson_file must be a FeatureCollection, got %q", fc.Type), core.CodeConfigError, nil)
	}
	s := newEmptyState(TopologyRegions)
	names := make([]string, 0, len(fc.Features))
	ringsByName := map[string][]ring{}
	for i, feat := range fc.Features {
		name, _ := feat.Properties["name"].(string)
		if name == "" {
			return nil, core.NewError(fmt.Errorf("feature %d is missing properties.name", i), core.CodeConfigError, nil)
		}
		if _, dup := s.Locations[name]; dup {
			return nil, core.NewError(fmt.Errorf("duplicate region name %q", name), core.CodeConfigError, nil)
		}
		attrs := map[string]any{}
		for k, v := range feat.Properties {
			if k != "name" {
				attrs[k] = v
			}
		}
		s.Locations[name] = Location{ID: name, Attributes: attrs, Metadata: map[string]any{}}
		names = append(names, name)
		rings, err := extractRings(feat.Geometry)
		if err != nil {
			return nil, core.NewError(fmt.Errorf("region %q: %w", name, err), core.CodeConfigError, nil)
		}
		ringsByName[name] = rings
	}
	def := s.Networks[DefaultNetwork]
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if polygonsTouch(ringsByName[names[i]], ringsByName[names[j]]) {
				def.Edges[CanonicalEdge(names[i], names[j])] = struct{}{}
			}
		}
	}
	s.Networks[DefaultNetwork] = def
	return s, nil
}

func extractRings(geom geoJSONGeometry) ([]ring, error) {
	switch geom.Type {
	case "Polygon":
		var poly [][][2]float64
		if err := json.Unmarshal(geom.Coordinates, &poly); err != nil {
			return nil, fmt.Errorf("decode polygon coordinates: %w", err)
		}
		return polygonToRings(poly), nil
	case "MultiPolygon":
		var multi [][][][2]float64
		if err := json.Unmarshal(geom.Coordinates, &multi); err != nil {
			return nil, fmt.Errorf("decode multipolygon coordinates: %w", err)
		}
		var rings []ring
		for _, poly := range multi {
			rings = append(rings, polygonToRings(poly)...)
		}
		return rings, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", geom.Type)
	}
}

func polygonToRings(poly [][][2]float64) []ring {
	rings := make([]ring, 0, len(poly))
	for _, r := range poly {
		rings = append(rings, ring(r))
	}
	return rings
}

// polygonsTouch reports whether any ring of a shares a boundary segment
// with any ring of b: two consecutive-vertex edges that connect the same
// pair of points (in either direction).
func polygonsTouch(a, b []ring) bool {
	edgesA := map[[2][2]float64]struct{}{}
	for _, r := range a {
		for _, e := range ringEdges(r) {
			edgesA[e] = struct{}{}
		}
	}
	for _, r := range b {
		for _, e := range ringEdges(r) {
			rev := [2][2]float64{e[1], e[0]}
			if _, ok := edgesA[e]; ok {
				return true
			}
			if _, ok := edgesA[rev]; ok {
				return true
			}
		}
	}
	return false
}

func ringEdges(r ring) [][2][2]float64 {
	if len(r) < 2 {
		return nil
	}
	edges := make([][2][2]float64, 0, len(r))
	for i := 0; i < len(r); i++ {
		p1 := r[i]
		p2 := r[(i+1)%len(r)]
		edges = append(edges, [2][2]float64{p1, p2})
	}
	return edges
}

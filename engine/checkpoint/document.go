package checkpoint

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/turnforge/simcore/engine/core"
	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/spatial"
	"github.com/turnforge/simcore/engine/state"
)

// Type discriminates why a checkpoint document was written.
type Type string

const (
	TypeInterval Type = "interval"
	TypeFinal    Type = "final"
)

// document is the on-disk checkpoint shape (spec §6).
type document struct {
	Turn              int      `json:"turn"`
	CheckpointType    Type     `json:"checkpoint_type"`
	Timestamp         string   `json:"timestamp"`
	SchemaFingerprint string   `json:"schema_fingerprint"`
	State             stateDoc `json:"state"`
}

type stateDoc struct {
	Turn           int                       `json:"turn"`
	GlobalState    map[string]any            `json:"global_state"`
	Agents         map[string]json.RawMessage `json:"agents"`
	PausedAgents   []string                  `json:"paused_agents"`
	AutoResume     map[string]int            `json:"auto_resume"`
	SpatialState   *spatialDoc               `json:"spatial_state,omitempty"`
	ReasoningTrail []reasoningDoc            `json:"reasoning_trail"`
}

type reasoningDoc struct {
	Component  string  `json:"component"`
	AgentName  string  `json:"agent,omitempty"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

type spatialDoc struct {
	TopologyType   string                   `json:"topology_type"`
	AgentPositions map[string]string        `json:"agent_positions"`
	Locations      map[string]locationDoc   `json:"locations"`
	Networks       map[string]networkDoc    `json:"networks"`
	Connections    map[string]connectionDoc `json:"connections"`
}

type locationDoc struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
	Metadata   map[string]any `json:"metadata"`
}

type networkDoc struct {
	Name       string         `json:"name"`
	Edges      [][2]string    `json:"edges"`
	Attributes map[string]any `json:"attributes"`
}

type connectionDoc struct {
	Type          string         `json:"type"`
	Attributes    map[string]any `json:"attributes"`
	Bidirectional bool           `json:"bidirectional"`
}

func fromSnapshot(checkpointType Type, timestamp string, snap *state.Snapshot) document {
	globals := map[string]any{}
	for name, v := range snap.GlobalVars {
		globals[name] = v.Raw()
	}
	agents := map[string]json.RawMessage{}
	for name, rec := range snap.Agents {
		vars := map[string]any{}
		for varName, v := range rec.Vars {
			vars[varName] = v.Raw()
		}
		vars["memory"] = json.RawMessage(rec.Memory)
		b, _ := json.Marshal(vars)
		agents[name] = b
	}
	paused := make([]string, 0, len(snap.PausedAgents))
	for name := range snap.PausedAgents {
		paused = append(paused, name)
	}
	sort.Strings(paused)
	trail := make([]reasoningDoc, 0, len(snap.ReasoningTrail))
	for _, r := range snap.ReasoningTrail {
		trail = append(trail, reasoningDoc{Component: r.Component, AgentName: r.AgentName, Reasoning: r.Reasoning, Confidence: r.Confidence})
	}
	var sp *spatialDoc
	if snap.Spatial != nil {
		doc := spatialFromState(snap.Spatial)
		sp = &doc
	}
	return document{
		Turn:              snap.Turn,
		CheckpointType:    checkpointType,
		Timestamp:         timestamp,
		SchemaFingerprint: snap.SchemaFingerprint,
		State: stateDoc{
			Turn:           snap.Turn,
			GlobalState:    globals,
			Agents:         agents,
			PausedAgents:   paused,
			AutoResume:     snap.AutoResume,
			SpatialState:   sp,
			ReasoningTrail: trail,
		},
	}
}

func spatialFromState(s *spatial.State) spatialDoc {
	locations := map[string]locationDoc{}
	for id, loc := range s.Locations {
		locations[id] = locationDoc{ID: loc.ID, Attributes: orEmpty(loc.Attributes), Metadata: orEmpty(loc.Metadata)}
	}
	networks := map[string]networkDoc{}
	for name, net := range s.Networks {
		edges := make([][2]string, 0, len(net.Edges))
		for e := range net.Edges {
			edges = append(edges, [2]string{e[0], e[1]})
		}
		sort.Slice(edges, func(i, j int) bool {
			if edges[i][0] != edges[j][0] {
				return edges[i][0] < edges[j][0]
			}
			return edges[i][1] < edges[j][1]
		})
		networks[name] = networkDoc{Name: net.Name, Edges: edges, Attributes: orEmpty(net.Attributes)}
	}
	connections := map[string]connectionDoc{}
	for key, conn := range s.Connections {
		connections[key[0]+"|"+key[1]] = connectionDoc{Type: conn.Type, Attributes: orEmpty(conn.Attributes), Bidirectional: conn.Bidirectional}
	}
	return spatialDoc{
		TopologyType:   string(s.TopologyType),
		AgentPositions: s.AgentPositions,
		Locations:      locations,
		Networks:       networks,
		Connections:    connections,
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func (d document) toSnapshot(sc *schema.Schema) (*state.Snapshot, error) {
	globals := map[string]schema.TypedValue{}
	for name, raw := range d.State.GlobalState {
		v, err := sc.Validate(schema.ScopeGlobal, name, raw)
		if err != nil {
			return nil, err
		}
		globals[name] = v
	}
	agents := map[string]state.AgentRecord{}
	for name, raw := range d.State.Agents {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, core.NewError(fmt.Errorf("decode agent %q: %w", name, err), core.CodeCheckpointLoadError, nil)
		}
		memory := fields["memory"]
		delete(fields, "memory")
		vars := map[string]schema.TypedValue{}
		for varName, rawVal := range fields {
			var val any
			if err := json.Unmarshal(rawVal, &val); err != nil {
				return nil, core.NewError(fmt.Errorf("decode agent %q var %q: %w", name, varName, err), core.CodeCheckpointLoadError, nil)
			}
			v, err := sc.Validate(schema.ScopeAgent, varName, val)
			if err != nil {
				return nil, err
			}
			vars[varName] = v
		}
		agents[name] = state.AgentRecord{Vars: vars, Memory: []byte(memory)}
	}
	paused := map[string]struct{}{}
	for _, name := range d.State.PausedAgents {
		paused[name] = struct{}{}
	}
	trail := make([]state.ReasoningRecord, 0, len(d.State.ReasoningTrail))
	for _, r := range d.State.ReasoningTrail {
		trail = append(trail, state.ReasoningRecord{Component: r.Component, AgentName: r.AgentName, Reasoning: r.Reasoning, Confidence: r.Confidence})
	}
	var sp *spatial.State
	if d.State.SpatialState != nil {
		s := spatialToState(d.State.SpatialState)
		sp = &s
	}
	return &state.Snapshot{
		Turn:              d.State.Turn,
		GlobalVars:        globals,
		Agents:            agents,
		Spatial:           sp,
		PausedAgents:      paused,
		AutoResume:        d.State.AutoResume,
		ReasoningTrail:    trail,
		SchemaFingerprint: d.SchemaFingerprint,
	}, nil
}

func spatialToState(d *spatialDoc) spatial.State {
	locations := map[string]spatial.Location{}
	for id, loc := range d.Locations {
		locations[id] = spatial.Location{ID: loc.ID, Attributes: loc.Attributes, Metadata: loc.Metadata}
	}
	networks := map[string]spatial.Network{}
	for name, net := range d.Networks {
		edges := map[spatial.Edge]struct{}{}
		for _, e := range net.Edges {
			edges[spatial.CanonicalEdge(e[0], e[1])] = struct{}{}
		}
		networks[name] = spatial.Network{Name: net.Name, Edges: edges, Attributes: net.Attributes}
	}
	connections := map[spatial.ConnectionKey]spatial.Connection{}
	for key, conn := range d.Connections {
		a, b := splitConnectionKey(key)
		connections[spatial.CanonicalEdge(a, b)] = spatial.Connection{Type: conn.Type, Attributes: conn.Attributes, Bidirectional: conn.Bidirectional}
	}
	return spatial.State{
		TopologyType:   spatial.TopologyType(d.TopologyType),
		AgentPositions: d.AgentPositions,
		Locations:      locations,
		Networks:       networks,
		Connections:    connections,
	}
}

func splitConnectionKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

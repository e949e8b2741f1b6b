// Package observability builds the per-agent View of a Snapshot (spec
// §4.11): the agent's own record in full, global state in full, other
// agents' public values only, and spatial state restricted by radius.
package observability

import (
	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/spatial"
	"github.com/turnforge/simcore/engine/state"
)

// FieldVisibility is the public/private bit configured per agent_vars
// entry (spec §4.11; default public).
type FieldVisibility struct {
	Public map[string]bool // var name -> public (default true when absent)
}

func (v FieldVisibility) isPublic(name string) bool {
	if v.Public == nil {
		return true
	}
	pub, ok := v.Public[name]
	if !ok {
		return true
	}
	return pub
}

// View is the immutable, filtered slice of a Snapshot one agent observes
// this turn. It exposes the same query surface as a Snapshot plus the
// full SpatialQuery surface, operating over the filtered substate.
type View struct {
	AgentName string
	Turn      int
	Own       state.AgentRecord
	GlobalVars map[string]schema.TypedValue
	// OtherAgents carries only the public vars of every other agent
	// still visible after the spatial radius filter.
	OtherAgents map[string]map[string]schema.TypedValue
	Spatial     *spatial.State
}

// Filter constructs the View for agentName over snap. radius < 0 disables
// spatial filtering; vis controls per-variable public/private bits.
func Filter(agentName string, snap *state.Snapshot, radius int, network string, vis FieldVisibility) *View {
	own := snap.Agents[agentName]

	spatialFiltered := snap.Spatial
	if radius >= 0 && snap.Spatial != nil {
		spatialFiltered = spatial.FilterStateByProximity(snap.Spatial, agentName, radius, network)
	}

	visible := map[string]struct{}{}
	if spatialFiltered != nil {
		for name := range spatialFiltered.AgentPositions {
			visible[name] = struct{}{}
		}
		// Spatial state only tracks positioned agents; agents never placed
		// on the map remain visible through the non-spatial path.
		if _, ok := snap.Spatial.AgentPositions[agentName]; !ok {
			for name := range snap.Agents {
				if _, positioned := snap.Spatial.AgentPositions[name]; !positioned {
					visible[name] = struct{}{}
				}
			}
		}
	} else {
		for name := range snap.Agents {
			visible[name] = struct{}{}
		}
	}

	others := map[string]map[string]schema.TypedValue{}
	for name, rec := range snap.Agents {
		if name == agentName {
			continue
		}
		if _, ok := visible[name]; !ok {
			continue
		}
		public := map[string]schema.TypedValue{}
		for varName, v := range rec.Vars {
			if vis.isPublic(varName) {
				public[varName] = v
			}
		}
		others[name] = public
	}

	return &View{
		AgentName:   agentName,
		Turn:        snap.Turn,
		Own:         own,
		GlobalVars:  snap.GlobalVars,
		OtherAgents: others,
		Spatial:     spatialFiltered,
	}
}

// Package lifecycle implements the Lifecycle Manager (spec §4.9):
// buffered add/remove/pause/resume requests applied as a single atomic
// phase after the Engine's regular reduction.
package lifecycle

import (
	"context"
	"fmt"

	"dario.cat/mergo"

	"github.com/turnforge/simcore/engine/action"
	"github.com/turnforge/simcore/engine/core"
	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/state"
	"github.com/turnforge/simcore/pkg/logger"
)

// Apply validates every request against the pre-application snapshot,
// applies only the ones that pass, and returns the new snapshot. A
// LifecycleViolation (population cap, unknown agent on remove) is
// logged as a WARN and the offending request is dropped; the turn
// continues (spec §7). A defensive internal-integrity failure during
// application rolls back the entire batch and fails the turn fatally.
func Apply(ctx context.Context, sc *schema.Schema, snap *state.Snapshot, requests []action.LifecycleRequest) (*state.Snapshot, error) {
	draft := snap.Clone()
	log := logger.FromContext(ctx)
	for _, req := range requests {
		var err error
		switch req.Kind {
		case action.LifecycleAdd:
			err = applyAdd(sc, draft, req)
		case action.LifecycleRemove:
			err = applyRemove(draft, req)
		case action.LifecyclePause:
			err = applyPause(draft, req)
		case action.LifecycleResume:
			err = applyResume(draft, req)
		default:
			err = core.NewError(fmt.Errorf("unknown lifecycle kind %q", req.Kind), core.CodeLifecycleViolation, nil)
		}
		if err != nil {
			if core.IsCode(err, core.CodeLifecycleViolation) {
				log.With("kind", req.Kind, "name", req.Name, "error", err).Warn("lifecycle request rejected")
				continue
			}
			return nil, err
		}
	}
	if err := state.CheckInvariants(draft); err != nil {
		// A pre-validated batch should never fail integrity on apply; if it
		// does, the whole batch rolls back by discarding draft.
		return nil, core.NewError(fmt.Errorf("lifecycle batch failed post-application integrity check: %w", err), core.CodeInvariantViolation, nil)
	}
	return draft, nil
}

func applyAdd(sc *schema.Schema, draft *state.Snapshot, req action.LifecycleRequest) error {
	if len(draft.Agents) >= state.MaxAgents {
		return core.NewError(
			fmt.Errorf("cannot add agent %q: population cap %d reached", req.Name, state.MaxAgents),
			core.CodeLifecycleViolation, map[string]any{"name": req.Name},
		)
	}
	name := resolveName(draft, req.Name)
	defaults := defaultAgentState(sc)
	merged := map[string]any{}
	for k, v := range defaults {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, req.InitialState, mergo.WithOverride); err != nil {
		return core.NewError(fmt.Errorf("merge initial_state for %q: %w", name, err), core.CodeLifecycleViolation, nil)
	}
	rec, err := state.NewAgentRecord(sc, merged, nil)
	if err != nil {
		return core.NewError(fmt.Errorf("add %q: %w", name, err), core.CodeLifecycleViolation, map[string]any{"name": name})
	}
	draft.Agents[name] = rec
	return nil
}

func defaultAgentState(sc *schema.Schema) map[string]any {
	out := map[string]any{}
	for name, def := range sc.AgentVars {
		out[name] = def.Default
	}
	return out
}

// resolveName returns req's requested name, or name_1, name_2, … if
// taken, deterministically picking the first free slot.
func resolveName(draft *state.Snapshot, requested string) string {
	if _, taken := draft.Agents[requested]; !taken {
		return requested
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", requested, i)
		if _, taken := draft.Agents[candidate]; !taken {
			return candidate
		}
	}
}

func applyRemove(draft *state.Snapshot, req action.LifecycleRequest) error {
	if _, ok := draft.Agents[req.Name]; !ok {
		return core.NewError(
			fmt.Errorf("cannot remove unknown agent %q", req.Name),
			core.CodeLifecycleViolation, map[string]any{"name": req.Name},
		)
	}
	delete(draft.Agents, req.Name)
	delete(draft.PausedAgents, req.Name)
	delete(draft.AutoResume, req.Name)
	if draft.Spatial != nil {
		delete(draft.Spatial.AgentPositions, req.Name)
	}
	return nil
}

func applyPause(draft *state.Snapshot, req action.LifecycleRequest) error {
	if _, ok := draft.Agents[req.Name]; !ok {
		return core.NewError(
			fmt.Errorf("cannot pause unknown agent %q", req.Name),
			core.CodeLifecycleViolation, map[string]any{"name": req.Name},
		)
	}
	draft.PausedAgents[req.Name] = struct{}{}
	if req.AutoResumeTurns != nil && *req.AutoResumeTurns > 0 {
		draft.AutoResume[req.Name] = *req.AutoResumeTurns
	}
	return nil
}

func applyResume(draft *state.Snapshot, req action.LifecycleRequest) error {
	delete(draft.PausedAgents, req.Name)
	delete(draft.AutoResume, req.Name)
	return nil
}

// DecrementAutoResume decrements every auto_resume countdown by one,
// removing the agent from paused_agents and auto_resume once it reaches
// zero (spec §4.9, §4.10 step 8).
func DecrementAutoResume(snap *state.Snapshot) *state.Snapshot {
	draft := snap.Clone()
	for name, turns := range draft.AutoResume {
		turns--
		if turns <= 0 {
			delete(draft.AutoResume, name)
			delete(draft.PausedAgents, name)
			continue
		}
		draft.AutoResume[name] = turns
	}
	return draft
}

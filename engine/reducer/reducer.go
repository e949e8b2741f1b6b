// Package reducer implements the Engine contract (spec §4.8). Because
// domain formulas (economic/military/epidemic equations) are explicitly
// external, Reducer factors the five mechanical rules out into a type
// generic over a narrow DomainEngine plugin that supplies only the
// per-action state-update formula.
package reducer

import (
	"context"

	"github.com/turnforge/simcore/engine/action"
	"github.com/turnforge/simcore/engine/lifecycle"
	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/state"
	"github.com/turnforge/simcore/pkg/logger"
)

// DomainEngine applies one validated regular action's domain-specific
// effect to a state draft, returning the updated draft and any reasoning
// records it produced.
type DomainEngine interface {
	ApplyAction(ctx context.Context, act action.Action, draft *state.Snapshot) (*state.Snapshot, []state.ReasoningRecord, error)
}

// Reducer implements spec §4.8 rules 1, 3, 4, 5 around a DomainEngine.
type Reducer struct {
	Domain DomainEngine
	Schema *schema.Schema
}

// Reduce applies validated regular actions sequentially in the order
// they were returned by the Validator, then lifecycle requests, then
// increments the turn, carrying every reasoning record produced along
// the way.
func (r *Reducer) Reduce(
	ctx context.Context,
	validated []action.Action,
	lifecycleRequests []action.LifecycleRequest,
	snap *state.Snapshot,
) (*state.Snapshot, error) {
	log := logger.FromContext(ctx)
	draft := snap

	for _, act := range validated {
		if act.Kind != action.KindRegular {
			continue
		}
		if !act.Validated {
			log.With("agent_name", act.AgentName, "reason", "unvalidated").Info("agent_skipped")
			continue
		}
		next, reasoning, err := r.Domain.ApplyAction(ctx, act, draft)
		if err != nil {
			return nil, err
		}
		next.ReasoningTrail = append(next.ReasoningTrail, reasoning...)
		draft = next
	}

	next, err := lifecycle.Apply(ctx, r.Schema, draft, lifecycleRequests)
	if err != nil {
		return nil, err
	}
	draft = next

	draft = draft.Clone()
	draft.Turn++

	return draft, nil
}

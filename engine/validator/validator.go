// Package validator implements the core Validator contract (spec §4.7):
// given the turn's ordered action list and the pre-reduction snapshot,
// return the same list with each action's Validated flag and
// ValidationResult populated. Concrete domain-aware validators with
// bespoke rules remain external; this package ships the one
// domain-agnostic implementation the core carries, LLMValidator.
package validator

import (
	"context"
	"fmt"

	"github.com/turnforge/simcore/engine/action"
	"github.com/turnforge/simcore/engine/llmadapter"
	"github.com/turnforge/simcore/engine/state"
)

// Validator validates every action in a turn independently (no ordering
// dependency between items) without mutating snap.
type Validator interface {
	Validate(ctx context.Context, actions []action.Action, snap *state.Snapshot) ([]action.Action, error)
}

// LLMValidator asks the LLM Adapter, per action, whether the action
// shows any legitimate effect within Domain. With Permissive set, a
// rejection whose confidence is below 0.5 is accepted. Permissive is off
// in the zero value, so then only actions the model judges legitimate
// pass.
type LLMValidator struct {
	Adapter     *llmadapter.Adapter
	Domain      string
	Permissive  bool
}

type llmVerdict struct {
	Legitimate bool    `json:"legitimate"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Validate implements Validator. Each action is judged independently,
// but an LLM failure on any single action aborts the whole turn (spec
// §4.5/§7, §8 Scenario E): by the time Call returns an error the Adapter
// has either used up its retries or hit a non-retryable failure, so there
// is nothing left to fall back to.
func (v *LLMValidator) Validate(ctx context.Context, actions []action.Action, snap *state.Snapshot) ([]action.Action, error) {
	out := make([]action.Action, len(actions))
	for i, act := range actions {
		validated, err := v.validateOne(ctx, act, snap)
		if err != nil {
			return nil, err
		}
		out[i] = validated
	}
	return out, nil
}

func (v *LLMValidator) validateOne(ctx context.Context, act action.Action, snap *state.Snapshot) (action.Action, error) {
	if act.Kind == action.KindLifecycle {
		act.Validated = true
		act.ValidationResult = &action.ValidationResult{IsValid: true, Reason: "lifecycle requests are validated by the lifecycle manager"}
		return act, nil
	}

	prompt := fmt.Sprintf(
		"Domain: %s\nTurn: %d\nAgent: %s\nProposed action payload: %v\n\n"+
			"Does this action have any legitimate effect within the domain? "+
			"Respond with JSON {\"legitimate\": bool, \"reason\": string, \"confidence\": number}.",
		v.Domain, snap.Turn, act.AgentName, act.Payload,
	)
	res, err := v.Adapter.Call(ctx, llmadapter.CallRequest{
		Component: "validator",
		AgentName: act.AgentName,
		Prompt:    prompt,
		Target:    llmVerdict{},
	})
	if err != nil {
		return action.Action{}, err
	}

	legitimate, _ := res.Parsed["legitimate"].(bool)
	reason, _ := res.Parsed["reason"].(string)
	confidence, _ := res.Parsed["confidence"].(float64)

	// Permissive mode treats a low-confidence rejection as ambiguous
	// rather than disqualifying.
	valid := legitimate
	if !valid && v.Permissive && confidence < 0.5 {
		valid = true
	}
	act.Validated = valid
	act.ValidationResult = &action.ValidationResult{
		IsValid:    valid,
		Reason:     reason,
		Confidence: confidence,
		Reasoning:  reason,
	}
	return act, nil
}

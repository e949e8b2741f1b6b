// Package action defines the Action and LifecycleRequest types agents
// produce and the Validator/Engine pipeline consumes (spec §3.5).
package action

import (
	"encoding/json"
	"fmt"

	"github.com/turnforge/simcore/engine/core"
)

// Kind discriminates a regular domain action from a population-lifecycle
// request.
type Kind string

const (
	KindRegular    Kind = "regular"
	KindLifecycle  Kind = "lifecycle"
)

// ValidationResult is attached to an Action once the Validator has run.
type ValidationResult struct {
	IsValid    bool    `json:"is_valid"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Action is a single agent's proposal for the turn.
type Action struct {
	ID               string            `json:"id"`
	AgentName        string            `json:"agent_name"`
	Kind             Kind              `json:"kind"`
	Payload          any               `json:"payload"`
	Validated        bool              `json:"validated"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
}

// NewRegular builds a regular (domain) action for the given agent.
func NewRegular(agentName string, payload any) Action {
	return Action{
		ID:        core.MustNewID().String(),
		AgentName: agentName,
		Kind:      KindRegular,
		Payload:   payload,
	}
}

// NewLifecycle builds a lifecycle action wrapping a LifecycleRequest.
func NewLifecycle(agentName string, req LifecycleRequest) Action {
	return Action{
		ID:        core.MustNewID().String(),
		AgentName: agentName,
		Kind:      KindLifecycle,
		Payload:   req,
	}
}

// LifecycleKind discriminates the four lifecycle request variants.
type LifecycleKind string

const (
	LifecycleAdd    LifecycleKind = "add"
	LifecycleRemove LifecycleKind = "remove"
	LifecyclePause  LifecycleKind = "pause"
	LifecycleResume LifecycleKind = "resume"
)

// LifecycleRequest is a tagged variant over the four population-change
// request shapes (spec §3.5, §4.9).
type LifecycleRequest struct {
	Kind LifecycleKind `json:"kind"`

	// Add
	Name         string         `json:"name,omitempty"`
	InitialState map[string]any `json:"initial_state,omitempty"`

	// Pause
	AutoResumeTurns *int `json:"auto_resume_turns,omitempty"`
}

// Add builds an Add lifecycle request.
func Add(name string, initialState map[string]any) LifecycleRequest {
	return LifecycleRequest{Kind: LifecycleAdd, Name: name, InitialState: initialState}
}

// Remove builds a Remove lifecycle request.
func Remove(name string) LifecycleRequest {
	return LifecycleRequest{Kind: LifecycleRemove, Name: name}
}

// Pause builds a Pause lifecycle request, optionally scheduling an
// auto-resume after autoResumeTurns turns (must be positive if set).
func Pause(name string, autoResumeTurns *int) LifecycleRequest {
	return LifecycleRequest{Kind: LifecyclePause, Name: name, AutoResumeTurns: autoResumeTurns}
}

// Resume builds a Resume lifecycle request.
func Resume(name string) LifecycleRequest {
	return LifecycleRequest{Kind: LifecycleResume, Name: name}
}

// DecodeLifecyclePayload decodes a payload that was round-tripped through
// json.RawMessage (e.g. from a checkpoint) back into a LifecycleRequest
// when the Action's Kind is lifecycle.
func DecodeLifecyclePayload(payload any) (LifecycleRequest, error) {
	switch p := payload.(type) {
	case LifecycleRequest:
		return p, nil
	case json.RawMessage:
		var req LifecycleRequest
		if err := json.Unmarshal(p, &req); err != nil {
			return LifecycleRequest{}, fmt.Errorf("decode lifecycle payload: %w", err)
		}
		return req, nil
	case map[string]any:
		b, err := json.Marshal(p)
		if err != nil {
			return LifecycleRequest{}, fmt.Errorf("decode lifecycle payload: %w", err)
		}
		var req LifecycleRequest
		if err := json.Unmarshal(b, &req); err != nil {
			return LifecycleRequest{}, fmt.Errorf("decode lifecycle payload: %w", err)
		}
		return req, nil
	default:
		return LifecycleRequest{}, fmt.Errorf("unsupported lifecycle payload type %T", payload)
	}
}

// Package llmadapter wraps a langchaingo model behind the narrow,
// schema-validated request/response contract the rest of the engine
// depends on (spec SPEC_FULL.md §4.5).
package llmadapter

import (
	"encoding/json"
)

// CallRequest is one structured LLM call: a prompt plus the schema the
// response must satisfy.
type CallRequest struct {
	Component    string
	AgentName    string
	SystemPrompt string
	Prompt       string
	// Target is reflected with invopop/jsonschema to build the response
	// schema, unless Schema is already set.
	Target any
	Schema map[string]any
	RunID  string
}

// CallResult is a successful, schema-validated call.
type CallResult struct {
	Raw        string
	Parsed     map[string]any
	TokensUsed int
	Attempts   int
}

// LLMFailure is returned when a call hits a non-retryable error or uses
// up its retry attempts. It carries enough context for callers to log and abort per spec §7.
type LLMFailure struct {
	Reason    string
	Attempts  int
	Component string
}

func (f *LLMFailure) Error() string {
	b, _ := json.Marshal(f)
	return string(b)
}

// Role identifies the speaker of a chat turn issued to the underlying
// model.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one chat turn sent to the underlying langchaingo model.
type Message struct {
	Role    Role
	Content string
}

package llmadapter

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ScriptedResponseSource supplies canned responses keyed by
// (component, agent_name, prompt hash), letting tests drive the engine
// without a live model (spec §4.5, §9).
type ScriptedResponseSource struct {
	cache *lru.Cache[string, string]
}

// NewScriptedResponseSource builds a source with room for `size` entries.
func NewScriptedResponseSource(size int) (*ScriptedResponseSource, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &ScriptedResponseSource{cache: cache}, nil
}

// Script registers the response to return for the given component, agent
// name, and exact prompt text.
func (s *ScriptedResponseSource) Script(component, agentName, prompt, response string) {
	s.cache.Add(scriptKey(component, agentName, prompt), response)
}

// Lookup returns the scripted response for the given call, if any.
func (s *ScriptedResponseSource) Lookup(component, agentName, prompt string) (string, bool) {
	return s.cache.Get(scriptKey(component, agentName, prompt))
}

func scriptKey(component, agentName, prompt string) string {
	h := sha256.Sum256([]byte(prompt))
	return component + "|" + agentName + "|" + hex.EncodeToString(h[:])
}

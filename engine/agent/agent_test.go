package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turnforge/simcore/engine/action"
	"github.com/turnforge/simcore/engine/observability"
)

type fakeAgent struct {
	name string
}

func (f *fakeAgent) Decide(_ context.Context, view *observability.View, memory []byte) (action.Action, []byte, error) {
	return action.NewRegular(view.AgentName, map[string]any{"noop": true}), memory, nil
}

type fakeRegistry struct {
	agents map[string]Agent
}

func (r *fakeRegistry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

func TestDeriveSeedIsDeterministic(t *testing.T) {
	t.Run("Should return the same seed for the same run seed and agent name", func(t *testing.T) {
		assert.Equal(t, DeriveSeed(42, "alice"), DeriveSeed(42, "alice"))
	})

	t.Run("Should return different seeds for different agent names", func(t *testing.T) {
		assert.NotEqual(t, DeriveSeed(42, "alice"), DeriveSeed(42, "bob"))
	})
}

func TestDispatchOrdersDecisionsByAgentNameLexicographic(t *testing.T) {
	reg := &fakeRegistry{agents: map[string]Agent{
		"charlie": &fakeAgent{name: "charlie"},
		"alice":   &fakeAgent{name: "alice"},
		"bob":     &fakeAgent{name: "bob"},
	}}
	views := map[string]*observability.View{
		"charlie": {AgentName: "charlie"},
		"alice":   {AgentName: "alice"},
		"bob":     {AgentName: "bob"},
	}
	decisions := Dispatch(context.Background(), reg, views, nil)

	names := make([]string, len(decisions))
	for i, d := range decisions {
		names[i] = d.AgentName
	}
	assert.Equal(t, []string{"alice", "bob", "charlie"}, names)
}

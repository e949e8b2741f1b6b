package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnforge/simcore/engine/action"
	"github.com/turnforge/simcore/engine/llmadapter"
	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/state"
)

type scriptedClient struct {
	response string
	err      error
	calls    int
}

func (c *scriptedClient) Call(context.Context, string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func newAdapter(t *testing.T, client llmadapter.Client) *llmadapter.Adapter {
	t.Helper()
	a, err := llmadapter.New(llmadapter.WithClient(client))
	require.NoError(t, err)
	return a
}

func newSnapshot(t *testing.T) *state.Snapshot {
	t.Helper()
	sc, err := schema.Build(map[string]schema.VariableDefinition{}, map[string]schema.VariableDefinition{})
	require.NoError(t, err)
	return state.Initial(sc)
}

func TestLLMValidatorAcceptsLegitimateAction(t *testing.T) {
	adapter := newAdapter(t, &scriptedClient{response: `{"legitimate":true,"reason":"ok","confidence":0.9}`})
	v := &LLMValidator{Adapter: adapter, Domain: "trade", Permissive: false}

	actions := []action.Action{action.NewRegular("a1", map[string]any{"do": "trade"})}
	out, err := v.Validate(context.Background(), actions, newSnapshot(t))
	require.NoError(t, err)
	assert.True(t, out[0].Validated)
}

func TestLLMValidatorRejectsWhenNotPermissive(t *testing.T) {
	adapter := newAdapter(t, &scriptedClient{response: `{"legitimate":false,"reason":"no effect","confidence":0.95}`})
	v := &LLMValidator{Adapter: adapter, Domain: "trade", Permissive: false}

	actions := []action.Action{action.NewRegular("a1", map[string]any{"do": "nothing"})}
	out, err := v.Validate(context.Background(), actions, newSnapshot(t))
	require.NoError(t, err)
	assert.False(t, out[0].Validated)
}

func TestLLMValidatorPermissiveAcceptsAmbiguousRejection(t *testing.T) {
	adapter := newAdapter(t, &scriptedClient{response: `{"legitimate":false,"reason":"unsure","confidence":0.1}`})
	v := &LLMValidator{Adapter: adapter, Domain: "trade", Permissive: true}

	actions := []action.Action{action.NewRegular("a1", map[string]any{"do": "maybe"})}
	out, err := v.Validate(context.Background(), actions, newSnapshot(t))
	require.NoError(t, err)
	assert.True(t, out[0].Validated)
}

func TestLLMValidatorLifecycleActionsAlwaysValidated(t *testing.T) {
	adapter := newAdapter(t, &scriptedClient{err: assertErr{}})
	v := &LLMValidator{Adapter: adapter, Domain: "trade"}

	actions := []action.Action{action.NewLifecycle("a1", action.Remove("a1"))}
	out, err := v.Validate(context.Background(), actions, newSnapshot(t))
	require.NoError(t, err)
	assert.True(t, out[0].Validated)
}

func TestLLMValidatorValidatesActionsIndependently(t *testing.T) {
	adapter := newAdapter(t, &scriptedClient{response: `{"legitimate":true,"reason":"ok","confidence":0.9}`})
	v := &LLMValidator{Adapter: adapter, Domain: "trade"}

	actions := []action.Action{
		action.NewRegular("a1", map[string]any{"do": "x"}),
		action.NewRegular("a2", map[string]any{"do": "y"}),
	}
	out, err := v.Validate(context.Background(), actions, newSnapshot(t))
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.True(t, out[0].Validated)
	assert.True(t, out[1].Validated)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestLLMValidatorAbortsTheTurnWhenTheAdapterExhaustsRetries(t *testing.T) {
	adapter := newAdapter(t, &scriptedClient{err: assertErr{}})
	v := &LLMValidator{Adapter: adapter, Domain: "trade", Permissive: true}

	actions := []action.Action{action.NewRegular("a1", map[string]any{"do": "trade"})}
	_, err := v.Validate(context.Background(), actions, newSnapshot(t))
	require.Error(t, err)

	var failure *llmadapter.LLMFailure
	assert.ErrorAs(t, err, &failure)
}

func TestLLMValidatorStopsAtTheFirstFailingActionWithoutValidatingTheRest(t *testing.T) {
	client := &scriptedClient{err: assertErr{}}
	adapter := newAdapter(t, client)
	v := &LLMValidator{Adapter: adapter, Domain: "trade"}

	actions := []action.Action{
		action.NewRegular("a1", map[string]any{"do": "x"}),
		action.NewRegular("a2", map[string]any{"do": "y"}),
	}
	out, err := v.Validate(context.Background(), actions, newSnapshot(t))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 1, client.calls)
}

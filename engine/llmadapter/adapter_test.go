package llmadapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeClient) Call(_ context.Context, _ string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func TestCallSucceedsOnFirstTry(t *testing.T) {
	client := &fakeClient{responses: []string{`{"decision":"move"}`}}
	a, err := New(WithClient(client))
	require.NoError(t, err)

	res, err := a.Call(context.Background(), CallRequest{Component: "agent", AgentName: "a1", Prompt: "decide"})
	require.NoError(t, err)
	assert.Equal(t, "move", res.Parsed["decision"])
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, client.calls)
}

func TestCallRetriesOnTransientError(t *testing.T) {
	client := &fakeClient{
		errs:      []error{errors.New("connection refused"), nil},
		responses: []string{"", `{"decision":"wait"}`},
	}
	a, err := New(WithClient(client), WithRetryPolicy(RetryPolicy{DelayMin: 0, DelayMax: 0, MaxRetries: 2}))
	require.NoError(t, err)

	res, err := a.Call(context.Background(), CallRequest{Component: "agent", AgentName: "a1", Prompt: "decide"})
	require.NoError(t, err)
	assert.Equal(t, "wait", res.Parsed["decision"])
	assert.Equal(t, 2, client.calls)
}

func TestCallExtractsJSONWrappedInProse(t *testing.T) {
	client := &fakeClient{responses: []string{`Sure thing! Here you go: {"decision":"attack"} Hope that helps.`}}
	a, err := New(WithClient(client))
	require.NoError(t, err)

	res, err := a.Call(context.Background(), CallRequest{Component: "agent", AgentName: "a1", Prompt: "decide"})
	require.NoError(t, err)
	assert.Equal(t, "attack", res.Parsed["decision"])
}

func TestCallReturnsLLMFailureAfterExhaustingRetries(t *testing.T) {
	client := &fakeClient{errs: []error{
		errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
	}}
	a, err := New(WithClient(client), WithRetryPolicy(RetryPolicy{DelayMin: 0, DelayMax: 0, MaxRetries: 1}))
	require.NoError(t, err)

	_, err = a.Call(context.Background(), CallRequest{Component: "agent", AgentName: "a1", Prompt: "decide"})
	require.Error(t, err)
	var failure *LLMFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "agent", failure.Component)
	assert.Equal(t, 2, failure.Attempts)
}

func TestCallRetriesOnBareServerErrorStatus(t *testing.T) {
	client := &fakeClient{
		errs:      []error{errors.New("upstream returned 500 internal server error"), nil},
		responses: []string{"", `{"decision":"wait"}`},
	}
	a, err := New(WithClient(client), WithRetryPolicy(RetryPolicy{DelayMin: 0, DelayMax: 0, MaxRetries: 2}))
	require.NoError(t, err)

	res, err := a.Call(context.Background(), CallRequest{Component: "agent", AgentName: "a1", Prompt: "decide"})
	require.NoError(t, err)
	assert.Equal(t, "wait", res.Parsed["decision"])
	assert.Equal(t, 2, client.calls)
}

func TestCallDoesNotRetryNonTransientError(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("invalid request: 400 bad request")}}
	a, err := New(WithClient(client), WithRetryPolicy(RetryPolicy{DelayMin: 0, DelayMax: 0, MaxRetries: 3}))
	require.NoError(t, err)

	_, err = a.Call(context.Background(), CallRequest{Component: "agent", AgentName: "a1", Prompt: "decide"})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestScriptedResponseSourceShortCircuitsTheClient(t *testing.T) {
	scripts, err := NewScriptedResponseSource(8)
	require.NoError(t, err)

	client := &fakeClient{responses: []string{`{"decision":"live-call"}`}}
	a, err := New(WithClient(client), WithScriptedResponses(scripts))
	require.NoError(t, err)

	prompt := "decide\n\nRespond with JSON matching this schema:\n" + mustJSON(map[string]any{"type": "object"})
	scripts.Script("agent", "a1", prompt, `{"decision":"scripted"}`)

	res, err := a.Call(context.Background(), CallRequest{Component: "agent", AgentName: "a1", Prompt: "decide"})
	require.NoError(t, err)
	assert.Equal(t, "scripted", res.Parsed["decision"])
	assert.Equal(t, 0, client.calls)
}

func TestExtractBalancedJSON(t *testing.T) {
	t.Run("Should find the outermost balanced object despite nested braces", func(t *testing.T) {
		out, ok := extractBalancedJSON(`noise {"a":{"b":1}} trailing {"c":2}`)
		require.True(t, ok)
		assert.Equal(t, `{"a":{"b":1}}`, out)
	})

	t.Run("Should ignore braces inside string literals", func(t *testing.T) {
		out, ok := extractBalancedJSON(`{"a":"}weird}"}`)
		require.True(t, ok)
		assert.Equal(t, `{"a":"}weird}"}`, out)
	})

	t.Run("Should report false when no object is present", func(t *testing.T) {
		_, ok := extractBalancedJSON("no json here")
		assert.False(t, ok)
	})
}

package reducer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnforge/simcore/engine/action"
	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/state"
)

type addGoldEngine struct {
	sc *schema.Schema
}

func (e addGoldEngine) ApplyAction(_ context.Context, act action.Action, draft *state.Snapshot) (*state.Snapshot, []state.ReasoningRecord, error) {
	out, err := state.WithUpdates(e.sc, draft, state.Updates{
		AgentVars: map[string]map[string]any{act.AgentName: {"gold": int64(99)}},
	})
	if err != nil {
		return nil, nil, err
	}
	return out, []state.ReasoningRecord{{Component: "engine", AgentName: act.AgentName, Reasoning: "granted gold"}}, nil
}

func buildSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sc, err := schema.Build(
		map[string]schema.VariableDefinition{"gold": {Kind: schema.KindInt, Default: int64(0)}},
		map[string]schema.VariableDefinition{},
	)
	require.NoError(t, err)
	return sc
}

func TestReduceSkipsUnvalidatedActions(t *testing.T) {
	sc := buildSchema(t)
	snap := state.Initial(sc)
	rec, err := state.NewAgentRecord(sc, nil, nil)
	require.NoError(t, err)
	snap.Agents["alice"] = rec

	r := &Reducer{Domain: addGoldEngine{sc: sc}, Schema: sc}
	unvalidated := action.NewRegular("alice", nil)
	unvalidated.Validated = false

	out, err := r.Reduce(context.Background(), []action.Action{unvalidated}, nil, snap)
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.Agents["alice"].Vars["gold"].Raw())
}

func TestReduceAppliesValidatedActionsAndIncrementsTurn(t *testing.T) {
	sc := buildSchema(t)
	snap := state.Initial(sc)
	rec, err := state.NewAgentRecord(sc, nil, nil)
	require.NoError(t, err)
	snap.Agents["alice"] = rec

	r := &Reducer{Domain: addGoldEngine{sc: sc}, Schema: sc}
	validated := action.NewRegular("alice", nil)
	validated.Validated = true

	out, err := r.Reduce(context.Background(), []action.Action{validated}, nil, snap)
	require.NoError(t, err)
	assert.Equal(t, int64(99), out.Agents["alice"].Vars["gold"].Raw())
	assert.Equal(t, 1, out.Turn)
	assert.Len(t, out.ReasoningTrail, 1)
}

func TestReduceAppliesLifecycleAfterRegularActions(t *testing.T) {
	sc := buildSchema(t)
	snap := state.Initial(sc)

	r := &Reducer{Domain: addGoldEngine{sc: sc}, Schema: sc}
	out, err := r.Reduce(context.Background(), nil, []action.LifecycleRequest{action.Add("newcomer", nil)}, snap)
	require.NoError(t, err)
	_, ok := out.Agents["newcomer"]
	assert.True(t, ok)
}

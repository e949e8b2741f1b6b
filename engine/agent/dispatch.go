package agent

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/turnforge/simcore/engine/observability"
)

// Registry resolves an agent name to its Agent implementation (a
// concrete strategy; external to the core).
type Registry interface {
	Get(agentName string) (Agent, bool)
}

// Dispatch runs Decide (and EmitLifecycle, when implemented) for every
// active agent concurrently, then returns the decisions ordered by
// agent name, lexicographic — the canonical ordering used by every
// downstream step (spec §4.10 step 4, §5).
func Dispatch(
	ctx context.Context,
	reg Registry,
	views map[string]*observability.View,
	memories map[string][]byte,
) []Decision {
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	sort.Strings(names)

	decisions := make([]Decision, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			decisions[i] = runOne(gctx, reg, name, views[name], memories[name])
			return nil
		})
	}
	_ = g.Wait() // per-agent errors are carried on Decision.Err, never aborted here

	return decisions
}

func runOne(ctx context.Context, reg Registry, name string, view *observability.View, memory []byte) Decision {
	ag, ok := reg.Get(name)
	if !ok {
		return Decision{AgentName: name}
	}
	act, newMemory, err := ag.Decide(ctx, view, memory)
	if err != nil {
		return Decision{AgentName: name, Memory: memory, Err: err}
	}
	d := Decision{AgentName: name, Action: act, Memory: newMemory}
	if emitter, ok := ag.(LifecycleEmitter); ok {
		reqs, lerr := emitter.EmitLifecycle(ctx, view, newMemory)
		if lerr != nil {
			d.Err = lerr
			return d
		}
		d.Lifecycle = reqs
	}
	return d
}

// Package agent defines the core Agent contract (spec §4.6). Concrete
// decision strategies are an external collaborator; this package owns
// only the interface, the deterministic per-agent seed derivation, and
// the parallel dispatch helper the Orchestrator drives.
package agent

import (
	"context"
	"hash/fnv"

	"github.com/turnforge/simcore/engine/action"
	"github.com/turnforge/simcore/engine/observability"
)

// Agent is the core decision contract. Decide must be pure with respect
// to view: it may read but never mutate it, returning its own updated
// private memory alongside the chosen Action.
type Agent interface {
	Decide(ctx context.Context, view *observability.View, memory []byte) (action.Action, []byte, error)
}

// LifecycleEmitter is an optional Agent capability: agents that also
// propose population-lifecycle changes implement it in addition to
// Agent.
type LifecycleEmitter interface {
	EmitLifecycle(ctx context.Context, view *observability.View, memory []byte) ([]action.LifecycleRequest, error)
}

// DeriveSeed returns a deterministic per-agent seed from the run seed
// and the agent's name, so that concurrent dispatch across
// goroutines/tasks reproduces identical decisions given identical LLM
// responses (spec §4.6).
func DeriveSeed(runSeed int64, agentName string) int64 {
	h := fnv.New64a()
	_, _ = h.Write(uint64ToBytes(uint64(runSeed)))
	_, _ = h.Write([]byte(agentName))
	return int64(h.Sum64())
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// Decision is one agent's full turn-4 output (spec §4.10 step 4):
// the chosen action, updated memory, and any lifecycle requests.
type Decision struct {
	AgentName string
	Action    action.Action
	Memory    []byte
	Lifecycle []action.LifecycleRequest
	Err       error
}

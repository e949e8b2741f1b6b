// Package orchestrator implements the turn scheduler (spec §4.10): the
// Init → Ready → Running → Persisting → Ready/Done/Aborted state
// machine that drives agent dispatch, validation, reduction, lifecycle
// application, and checkpoint persistence each turn.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/turnforge/simcore/engine/action"
	"github.com/turnforge/simcore/engine/agent"
	"github.com/turnforge/simcore/engine/checkpoint"
	"github.com/turnforge/simcore/engine/core"
	"github.com/turnforge/simcore/engine/lifecycle"
	"github.com/turnforge/simcore/engine/observability"
	"github.com/turnforge/simcore/engine/reducer"
	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/spatial"
	"github.com/turnforge/simcore/engine/state"
	"github.com/turnforge/simcore/engine/validator"
	"github.com/turnforge/simcore/pkg/logger"
	"github.com/turnforge/simcore/pkg/telemetry"

	"go.opentelemetry.io/otel/trace"
)

// Status is the Orchestrator's run-level state (spec §4.10).
type Status string

const (
	StatusInit       Status = "init"
	StatusReady      Status = "ready"
	StatusRunning    Status = "running"
	StatusPersisting Status = "persisting"
	StatusDone       Status = "done"
	StatusAborted    Status = "aborted"
)

// Config is everything Run/Resume need that is not already baked into
// the Orchestrator's collaborators.
type Config struct {
	SimulationName     string
	MaxTurns           int
	CheckpointInterval *int
	TerminationExpr    string
	Spatial            *spatial.Config
	SpatialNetwork     string
	ObservabilityRadius int // negative disables the spatial filter
	Visibility         observability.FieldVisibility
	InitialAgents      []InitialAgent
	Seed               int64
}

// InitialAgent is one `agents[]` entry (spec §6).
type InitialAgent struct {
	Name            string
	InitialLocation string
	InitialState    map[string]any
}

// Orchestrator owns the current snapshot and run metadata linearly; it
// is the only writer of the "current snapshot" slot (spec §5).
type Orchestrator struct {
	Schema    *schema.Schema
	Store     *checkpoint.Store
	Validator validator.Validator
	Reducer   *reducer.Reducer
	Registry  agent.Registry
	Telemetry *telemetry.Telemetry

	status   Status
	runID    string
	snapshot *state.Snapshot
	memories map[string][]byte
	started  time.Time
}

// Status reports the Orchestrator's current state-machine position.
func (o *Orchestrator) Status() Status { return o.status }

// RunID returns the allocated run id, valid once Run or Resume has
// transitioned past Init.
func (o *Orchestrator) RunID() string { return o.runID }

// Snapshot returns the last successfully committed snapshot.
func (o *Orchestrator) Snapshot() *state.Snapshot { return o.snapshot }

// Run executes Init → Ready, builds the initial population, then drives
// turns until Done or Aborted.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (*checkpoint.Result, error) {
	o.status = StatusInit
	term, err := CompileTermination(cfg.TerminationExpr)
	if err != nil {
		o.status = StatusAborted
		return nil, err
	}

	snap := state.Initial(o.Schema)
	if cfg.Spatial != nil {
		sp, err := spatial.Create(*cfg.Spatial)
		if err != nil {
			o.status = StatusAborted
			return nil, err
		}
		snap.Spatial = sp
	}

	var addRequests []action.LifecycleRequest
	for _, a := range cfg.InitialAgents {
		addRequests = append(addRequests, action.Add(a.Name, a.InitialState))
	}
	snap, err = lifecycle.Apply(ctx, o.Schema, snap, addRequests)
	if err != nil {
		o.status = StatusAborted
		return nil, err
	}
	if snap.Spatial != nil {
		moves := map[string]string{}
		for _, a := range cfg.InitialAgents {
			if a.InitialLocation != "" {
				moves[a.Name] = a.InitialLocation
			}
		}
		if len(moves) > 0 {
			sp, err := spatial.MoveAgentsBatch(snap.Spatial, moves)
			if err != nil {
				o.status = StatusAborted
				return nil, err
			}
			snap.Spatial = sp
		}
	}

	runID, err := o.Store.AllocateRunID(cfg.SimulationName, len(snap.Agents), time.Now())
	if err != nil {
		o.status = StatusAborted
		return nil, err
	}
	o.runID = runID
	o.snapshot = snap
	o.memories = map[string][]byte{}
	o.started = time.Now()
	o.status = StatusReady

	return o.runLoop(ctx, cfg, term)
}

// Resume loads a checkpoint (strict schema-fingerprint compatibility,
// spec §4.4) and continues the state machine from there.
func (o *Orchestrator) Resume(ctx context.Context, runID string, turn int, cfg Config) (*checkpoint.Result, error) {
	o.status = StatusInit
	term, err := CompileTermination(cfg.TerminationExpr)
	if err != nil {
		o.status = StatusAborted
		return nil, err
	}
	snap, err := o.Store.Load(runID, turn, o.Schema)
	if err != nil {
		o.status = StatusAborted
		return nil, err
	}
	o.runID = runID
	o.snapshot = snap
	o.memories = map[string][]byte{}
	for name, rec := range snap.Agents {
		o.memories[name] = rec.Memory
	}
	o.started = time.Now()
	o.status = StatusReady

	return o.runLoop(ctx, cfg, term)
}

func (o *Orchestrator) runLoop(ctx context.Context, cfg Config, term *TerminationPredicate) (*checkpoint.Result, error) {
	log := logger.FromContext(ctx)
	checkpointTurns := map[int]struct{}{}

	for {
		if err := ctx.Err(); err != nil {
			return o.finish(cfg, checkpointTurns, StatusDone)
		}
		if done, err := o.checkTermination(cfg, term); err != nil {
			o.status = StatusAborted
			return nil, err
		} else if done {
			return o.finish(cfg, checkpointTurns, StatusDone)
		}

		o.status = StatusRunning
		next, err := o.runTurn(ctx, cfg)
		if err != nil {
			o.status = StatusAborted
			log.With("run_id", o.runID, "turn", o.snapshot.Turn, "error", err).Error("turn aborted")
			return nil, err
		}

		o.status = StatusPersisting
		isFinal := next.Turn >= cfg.MaxTurns
		if err := o.Store.Save(o.runID, next, cfg.CheckpointInterval, isFinal); err != nil {
			o.status = StatusAborted
			return nil, err
		}
		if checkpoint.ShouldSave(next.Turn, cfg.CheckpointInterval, isFinal) {
			checkpointTurns[next.Turn] = struct{}{}
		}
		o.snapshot = next
		o.status = StatusReady
	}
}

func (o *Orchestrator) checkTermination(cfg Config, term *TerminationPredicate) (bool, error) {
	if o.snapshot.Turn >= cfg.MaxTurns {
		return true, nil
	}
	if len(o.snapshot.Agents) == 0 {
		return true, nil
	}
	return term.Evaluate(o.snapshot.GlobalVars)
}

func (o *Orchestrator) runTurn(ctx context.Context, cfg Config) (*state.Snapshot, error) {
	var span trace.Span
	if o.Telemetry != nil {
		ctx, span = o.Telemetry.StartTurnSpan(ctx, o.snapshot.Turn)
		defer span.End()
	}

	active := make([]string, 0, len(o.snapshot.Agents))
	for name := range o.snapshot.Agents {
		if _, paused := o.snapshot.PausedAgents[name]; !paused {
			active = append(active, name)
		}
	}
	sort.Strings(active)

	views := make(map[string]*observability.View, len(active))
	for _, name := range active {
		views[name] = observability.Filter(name, o.snapshot, cfg.ObservabilityRadius, cfg.SpatialNetwork, cfg.Visibility)
	}

	decisions := agent.Dispatch(ctx, o.Registry, views, o.memories)

	draft := o.snapshot.Clone()
	actions := make([]action.Action, 0, len(decisions))
	var lifecycleRequests []action.LifecycleRequest
	for _, d := range decisions {
		if d.Err != nil {
			if o.Telemetry != nil {
				o.Telemetry.RecordLLMFailure(ctx)
			}
			return nil, core.NewError(fmt.Errorf("agent %q decision failed: %w", d.AgentName, d.Err), core.CodeLLMFailure, map[string]any{"agent": d.AgentName})
		}
		o.memories[d.AgentName] = d.Memory
		if rec, ok := draft.Agents[d.AgentName]; ok {
			rec.Memory = d.Memory
			draft.Agents[d.AgentName] = rec
		}
		actions = append(actions, d.Action)
		lifecycleRequests = append(lifecycleRequests, d.Lifecycle...)
	}

	validated, err := o.Validator.Validate(ctx, actions, draft)
	if err != nil {
		return nil, err
	}

	next, err := o.Reducer.Reduce(ctx, validated, lifecycleRequests, draft)
	if err != nil {
		return nil, err
	}
	next = lifecycle.DecrementAutoResume(next)

	if o.Telemetry != nil {
		o.Telemetry.RecordTurnCompleted(ctx)
	}
	return next, nil
}

func (o *Orchestrator) finish(cfg Config, checkpointTurns map[int]struct{}, status Status) (*checkpoint.Result, error) {
	o.status = status
	turns := make([]int, 0, len(checkpointTurns))
	for t := range checkpointTurns {
		turns = append(turns, t)
	}
	sort.Ints(turns)

	globals := map[string]any{}
	for name, v := range o.snapshot.GlobalVars {
		globals[name] = v.Raw()
	}
	result := checkpoint.Result{
		RunMetadata: map[string]any{
			"run_id":           o.runID,
			"simulation_name":  cfg.SimulationName,
			"num_agents":       len(cfg.InitialAgents),
			"start_time":       o.started.UTC().Format(time.RFC3339Nano),
			"end_time":         time.Now().UTC().Format(time.RFC3339Nano),
			"schema_fingerprint": o.Schema.Fingerprint(),
		},
		FinalState:      globals,
		CheckpointTurns: turns,
		SummaryStats:    map[string]any{"final_turn": o.snapshot.Turn, "final_population": len(o.snapshot.Agents)},
	}
	if err := o.Store.SaveResult(o.runID, result); err != nil {
		return nil, err
	}
	return &result, nil
}

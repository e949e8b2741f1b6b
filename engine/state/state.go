// Package state implements the immutable, snapshot-based world state
// (spec §3.2): global vars + per-agent vars + spatial topology, with
// copy-on-write updates validated against the declared variable schema.
package state

import (
	"fmt"
	"sort"

	"github.com/turnforge/simcore/engine/core"
	"github.com/turnforge/simcore/engine/schema"
	"github.com/turnforge/simcore/engine/spatial"
)

// MaxAgents is the population cap enforced on every snapshot (spec §3.2,
// §4.9).
const MaxAgents = 25

// ReasoningRecord is an append-only audit entry attached by a component
// during the turn that produced it (spec §3.2).
type ReasoningRecord struct {
	Component  string  `json:"component"` // "agent" | "validator" | "engine"
	AgentName  string  `json:"agent,omitempty"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence,omitempty"`
}

// AgentRecord is one agent's game values plus its private memory blob.
type AgentRecord struct {
	Vars   map[string]schema.TypedValue
	Memory []byte // opaque, JSON-serializable, owned by the agent
}

// Snapshot is the immutable, persistent StateSnapshot of spec §3.2. All
// mutating operations return a new Snapshot; callers must never mutate
// fields of a Snapshot returned by any function in this package.
type Snapshot struct {
	Turn             int
	GlobalVars       map[string]schema.TypedValue
	Agents           map[string]AgentRecord
	Spatial          *spatial.State // optional
	PausedAgents     map[string]struct{}
	AutoResume       map[string]int
	ReasoningTrail   []ReasoningRecord
	SchemaFingerprint string
}

// Initial constructs turn 0 with every declared variable set to its
// schema default, and no agents.
func Initial(sc *schema.Schema) *Snapshot {
	globals := make(map[string]schema.TypedValue, len(sc.GlobalVars))
	for name, def := range sc.GlobalVars {
		v, _ := sc.Validate(schema.ScopeGlobal, name, def.Default)
		globals[name] = v
	}
	return &Snapshot{
		Turn:              0,
		GlobalVars:        globals,
		Agents:            map[string]AgentRecord{},
		PausedAgents:      map[string]struct{}{},
		AutoResume:        map[string]int{},
		ReasoningTrail:    nil,
		SchemaFingerprint: sc.Fingerprint(),
	}
}

// NewAgentRecord builds an AgentRecord with every agent_vars default,
// overridden by initialState, validated against sc.
func NewAgentRecord(sc *schema.Schema, initialState map[string]any, memory []byte) (AgentRecord, error) {
	vars := make(map[string]schema.TypedValue, len(sc.AgentVars))
	for name, def := range sc.AgentVars {
		value := def.Default
		if override, ok := initialState[name]; ok {
			value = override
		}
		v, err := sc.Validate(schema.ScopeAgent, name, value)
		if err != nil {
			return AgentRecord{}, err
		}
		vars[name] = v
	}
	if memory == nil {
		memory = []byte("null")
	}
	return AgentRecord{Vars: vars, Memory: memory}, nil
}

// Clone performs a shallow structural copy sufficient to hand out a
// snapshot that callers may layer With* updates onto without mutating the
// original. Nested maps are copied one level deep (schema.TypedValue and
// []byte memory are themselves immutable once constructed).
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Turn:              s.Turn,
		GlobalVars:        make(map[string]schema.TypedValue, len(s.GlobalVars)),
		Agents:            make(map[string]AgentRecord, len(s.Agents)),
		PausedAgents:      make(map[string]struct{}, len(s.PausedAgents)),
		AutoResume:        make(map[string]int, len(s.AutoResume)),
		ReasoningTrail:    append([]ReasoningRecord(nil), s.ReasoningTrail...),
		SchemaFingerprint: s.SchemaFingerprint,
	}
	for k, v := range s.GlobalVars {
		out.GlobalVars[k] = v
	}
	for k, rec := range s.Agents {
		out.Agents[k] = AgentRecord{
			Vars:   copyVars(rec.Vars),
			Memory: append([]byte(nil), rec.Memory...),
		}
	}
	for k := range s.PausedAgents {
		out.PausedAgents[k] = struct{}{}
	}
	for k, v := range s.AutoResume {
		out.AutoResume[k] = v
	}
	if s.Spatial != nil {
		sp := s.Spatial.Clone()
		out.Spatial = &sp
	}
	return out
}

func copyVars(in map[string]schema.TypedValue) map[string]schema.TypedValue {
	out := make(map[string]schema.TypedValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Updates describes a proposed set of changes to apply via WithUpdates.
type Updates struct {
	GlobalVars      map[string]any
	AgentVars       map[string]map[string]any // agent name -> var name -> value
	AgentMemory     map[string][]byte          // agent name -> new memory blob
	Spatial         *spatial.State             // replacement spatial state, if any
	AppendReasoning []ReasoningRecord
}

// WithUpdates returns a new Snapshot with the given updates applied,
// validating every new value against sc and enforcing the population cap
// and spatial referential integrity. It never mutates the receiver.
func WithUpdates(sc *schema.Schema, snap *Snapshot, upd Updates) (*Snapshot, error) {
	out := snap.Clone()
	for name, value := range upd.GlobalVars {
		v, err := sc.Validate(schema.ScopeGlobal, name, value)
		if err != nil {
			return nil, err
		}
		out.GlobalVars[name] = v
	}
	for agentName, vars := range upd.AgentVars {
		rec, ok := out.Agents[agentName]
		if !ok {
			return nil, core.NewError(
				fmt.Errorf("update targets unknown agent %q", agentName),
				core.CodeInvariantViolation, map[string]any{"agent": agentName},
			)
		}
		for name, value := range vars {
			v, err := sc.Validate(schema.ScopeAgent, name, value)
			if err != nil {
				return nil, err
			}
			rec.Vars[name] = v
		}
		out.Agents[agentName] = rec
	}
	for agentName, mem := range upd.AgentMemory {
		rec, ok := out.Agents[agentName]
		if !ok {
			return nil, core.NewError(
				fmt.Errorf("memory update targets unknown agent %q", agentName),
				core.CodeInvariantViolation, map[string]any{"agent": agentName},
			)
		}
		rec.Memory = mem
		out.Agents[agentName] = rec
	}
	if upd.Spatial != nil {
		out.Spatial = upd.Spatial
	}
	out.ReasoningTrail = append(out.ReasoningTrail, upd.AppendReasoning...)
	if err := CheckInvariants(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckInvariants validates the invariants listed in spec §3.2/§8 that are
// independent of how a snapshot was produced.
func CheckInvariants(s *Snapshot) error {
	if len(s.Agents) > MaxAgents {
		return core.NewError(
			fmt.Errorf("population cap exceeded: %d agents > max %d", len(s.Agents), MaxAgents),
			core.CodeInvariantViolation, map[string]any{"count": len(s.Agents)},
		)
	}
	for name := range s.PausedAgents {
		if _, ok := s.Agents[name]; !ok {
			return core.NewError(
				fmt.Errorf("paused_agents contains unknown agent %q", name),
				core.CodeInvariantViolation, map[string]any{"agent": name},
			)
		}
	}
	for name, n := range s.AutoResume {
		if _, ok := s.Agents[name]; !ok {
			return core.NewError(
				fmt.Errorf("auto_resume contains unknown agent %q", name),
				core.CodeInvariantViolation, map[string]any{"agent": name},
			)
		}
		if n <= 0 {
			return core.NewError(
				fmt.Errorf("auto_resume[%q] must be positive, got %d", name, n),
				core.CodeInvariantViolation, map[string]any{"agent": name},
			)
		}
	}
	if s.Spatial != nil {
		if err := spatial.CheckInvariants(s.Spatial); err != nil {
			return err
		}
	}
	return nil
}

// Equals reports whether two snapshots have the same Fingerprint (used by
// the round-trip law in spec §8): turn, global and agent variables, agent
// memory, paused agents, auto-resume counters and schema fingerprint.
// Spatial state and reasoning records are not compared.
func Equals(a, b *Snapshot) bool {
	af, _ := Fingerprint(a)
	bf, _ := Fingerprint(b)
	return af == bf
}

// Fingerprint returns a hash of the snapshot fields listed on Equals;
// spatial state and reasoning records are not hashed. It is distinct from
// the schema fingerprint, which only hashes the declared schema.
func Fingerprint(s *Snapshot) (string, error) {
	return core.CanonicalHash(toHashable(s))
}

func toHashable(s *Snapshot) map[string]any {
	globals := map[string]any{}
	for k, v := range s.GlobalVars {
		globals[k] = v.Raw()
	}
	agents := map[string]any{}
	for name, rec := range s.Agents {
		vars := map[string]any{}
		for k, v := range rec.Vars {
			vars[k] = v.Raw()
		}
		agents[name] = map[string]any{"vars": vars, "memory": string(rec.Memory)}
	}
	paused := make([]string, 0, len(s.PausedAgents))
	for name := range s.PausedAgents {
		paused = append(paused, name)
	}
	sort.Strings(paused)
	return map[string]any{
		"turn":               s.Turn,
		"global_state":       globals,
		"agents":             agents,
		"paused_agents":      paused,
		"auto_resume":        s.AutoResume,
		"schema_fingerprint": s.SchemaFingerprint,
	}
}

// Package schema implements the config-driven variable schema (spec §3.1,
// §4.1): variable definitions for the agent_vars and global_vars scopes,
// a validator that coerces or rejects proposed values, and the
// sha256 schema fingerprint used to gate checkpoint compatibility.
package schema

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/turnforge/simcore/engine/core"
)

// Kind is the declared type of a variable.
type Kind string

const (
	KindFloat       Kind = "float"
	KindInt         Kind = "int"
	KindBool        Kind = "bool"
	KindCategorical Kind = "categorical"
)

var allKinds = []Kind{KindFloat, KindInt, KindBool, KindCategorical}

// Scope is one of the two variable namespaces declared in configuration.
type Scope string

const (
	ScopeAgent  Scope = "agent_vars"
	ScopeGlobal Scope = "global_vars"
)

// VariableDefinition is one declared variable: its kind, optional numeric
// bounds, categorical values, and default.
type VariableDefinition struct {
	Name          string   `json:"name"`
	Kind          Kind     `json:"kind"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Default       any      `json:"default"`
}

// TypedValue is the coerced, schema-conformant representation of a
// variable's value. Exactly one field is meaningful, selected by Kind.
type TypedValue struct {
	Kind        Kind
	FloatValue  decimal.Decimal
	IntValue    int64
	BoolValue   bool
	StringValue string // categorical
}

// Raw returns the plain Go value for JSON (re-)serialization.
func (t TypedValue) Raw() any {
	switch t.Kind {
	case KindFloat:
		f, _ := t.FloatValue.Float64()
		return f
	case KindInt:
		return t.IntValue
	case KindBool:
		return t.BoolValue
	case KindCategorical:
		return t.StringValue
	default:
		return nil
	}
}

// Schema is the full declared set of variable definitions for both scopes.
type Schema struct {
	AgentVars  map[string]VariableDefinition
	GlobalVars map[string]VariableDefinition

	fingerprint string
}

// Build validates every definition (unique names are implicit in the map
// key, unknown kinds rejected, defaults must satisfy their own
// constraints) and computes the schema fingerprint.
func Build(agentVars, globalVars map[string]VariableDefinition) (*Schema, error) {
	for scope, defs := range map[Scope]map[string]VariableDefinition{
		ScopeAgent:  agentVars,
		ScopeGlobal: globalVars,
	} {
		for name, def := range defs {
			if def.Name == "" {
				def.Name = name
			}
			if !validKind(def.Kind) {
				return nil, core.NewError(
					fmt.Errorf("%s.%s: unknown kind %q (supported: %v)", scope, name, def.Kind, allKinds),
					core.CodeConfigError, map[string]any{"scope": scope, "name": name},
				)
			}
			defs[name] = def
		}
	}
	s := &Schema{AgentVars: agentVars, GlobalVars: globalVars}
	for scope, defs := range map[Scope]map[string]VariableDefinition{
		ScopeAgent:  agentVars,
		ScopeGlobal: globalVars,
	} {
		for name, def := range defs {
			if _, err := s.Validate(scope, name, def.Default); err != nil {
				return nil, core.NewError(
					fmt.Errorf("%s.%s: default value rejected by its own constraints: %w", scope, name, err),
					core.CodeConfigError, map[string]any{"scope": scope, "name": name},
				)
			}
		}
	}
	fp, err := s.computeFingerprint()
	if err != nil {
		return nil, core.NewError(err, core.CodeConfigError, nil)
	}
	s.fingerprint = fp
	return s, nil
}

func validKind(k Kind) bool {
	for _, candidate := range allKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Fingerprint returns the schema's sha256 content fingerprint.
func (s *Schema) Fingerprint() string { return s.fingerprint }

func (s *Schema) computeFingerprint() (string, error) {
	canon := map[string]any{
		"agent_vars":  canonicalizeDefs(s.AgentVars),
		"global_vars": canonicalizeDefs(s.GlobalVars),
	}
	return core.CanonicalHash(canon)
}

func canonicalizeDefs(defs map[string]VariableDefinition) map[string]any {
	out := make(map[string]any, len(defs))
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := defs[name]
		entry := map[string]any{"kind": string(def.Kind), "default": def.Default}
		if def.Min != nil {
			entry["min"] = *def.Min
		}
		if def.Max != nil {
			entry["max"] = *def.Max
		}
		if len(def.AllowedValues) > 0 {
			entry["allowed_values"] = def.AllowedValues
		}
		out[name] = entry
	}
	return out
}

// Definition looks up the declared definition for a scope/name pair.
func (s *Schema) Definition(scope Scope, name string) (VariableDefinition, bool) {
	var defs map[string]VariableDefinition
	switch scope {
	case ScopeAgent:
		defs = s.AgentVars
	case ScopeGlobal:
		defs = s.GlobalVars
	}
	def, ok := defs[name]
	return def, ok
}

// Validate coerces a proposed value for {scope, name} against its
// declared definition, returning a SchemaViolation-coded *core.Error when
// the value is out of bounds, the wrong kind, or the variable is
// undeclared. Numeric bounds are inclusive and violations are rejected,
// never clamped.
func (s *Schema) Validate(scope Scope, name string, value any) (TypedValue, error) {
	def, ok := s.Definition(scope, name)
	if !ok {
		return TypedValue{}, core.NewError(
			fmt.Errorf("undeclared variable %s.%s", scope, name),
			core.CodeSchemaViolation, map[string]any{"scope": scope, "name": name},
		)
	}
	switch def.Kind {
	case KindFloat:
		return s.validateFloat(scope, name, def, value)
	case KindInt:
		return s.validateInt(scope, name, def, value)
	case KindBool:
		return s.validateBool(scope, name, def, value)
	case KindCategorical:
		return s.validateCategorical(scope, name, def, value)
	default:
		return TypedValue{}, core.NewError(
			fmt.Errorf("%s.%s: unknown kind %q", scope, name, def.Kind),
			core.CodeSchemaViolation, nil,
		)
	}
}

func (s *Schema) violation(scope Scope, name string, msg string) error {
	return core.NewError(
		fmt.Errorf("%s.%s: %s", scope, name, msg),
		core.CodeSchemaViolation, map[string]any{"scope": scope, "name": name},
	)
}

func (s *Schema) validateFloat(scope Scope, name string, def VariableDefinition, value any) (TypedValue, error) {
	d, err := toDecimal(value)
	if err != nil {
		return TypedValue{}, s.violation(scope, name, err.Error())
	}
	if def.Min != nil && d.LessThan(decimal.NewFromFloat(*def.Min)) {
		return TypedValue{}, s.violation(scope, name, fmt.Sprintf("%s below min %v", d, *def.Min))
	}
	if def.Max != nil && d.GreaterThan(decimal.NewFromFloat(*def.Max)) {
		return TypedValue{}, s.violation(scope, name, fmt.Sprintf("%s above max %v", d, *def.Max))
	}
	return TypedValue{Kind: KindFloat, FloatValue: d}, nil
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Decimal{}, fmt.Errorf("value %v is not numeric", value)
	}
}

func (s *Schema) validateInt(scope Scope, name string, def VariableDefinition, value any) (TypedValue, error) {
	var i int64
	switch v := value.(type) {
	case int:
		i = int64(v)
	case int64:
		i = v
	case float64:
		if v != float64(int64(v)) {
			return TypedValue{}, s.violation(scope, name, fmt.Sprintf("%v is not an integer", v))
		}
		i = int64(v)
	default:
		return TypedValue{}, s.violation(scope, name, fmt.Sprintf("value %v is not an int", value))
	}
	if def.Min != nil && float64(i) < *def.Min {
		return TypedValue{}, s.violation(scope, name, fmt.Sprintf("%d below min %v", i, *def.Min))
	}
	if def.Max != nil && float64(i) > *def.Max {
		return TypedValue{}, s.violation(scope, name, fmt.Sprintf("%d above max %v", i, *def.Max))
	}
	return TypedValue{Kind: KindInt, IntValue: i}, nil
}

func (s *Schema) validateBool(scope Scope, name string, _ VariableDefinition, value any) (TypedValue, error) {
	b, ok := value.(bool)
	if !ok {
		return TypedValue{}, s.violation(scope, name, fmt.Sprintf("value %v is not a bool", value))
	}
	return TypedValue{Kind: KindBool, BoolValue: b}, nil
}

func (s *Schema) validateCategorical(
	scope Scope,
	name string,
	def VariableDefinition,
	value any,
) (TypedValue, error) {
	str, ok := value.(string)
	if !ok {
		return TypedValue{}, s.violation(scope, name, fmt.Sprintf("value %v is not a string", value))
	}
	for _, allowed := range def.AllowedValues {
		if allowed == str {
			return TypedValue{Kind: KindCategorical, StringValue: str}, nil
		}
	}
	return TypedValue{}, s.violation(scope, name, fmt.Sprintf("%q not in allowed values %v", str, def.AllowedValues))
}

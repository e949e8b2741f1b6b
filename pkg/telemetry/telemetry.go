// Package telemetry provides the tracing spans and metrics counters used
// around turns, LLM calls, and checkpoint saves. It carries no simulation
// semantics of its own — it is pure instrumentation, distinct from the
// external logging renderer and web/DB export layer.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/turnforge/simcore"

// Telemetry bundles the tracer and the counters/histograms for turns, LLM
// calls, agent decisions and checkpoint writes. Within the engine only the
// orchestrator uses it (turn spans, turn-completed and LLM-failure counts).
type Telemetry struct {
	tracer trace.Tracer

	mu               sync.Mutex
	turnsCompleted   metric.Int64Counter
	turnsAborted     metric.Int64Counter
	llmRetries       metric.Int64Counter
	llmFailures      metric.Int64Counter
	decisionDuration metric.Float64Histogram
	checkpointWrite  metric.Float64Histogram
}

// New builds a Telemetry instance against the global OpenTelemetry
// tracer/meter providers. Callers who want a dedicated SDK/exporter should
// register it as the global provider before calling New (e.g. via
// go.opentelemetry.io/otel/exporters/prometheus + otel/sdk/metric), so that
// production wiring and test wiring share the same construction path.
func New() *Telemetry {
	meter := otel.Meter(instrumentationName)
	t := &Telemetry{tracer: otel.Tracer(instrumentationName)}

	t.turnsCompleted, _ = meter.Int64Counter(
		"simcore.turns.completed",
		metric.WithDescription("Number of turns successfully committed"),
	)
	t.turnsAborted, _ = meter.Int64Counter(
		"simcore.turns.aborted",
		metric.WithDescription("Number of turns aborted due to an unrecoverable error"),
	)
	t.llmRetries, _ = meter.Int64Counter(
		"simcore.llm.retries",
		metric.WithDescription("Number of LLM call retries issued"),
	)
	t.llmFailures, _ = meter.Int64Counter(
		"simcore.llm.failures",
		metric.WithDescription("Number of LLM calls that exhausted their retry budget"),
	)
	t.decisionDuration, _ = meter.Float64Histogram(
		"simcore.agent.decision_duration_seconds",
		metric.WithDescription("Wall-clock time spent in an agent's Decide call"),
	)
	t.checkpointWrite, _ = meter.Float64Histogram(
		"simcore.checkpoint.write_duration_seconds",
		metric.WithDescription("Wall-clock time spent writing a checkpoint"),
	)
	return t
}

// StartTurnSpan starts a tracing span covering one orchestrator turn.
func (t *Telemetry) StartTurnSpan(ctx context.Context, turn int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "orchestrator.turn", trace.WithAttributes(
		attribute.Int("simcore.turn", turn),
	))
}

// StartLLMSpan starts a tracing span covering one LLM call.
func (t *Telemetry) StartLLMSpan(ctx context.Context, component string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "llmadapter.call."+component)
}

// StartCheckpointSpan starts a tracing span covering one checkpoint save.
func (t *Telemetry) StartCheckpointSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "checkpoint.save")
}

// RecordTurnCompleted increments the completed-turn counter.
func (t *Telemetry) RecordTurnCompleted(ctx context.Context) {
	if t.turnsCompleted != nil {
		t.turnsCompleted.Add(ctx, 1)
	}
}

// RecordTurnAborted increments the aborted-turn counter.
func (t *Telemetry) RecordTurnAborted(ctx context.Context) {
	if t.turnsAborted != nil {
		t.turnsAborted.Add(ctx, 1)
	}
}

// RecordLLMRetry increments the LLM retry counter.
func (t *Telemetry) RecordLLMRetry(ctx context.Context) {
	if t.llmRetries != nil {
		t.llmRetries.Add(ctx, 1)
	}
}

// RecordLLMFailure increments the LLM failure counter.
func (t *Telemetry) RecordLLMFailure(ctx context.Context) {
	if t.llmFailures != nil {
		t.llmFailures.Add(ctx, 1)
	}
}

// RecordDecisionDuration records how long an agent's Decide call took.
func (t *Telemetry) RecordDecisionDuration(ctx context.Context, seconds float64) {
	if t.decisionDuration != nil {
		t.decisionDuration.Record(ctx, seconds)
	}
}

// RecordCheckpointWrite records how long a checkpoint save took.
func (t *Telemetry) RecordCheckpointWrite(ctx context.Context, seconds float64) {
	if t.checkpointWrite != nil {
		t.checkpointWrite.Record(ctx, seconds)
	}
}

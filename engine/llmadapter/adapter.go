package llmadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	kjsonschema "github.com/kaptinlin/jsonschema"
	"github.com/pkoukk/tiktoken-go"
	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/turnforge/simcore/engine/core"
	"github.com/turnforge/simcore/pkg/logger"
)

// Client is the narrow surface of a langchaingo model the Adapter needs.
// New wraps an llms.Model in modelClient to satisfy it.
type Client interface {
	Call(ctx context.Context, prompt string) (string, error)
}

// modelClient adapts an llms.Model to Client via a single-prompt call.
type modelClient struct {
	model llms.Model
}

func (m *modelClient) Call(ctx context.Context, prompt string) (string, error) {
	resp, err := llms.GenerateFromSinglePrompt(ctx, m.model, prompt)
	if err != nil {
		return "", err
	}
	return resp, nil
}

// RetryPolicy configures the call_with_retry backoff (spec §4.5).
type RetryPolicy struct {
	DelayMin   time.Duration
	DelayMax   time.Duration
	MaxRetries uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{DelayMin: time.Second, DelayMax: 5 * time.Second, MaxRetries: 1}
}

// Adapter wraps a langchaingo model behind the schema-validated call
// contract used by the rest of the engine.
type Adapter struct {
	client  Client
	retry   RetryPolicy
	scripts *ScriptedResponseSource
	enc     *tiktoken.Tiktoken
}

// New constructs an Adapter around an Ollama-backed langchaingo model,
// honoring OLLAMA_HOST when set. Pass opts to override defaults or to
// inject a ScriptedResponseSource for deterministic tests.
func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{retry: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		llmOpts := []ollama.Option{}
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			llmOpts = append(llmOpts, ollama.WithServerURL(host))
		}
		model, err := ollama.New(llmOpts...)
		if err != nil {
			return nil, core.NewError(fmt.Errorf("construct ollama model: %w", err), core.CodeLLMFailure, nil)
		}
		a.client = &modelClient{model: model}
	}
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		a.enc = enc
	}
	return a, nil
}

type Option func(*Adapter)

// WithClient overrides the underlying transport, e.g. with a Client
// wrapping a test double.
func WithClient(c Client) Option { return func(a *Adapter) { a.client = c } }

// WithRetryPolicy overrides the default retry backoff.
func WithRetryPolicy(p RetryPolicy) Option { return func(a *Adapter) { a.retry = p } }

// WithScriptedResponses injects a ScriptedResponseSource; when set, Call
// consults it before touching the underlying client at all.
func WithScriptedResponses(s *ScriptedResponseSource) Option {
	return func(a *Adapter) { a.scripts = s }
}

// Call issues req, retrying on transient failure and validating the
// response against req's schema, per spec §4.5.
func (a *Adapter) Call(ctx context.Context, req CallRequest) (*CallResult, error) {
	log := logger.FromContext(ctx)
	schema, err := a.resolveSchema(req)
	if err != nil {
		return nil, err
	}
	prompt := req.Prompt + "\n\nRespond with JSON matching this schema:\n" + mustJSON(schema)

	if a.scripts != nil {
		if raw, ok := a.scripts.Lookup(req.Component, req.AgentName, prompt); ok {
			return a.finish(raw, schema, 1)
		}
	}

	backoff := retry.NewExponential(a.retry.DelayMin)
	backoff = retry.WithCappedDuration(a.retry.DelayMax, backoff)
	backoff = retry.WithJitter(100*time.Millisecond, backoff)
	backoff = retry.WithMaxRetries(a.retry.MaxRetries, backoff)

	var result *CallResult
	attempts := 0
	callErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		raw, err := a.client.Call(ctx, prompt)
		if err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		res, verr := a.finish(raw, schema, attempts)
		if verr != nil {
			if extracted, ok := extractBalancedJSON(raw); ok {
				if res2, verr2 := a.finish(extracted, schema, attempts); verr2 == nil {
					result = res2
					return nil
				}
			}
			return retry.RetryableError(verr)
		}
		result = res
		return nil
	})

	if callErr != nil {
		log.With("component", req.Component, "agent_name", req.AgentName, "run_id", req.RunID, "attempts", attempts, "reason", callErr.Error()).
			Error("llm call failed after retries")
		return nil, &LLMFailure{Reason: callErr.Error(), Attempts: attempts, Component: req.Component}
	}
	return result, nil
}

func (a *Adapter) finish(raw string, schema map[string]any, attempts int) (*CallResult, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, core.NewError(fmt.Errorf("response is not valid JSON: %w", err), core.CodeLLMFailure, nil)
	}
	if err := validateAgainstSchema(schema, raw); err != nil {
		return nil, err
	}
	return &CallResult{Raw: raw, Parsed: parsed, TokensUsed: a.countTokens(raw), Attempts: attempts}, nil
}

func (a *Adapter) countTokens(s string) int {
	if a.enc == nil {
		return 0
	}
	defer func() { _ = recover() }()
	return len(a.enc.Encode(s, nil, nil))
}

func (a *Adapter) resolveSchema(req CallRequest) (map[string]any, error) {
	if req.Schema != nil {
		return req.Schema, nil
	}
	if req.Target == nil {
		return map[string]any{"type": "object"}, nil
	}
	reflector := &jsonschema.Reflector{DoNotReference: true}
	s := reflector.Reflect(req.Target)
	b, err := json.Marshal(s)
	if err != nil {
		return nil, core.NewError(fmt.Errorf("build response schema: %w", err), core.CodeLLMFailure, nil)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, core.NewError(fmt.Errorf("decode response schema: %w", err), core.CodeLLMFailure, nil)
	}
	return m, nil
}

func validateAgainstSchema(schema map[string]any, raw string) error {
	b, err := json.Marshal(schema)
	if err != nil {
		return core.NewError(fmt.Errorf("marshal schema: %w", err), core.CodeLLMFailure, nil)
	}
	compiler := kjsonschema.NewCompiler()
	compiled, err := compiler.Compile(b)
	if err != nil {
		// A schema the compiler can't ingest never gates correctness; skip
		// validation rather than fail calls on a tooling limitation.
		return nil
	}
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return core.NewError(fmt.Errorf("response is not valid JSON: %w", err), core.CodeLLMFailure, nil)
	}
	result := compiled.Validate(data)
	if !result.IsValid() {
		return core.NewError(fmt.Errorf("response failed schema validation"), core.CodeSchemaViolation, nil)
	}
	return nil
}

// extractBalancedJSON returns the largest balanced {...} substring of s,
// used as a fallback when the model wraps JSON in prose (spec §4.5.3).
func extractBalancedJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	objStart, bestStart, bestEnd := -1, -1, -1
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				objStart = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && i-objStart > bestEnd-bestStart {
				bestStart, bestEnd = objStart, i
			}
		}
	}
	if bestEnd < 0 {
		return "", false
	}
	return s[bestStart : bestEnd+1], true
}

var fiveXX = regexp.MustCompile(`\b5\d{2}\b`)

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	if fiveXX.MatchString(msg) {
		return true
	}
	for _, marker := range []string{"timeout", "connection refused", "connection reset", "eof", "429"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

package llm

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prreview/orchestrator/internal/config"
)

// Runtime is the Agent Runtime component (§4.4): it owns the selected
// Provider, builds the per-agent system prompt, and measures wall-clock
// execution the way the teacher's poller measures agent latency
// (startedAt/finishedAt bracketing a single call).
type Runtime struct {
	provider Provider
	budget   *Budget
	log      *logrus.Entry
}

// NewRuntime selects a Provider by cfg.LLMProvider, grounding the
// mock/openai/anthropic choice in a single switch rather than a plugin
// registry, since there are exactly three backends named in §4.4.
func NewRuntime(cfg *config.Config, log *logrus.Entry) *Runtime {
	var provider Provider
	switch cfg.LLMProvider {
	case config.LLMProviderOpenAI:
		provider = NewOpenAIProvider(cfg.LLMAPIKey, cfg.LLMModel)
	case config.LLMProviderAnthropic:
		provider = NewAnthropicProvider(cfg.LLMAPIKey, cfg.LLMModel)
	default:
		provider = NewMockProvider()
	}
	return &Runtime{
		provider: provider,
		budget:   NewBudget(cfg.LLMTokenBudget, ""),
		log:      log.WithField("provider", provider.Name()),
	}
}

// Budget exposes the runtime's shared per-process token budget; the
// orchestrator holds one Runtime (and therefore one Budget) per workflow.
func (rt *Runtime) Budget() *Budget { return rt.budget }

// ExecutionResult brackets a CallLLM invocation with timing, for the
// orchestrator's AgentRun.LatencyMs field.
type ExecutionResult struct {
	Result    CallResult
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// buildSystemPrompt composes the shared preamble every agent prompt opens
// with (role, constraints, output-format reminder) followed by the
// agent-specific instructions, per §4.4 "every agent call is built from a
// shared system preamble plus an agent-specific body".
func buildSystemPrompt(role, instructions string) string {
	return "You are the " + role + " stage of an automated pull request review pipeline.\n" +
		"Respond only with the requested output; do not add commentary outside it.\n\n" +
		instructions
}

// BuildSystemPrompt is the exported entry point agents use to assemble
// their system message.
func (rt *Runtime) BuildSystemPrompt(role, instructions string) string {
	return buildSystemPrompt(role, instructions)
}

// Execute runs a single bounded CallLLM, reserving its estimated prompt
// token cost against the budget before dialing out and recording wall-clock
// duration, matching measureExecution in §4.4.
func (rt *Runtime) Execute(ctx context.Context, messages []Message, opts CallOptions) ExecutionResult {
	started := time.Now()

	estimate := 0
	for _, m := range messages {
		estimate += rt.budget.CountTokens(m.Content)
	}
	if !rt.budget.Reserve(estimate) {
		return ExecutionResult{
			StartedAt: started,
			Duration:  time.Since(started),
			Err:       &LLMError{Provider: rt.provider.Name(), Err: errBudgetExhausted},
		}
	}

	result, err := rt.provider.CallLLM(ctx, messages, opts)
	return ExecutionResult{
		Result:    result,
		StartedAt: started,
		Duration:  time.Since(started),
		Err:       err,
	}
}

var errBudgetExhausted = completionError("workflow token budget exhausted")

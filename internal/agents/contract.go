// Package agents implements the fixed review DAG's individual agents:
// analysis, intent, risk, context, review, tests, docs, synthesis (§4.3).
//
// Design note §9 calls for "a registered agent-descriptor map instead of
// polymorphic dispatch"; Descriptors here replace what the teacher does
// with a single concrete review-loop function (server/reviewloop.go has no
// DAG of its own — it runs one linear Cursor agent call per PR) with a
// small map the orchestrator walks by name.
package agents

import (
	"context"
	"time"

	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/llm"
	"github.com/prreview/orchestrator/internal/preference"
)

// Input is the per-agent execution context: the workflow being processed,
// a read-only view of every predecessor's output keyed by agent name, and
// the resolved preference model for the workflow's repository.
type Input struct {
	Workflow    *domain.Workflow
	Predecessors map[string]*domain.AgentRun
	Preferences *domain.RepoPreferenceModel
	ChangedFiles []ChangedFile
	PRBody      string
}

// ChangedFile is the minimal per-file diff metadata carried on Input; the
// analysis agent aggregates it into counts, and agents that need paths or
// patches read Input.ChangedFiles directly.
type ChangedFile struct {
	Path      string
	Additions int
	Deletions int
	Patch     string
}

// Output is what an agent returns on success; it becomes AgentRun.Output
// and must be a typed, serializable record per §4.3's agent contract.
type Output struct {
	Data any
}

// Agent is a pure function of (input, context) -> (output, error); agents
// must not observe each other's state except through Input.Predecessors
// (§4.3 "Agents must not observe each other's state except through
// declared inputs").
type Agent interface {
	Name() string
	Run(ctx context.Context, in Input) (Output, error)
}

// Descriptor declares one node of the fixed DAG: its agent, its
// predecessors, its timeout, and whether it is critical (non-critical
// agents are the first skipped when the workflow token budget is
// exhausted, per §4.3 cost control). Critical does not mean "can fail the
// workflow": only the DAG's terminal fan-in node (synthesis) can do that,
// regardless of how any other node's Critical is set -- every other
// agent's failure cascades SKIPPED to its dependents (§4.3 error policy).
type Descriptor struct {
	Agent      Agent
	DependsOn  []string
	Timeout    time.Duration
	Critical   bool
}

const (
	defaultAgentTimeout = 60 * time.Second
	llmHeavyAgentTimeout = 180 * time.Second
)

// Registry builds the fixed DAG named in §4.3:
//
//	        ┌──► intent ──┐
//	analysis┼──► risk ────┼──► review ──┬──► tests
//	        └──► context ─┘             ├──► docs
//	                                    └──► synthesis (fan-in)
func Registry(rt *llm.Runtime, prefs *preference.Store) map[string]Descriptor {
	return map[string]Descriptor{
		"analysis": {Agent: NewAnalysisAgent(), DependsOn: nil, Timeout: defaultAgentTimeout, Critical: true},
		"intent":   {Agent: NewIntentAgent(rt), DependsOn: []string{"analysis"}, Timeout: llmHeavyAgentTimeout, Critical: true},
		"risk":     {Agent: NewRiskAgent(), DependsOn: []string{"analysis"}, Timeout: defaultAgentTimeout, Critical: true},
		"context":  {Agent: NewContextAgent(rt), DependsOn: []string{"analysis"}, Timeout: llmHeavyAgentTimeout, Critical: true},
		// The DAG diagram in §4.3 joins intent, risk, and context into the
		// same arrow before review; review reads all three through
		// Input.Predecessors even though its prose description only calls
		// out risk and context explicitly.
		"review":   {Agent: NewReviewAgent(rt, prefs), DependsOn: []string{"intent", "risk", "context"}, Timeout: llmHeavyAgentTimeout, Critical: true},
		"tests":    {Agent: NewTestsAgent(rt), DependsOn: []string{"review"}, Timeout: llmHeavyAgentTimeout, Critical: false},
		"docs":     {Agent: NewDocsAgent(rt), DependsOn: []string{"review"}, Timeout: llmHeavyAgentTimeout, Critical: false},
		"synthesis": {Agent: NewSynthesisAgent(rt), DependsOn: []string{"review", "tests", "docs"}, Timeout: defaultAgentTimeout, Critical: true},
	}
}

func outputOf(in Input, agentName string) any {
	run, ok := in.Predecessors[agentName]
	if !ok || run == nil {
		return nil
	}
	return run.Output
}

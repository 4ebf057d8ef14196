// Package orchestrator implements the Agent Orchestrator (§4.3): it walks
// the fixed agent DAG declared in internal/agents, honoring per-agent
// timeouts, a two-level concurrency semaphore (per-workflow and global),
// cooperative cancellation, the SKIPPED cascade on failed/timed-out
// predecessors, and workflow token-budget gating of non-critical agents.
//
// Grounded on the teacher's server/poller.go sweep: a loop over a set of
// in-flight records, each checked and advanced independently, generalized
// here from a flat agent list into levels of a dependency graph.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prreview/orchestrator/internal/agents"
	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/llm"
	"github.com/prreview/orchestrator/internal/store"
)

// PRContext supplies the diff metadata the analysis agent needs but that
// the Workflow Engine's domain.Workflow does not itself carry. Implemented
// by the GitHub provider client.
type PRContext interface {
	Load(ctx context.Context, wf *domain.Workflow) (changedFiles []agents.ChangedFile, prBody string, err error)
}

// Orchestrator executes the fixed DAG described by a descriptor map for
// every workflow handed to it by the Workflow Engine.
type Orchestrator struct {
	descriptors map[string]agents.Descriptor
	runs        store.AgentRunRepo
	budget      *llm.Budget
	prContext   PRContext

	globalSem chan struct{}
	perWFN    int

	log *logrus.Entry
}

// New constructs an Orchestrator. globalCapacity bounds total concurrent
// agent executions across every workflow (recommended 64); perWorkflow
// bounds concurrency within a single workflow (recommended 4).
func New(descriptors map[string]agents.Descriptor, runs store.AgentRunRepo, budget *llm.Budget, prContext PRContext, globalCapacity, perWorkflow int, log *logrus.Entry) *Orchestrator {
	if globalCapacity <= 0 {
		globalCapacity = 64
	}
	if perWorkflow <= 0 {
		perWorkflow = 4
	}
	return &Orchestrator{
		descriptors: descriptors,
		runs:        runs,
		budget:      budget,
		prContext:   prContext,
		globalSem:   make(chan struct{}, globalCapacity),
		perWFN:      perWorkflow,
		log:         log,
	}
}

// Run implements workflow.Runner. It is safe to call again for the same
// workflow: SUCCEEDED agent runs are reused rather than re-executed,
// satisfying the §4.2 retry policy ("re-invokes the orchestrator from the
// first not-yet-succeeded agent").
func (o *Orchestrator) Run(ctx context.Context, wf *domain.Workflow) error {
	levels, err := topologicalLevels(o.descriptors)
	if err != nil {
		return apperr.New(apperr.Internal, "orchestrator.Run", err)
	}

	var changedFiles []agents.ChangedFile
	var prBody string
	if o.prContext != nil {
		changedFiles, prBody, err = o.prContext.Load(ctx, wf)
		if err != nil {
			return apperr.New(apperr.ProviderError, "orchestrator.Run", err)
		}
	}

	done := make(map[string]*domain.AgentRun)
	wfSem := make(chan struct{}, o.perWFN)
	terminal := terminalNodes(o.descriptors)

	var criticalFailure error

	for _, level := range levels {
		var wg sync.WaitGroup
		var mu sync.Mutex

		for _, name := range level {
			name := name
			desc := o.descriptors[name]

			wg.Add(1)
			go func() {
				defer wg.Done()

				select {
				case wfSem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				defer func() { <-wfSem }()

				run, err := o.runOne(ctx, wf, name, desc, done, &mu, terminal, changedFiles, prBody)
				mu.Lock()
				if run != nil {
					done[name] = run
				}
				// Only the DAG's terminal fan-in agent(s) can fail the
				// workflow: every other agent's failure cascades SKIPPED to
				// its dependents (via Satisfied() below), but a terminal
				// agent (synthesis, in the production registry) always runs
				// regardless of upstream outcomes and produces a
				// best-effort artifact from whatever succeeded. The
				// workflow fails only if a terminal agent itself never
				// produces one, e.g. it alone times out.
				if err != nil && terminal[name] {
					if criticalFailure == nil {
						criticalFailure = err
					}
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if criticalFailure != nil {
		return criticalFailure
	}
	return nil
}

// runOne executes (or resumes) a single agent, respecting the per-workflow
// and global concurrency semaphores and the declared timeout. The caller
// holds no lock while this runs; `done`/`mu` are used only to read
// predecessor results, which are fully populated for this agent's level by
// construction (topologicalLevels guarantees predecessors are in an
// earlier level).
func (o *Orchestrator) runOne(ctx context.Context, wf *domain.Workflow, name string, desc agents.Descriptor, done map[string]*domain.AgentRun, mu *sync.Mutex, terminal map[string]bool, changedFiles []agents.ChangedFile, prBody string) (*domain.AgentRun, error) {
	if existing, err := o.runs.Get(ctx, wf.ID, name); err == nil && existing != nil && existing.Status == domain.AgentRunSucceeded {
		return existing, nil
	}

	mu.Lock()
	predecessors := make(map[string]*domain.AgentRun, len(desc.DependsOn))
	skip := false
	for _, dep := range desc.DependsOn {
		run := done[dep]
		predecessors[dep] = run
		if run == nil || !run.Status.Satisfied() {
			if !terminal[name] {
				skip = true
			}
		}
	}
	mu.Unlock()

	if skip {
		run := &domain.AgentRun{
			ID:         wf.ID + ":" + name,
			WorkflowID: wf.ID,
			AgentName:  name,
			Status:     domain.AgentRunSkipped,
			StartedAt:  time.Now(),
		}
		finished := time.Now()
		run.FinishedAt = &finished
		_ = o.runs.Save(ctx, run)
		return run, nil
	}

	if !desc.Critical && o.budget != nil && o.budget.Remaining() == 0 {
		run := &domain.AgentRun{
			ID:         wf.ID + ":" + name,
			WorkflowID: wf.ID,
			AgentName:  name,
			Status:     domain.AgentRunSkipped,
			StartedAt:  time.Now(),
			Error:      "workflow token budget exhausted",
		}
		finished := time.Now()
		run.FinishedAt = &finished
		_ = o.runs.Save(ctx, run)
		return run, nil
	}

	select {
	case o.globalSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.globalSem }()

	agentCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	started := time.Now()
	run := &domain.AgentRun{
		ID:         wf.ID + ":" + name,
		WorkflowID: wf.ID,
		AgentName:  name,
		Status:     domain.AgentRunRunning,
		StartedAt:  started,
	}
	_ = o.runs.Save(ctx, run)

	in := agents.Input{
		Workflow:     wf,
		Predecessors: predecessors,
		ChangedFiles: changedFiles,
		PRBody:       prBody,
	}

	out, runErr := desc.Agent.Run(agentCtx, in)
	finished := time.Now()
	latency := finished.Sub(started).Milliseconds()
	run.FinishedAt = &finished
	run.LatencyMs = &latency

	switch {
	case agentCtx.Err() == context.DeadlineExceeded:
		run.Status = domain.AgentRunTimeout
		run.Error = "agent exceeded its timeout"
	case runErr != nil:
		run.Status = domain.AgentRunFailed
		run.Error = runErr.Error()
	default:
		run.Status = domain.AgentRunSucceeded
		run.Output = out.Data
	}

	if err := o.runs.Save(ctx, run); err != nil {
		o.log.WithError(err).WithField("agent", name).Error("failed to checkpoint agent run")
	}

	if run.Status == domain.AgentRunFailed || run.Status == domain.AgentRunTimeout {
		if desc.Critical || terminal[name] {
			return run, apperr.New(apperr.Internal, "orchestrator.runOne", runErr)
		}
	}
	return run, nil
}

// terminalNodes returns the set of descriptor names nothing else depends
// on -- the DAG's fan-in node(s), e.g. "synthesis" in the production
// registry. These are the only agents whose failure can fail the workflow,
// and the only agents that run even when every predecessor was skipped or
// failed (producing a best-effort artifact from whatever did succeed).
func terminalNodes(descriptors map[string]agents.Descriptor) map[string]bool {
	terminal := make(map[string]bool, len(descriptors))
	for name := range descriptors {
		terminal[name] = true
	}
	for _, desc := range descriptors {
		for _, dep := range desc.DependsOn {
			delete(terminal, dep)
		}
	}
	return terminal
}

// topologicalLevels groups descriptor names into waves where every
// dependency of a name in wave K appears in an earlier wave, so siblings in
// the same wave may run in parallel (§4.3 "the DAG's topological order is
// honored; siblings run in parallel").
func topologicalLevels(descriptors map[string]agents.Descriptor) ([][]string, error) {
	remaining := make(map[string]agents.Descriptor, len(descriptors))
	for k, v := range descriptors {
		remaining[k] = v
	}

	var levels [][]string
	resolved := make(map[string]bool)

	for len(remaining) > 0 {
		var level []string
		for name, desc := range remaining {
			ready := true
			for _, dep := range desc.DependsOn {
				if !resolved[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, name)
			}
		}
		if len(level) == 0 {
			return nil, errCyclicDAG
		}
		for _, name := range level {
			resolved[name] = true
			delete(remaining, name)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

type orchestratorError string

func (e orchestratorError) Error() string { return string(e) }

const errCyclicDAG = orchestratorError("agent descriptor graph has an unresolvable dependency cycle")

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prreview/orchestrator/internal/agents"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/logging"
	"github.com/prreview/orchestrator/internal/store/memstore"
)

type fakeAgent struct {
	name string
	fn   func(in agents.Input) (agents.Output, error)
}

func (f *fakeAgent) Name() string { return f.name }
func (f *fakeAgent) Run(_ context.Context, in agents.Input) (agents.Output, error) {
	if f.fn == nil {
		return agents.Output{Data: f.name + "-ok"}, nil
	}
	return f.fn(in)
}

func descriptors(failRoot bool) map[string]agents.Descriptor {
	root := &fakeAgent{name: "root"}
	if failRoot {
		root.fn = func(agents.Input) (agents.Output, error) { return agents.Output{}, assertErr("root failed") }
	}
	return map[string]agents.Descriptor{
		"root":   {Agent: root, Timeout: time.Second, Critical: true},
		"left":   {Agent: &fakeAgent{name: "left"}, DependsOn: []string{"root"}, Timeout: time.Second, Critical: true},
		"right":  {Agent: &fakeAgent{name: "right"}, DependsOn: []string{"root"}, Timeout: time.Second, Critical: false},
		"finish": {Agent: &fakeAgent{name: "finish"}, DependsOn: []string{"left", "right"}, Timeout: time.Second, Critical: true},
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestOrchestratorRunsFullDAGSuccessfully(t *testing.T) {
	runs := memstore.NewAgentRunStore()
	o := New(descriptors(false), runs, nil, nil, 4, 2, logging.New("test"))

	wf := &domain.Workflow{ID: "wf1"}
	err := o.Run(context.Background(), wf)
	require.NoError(t, err)

	all, err := runs.ListForWorkflow(context.Background(), "wf1")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for _, r := range all {
		assert.Equal(t, domain.AgentRunSucceeded, r.Status)
	}
}

func TestOrchestratorCascadesSkipOnFailure(t *testing.T) {
	runs := memstore.NewAgentRunStore()
	o := New(descriptors(true), runs, nil, nil, 4, 2, logging.New("test"))

	wf := &domain.Workflow{ID: "wf2"}
	err := o.Run(context.Background(), wf)
	// A non-terminal agent's failure (root, here) cascades SKIPPED to its
	// dependents but does not fail the workflow: the terminal fan-in node
	// ("finish") still runs on whatever succeeded and reports the outcome.
	require.NoError(t, err)

	left, err := runs.Get(context.Background(), "wf2", "left")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentRunSkipped, left.Status)

	right, err := runs.Get(context.Background(), "wf2", "right")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentRunSkipped, right.Status)

	finish, err := runs.Get(context.Background(), "wf2", "finish")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentRunSucceeded, finish.Status, "terminal agent must still run and succeed despite skipped predecessors")
}

func TestOrchestratorFailsWorkflowOnlyWhenTerminalAgentFails(t *testing.T) {
	runs := memstore.NewAgentRunStore()
	descs := descriptors(false)
	finish := descs["finish"].Agent.(*fakeAgent)
	finish.fn = func(agents.Input) (agents.Output, error) { return agents.Output{}, assertErr("finish failed") }

	o := New(descs, runs, nil, nil, 4, 2, logging.New("test"))
	wf := &domain.Workflow{ID: "wf4"}
	err := o.Run(context.Background(), wf)
	require.Error(t, err, "the terminal agent's own failure must fail the workflow")

	root, err := runs.Get(context.Background(), "wf4", "root")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentRunSucceeded, root.Status, "non-terminal predecessors still run to completion")
}

func TestOrchestratorResumesSucceededAgents(t *testing.T) {
	runs := memstore.NewAgentRunStore()
	calls := 0
	descs := descriptors(false)
	root := descs["root"].Agent.(*fakeAgent)
	root.fn = func(agents.Input) (agents.Output, error) {
		calls++
		return agents.Output{Data: "root-ok"}, nil
	}

	o := New(descs, runs, nil, nil, 4, 2, logging.New("test"))
	wf := &domain.Workflow{ID: "wf3"}

	require.NoError(t, o.Run(context.Background(), wf))
	require.NoError(t, o.Run(context.Background(), wf))

	assert.Equal(t, 1, calls, "a SUCCEEDED agent must not be re-executed on resume")
}

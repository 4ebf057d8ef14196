package agents

import (
	"context"
	"strings"

	"github.com/prreview/orchestrator/internal/llm"
)

// ContextOutput is the context agent's typed output: related code areas
// and prior-history notes the review agent should weigh.
type ContextOutput struct {
	Summary        string
	RelatedAreas   []string
}

// ContextAgent gathers cross-cutting context (ownership, related modules,
// prior incidents referenced in the PR body) via a single LLM call.
type ContextAgent struct {
	rt *llm.Runtime
}

func NewContextAgent(rt *llm.Runtime) *ContextAgent { return &ContextAgent{rt: rt} }

func (a *ContextAgent) Name() string { return "context" }

func (a *ContextAgent) Run(ctx context.Context, in Input) (Output, error) {
	analysis, _ := outputOf(in, "analysis").(AnalysisOutput)

	var paths []string
	for _, f := range in.ChangedFiles {
		paths = append(paths, f.Path)
	}

	system := a.rt.BuildSystemPrompt("context", "List the code areas this change touches and any related modules a reviewer should also inspect. Respond with a one-line summary, then one related area per line.")
	user := "PR description:\n" + analysis.PRBody + "\n\nChanged files:\n" + strings.Join(paths, "\n")

	res := a.rt.Execute(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, llm.CallOptions{MaxTokens: 512, Temperature: 0.2})
	if res.Err != nil {
		return Output{}, res.Err
	}

	lines := strings.Split(strings.TrimSpace(res.Result.Content), "\n")
	summary := ""
	var related []string
	if len(lines) > 0 {
		summary = strings.TrimSpace(lines[0])
		related = append(related, lines[1:]...)
	}
	return Output{Data: ContextOutput{Summary: summary, RelatedAreas: related}}, nil
}

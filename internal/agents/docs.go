package agents

import (
	"context"
	"strings"

	"github.com/prreview/orchestrator/internal/llm"
)

// DocsOutput is the docs agent's typed output: suggested documentation
// updates implied by the review.
type DocsOutput struct {
	Suggestions []string
}

// DocsAgent is non-critical, like TestsAgent: skipped first under budget
// pressure.
type DocsAgent struct {
	rt *llm.Runtime
}

func NewDocsAgent(rt *llm.Runtime) *DocsAgent { return &DocsAgent{rt: rt} }

func (a *DocsAgent) Name() string { return "docs" }

func (a *DocsAgent) Run(ctx context.Context, in Input) (Output, error) {
	review, _ := outputOf(in, "review").(ReviewOutput)
	analysis, _ := outputOf(in, "analysis").(AnalysisOutput)

	if analysis.PRBody == "" && len(review.Findings) == 0 {
		return Output{Data: DocsOutput{}}, nil
	}

	system := a.rt.BuildSystemPrompt("docs", "Suggest any documentation that should be updated or added given this PR's description and findings. Respond with one suggestion per line; if none, respond with an empty line.")
	user := "PR description:\n" + analysis.PRBody
	for _, f := range review.Findings {
		user += "\nFinding: " + f.Message
	}

	res := a.rt.Execute(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, llm.CallOptions{MaxTokens: 512, Temperature: 0.2})
	if res.Err != nil {
		return Output{}, res.Err
	}

	var suggestions []string
	for _, line := range strings.Split(strings.TrimSpace(res.Result.Content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			suggestions = append(suggestions, line)
		}
	}
	return Output{Data: DocsOutput{Suggestions: suggestions}}, nil
}

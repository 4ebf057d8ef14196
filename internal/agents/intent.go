package agents

import (
	"context"
	"strings"

	"github.com/prreview/orchestrator/internal/llm"
)

// IntentOutput is the intent agent's typed output: a short classification
// of what the PR is trying to do, derived from its body and changed files.
type IntentOutput struct {
	Summary  string
	Category string // e.g. "feature", "bugfix", "refactor", "chore"
}

// IntentAgent infers the author's intent from the PR description and
// changed-file list via a single LLM call.
type IntentAgent struct {
	rt *llm.Runtime
}

func NewIntentAgent(rt *llm.Runtime) *IntentAgent { return &IntentAgent{rt: rt} }

func (a *IntentAgent) Name() string { return "intent" }

func (a *IntentAgent) Run(ctx context.Context, in Input) (Output, error) {
	analysis, _ := outputOf(in, "analysis").(AnalysisOutput)

	var files strings.Builder
	for i, f := range in.ChangedFiles {
		if i >= 20 {
			files.WriteString("...\n")
			break
		}
		files.WriteString(f.Path)
		files.WriteString("\n")
	}

	system := a.rt.BuildSystemPrompt("intent", "Classify the PR's intent as one of: feature, bugfix, refactor, chore, docs, test. Respond with a one-line summary then the category on its own line.")
	user := "PR description:\n" + analysis.PRBody + "\n\nChanged files:\n" + files.String()

	res := a.rt.Execute(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, llm.CallOptions{MaxTokens: 256, Temperature: 0.2})
	if res.Err != nil {
		return Output{}, res.Err
	}

	summary, category := parseIntentResponse(res.Result.Content)
	return Output{Data: IntentOutput{Summary: summary, Category: category}}, nil
}

func parseIntentResponse(content string) (summary, category string) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		return "", "chore"
	}
	summary = strings.TrimSpace(lines[0])
	category = "chore"
	if len(lines) > 1 {
		category = strings.ToLower(strings.TrimSpace(lines[len(lines)-1]))
	}
	return summary, category
}

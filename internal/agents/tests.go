package agents

import (
	"context"
	"strings"

	"github.com/prreview/orchestrator/internal/llm"
	"github.com/prreview/orchestrator/internal/preference"
)

// TestsOutput is the tests agent's typed output: generated test snippets
// targeting the review agent's highest-severity findings.
type TestsOutput struct {
	Suggestions []TestSuggestion
}

// TestSuggestion pairs a finding with a proposed regression test.
type TestSuggestion struct {
	File    string
	Snippet string
}

// TestsAgent is non-critical (§4.3 cost control): the orchestrator skips it
// first when the workflow's token budget is exhausted.
type TestsAgent struct {
	rt *llm.Runtime
}

func NewTestsAgent(rt *llm.Runtime) *TestsAgent { return &TestsAgent{rt: rt} }

func (a *TestsAgent) Name() string { return "tests" }

func (a *TestsAgent) Run(ctx context.Context, in Input) (Output, error) {
	review, _ := outputOf(in, "review").(ReviewOutput)
	if len(review.Findings) == 0 {
		return Output{Data: TestsOutput{}}, nil
	}

	top := highestSeverityFindings(review.Findings, 5)
	var findingsText strings.Builder
	for _, f := range top {
		findingsText.WriteString(f.File)
		findingsText.WriteString(": ")
		findingsText.WriteString(f.Message)
		findingsText.WriteString("\n")
	}

	system := a.rt.BuildSystemPrompt("tests", "Propose a short regression test for each finding below. Respond with one file path and a test code snippet per finding, separated by blank lines.")
	res := a.rt.Execute(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: findingsText.String()},
	}, llm.CallOptions{MaxTokens: 1024, Temperature: 0.2})
	if res.Err != nil {
		return Output{}, res.Err
	}

	var suggestions []TestSuggestion
	for i, block := range strings.Split(strings.TrimSpace(res.Result.Content), "\n\n") {
		if i >= len(top) {
			break
		}
		suggestions = append(suggestions, TestSuggestion{File: top[i].File, Snippet: block})
	}

	return Output{Data: TestsOutput{Suggestions: suggestions}}, nil
}

var severityRank = map[string]int{
	"CRITICAL": 5,
	"HIGH":     4,
	"MEDIUM":   3,
	"LOW":      2,
	"NITPICK":  1,
}

func highestSeverityFindings(findings []preference.Finding, n int) []preference.Finding {
	sorted := append([]preference.Finding(nil), findings...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && severityRank[sorted[j].Severity] > severityRank[sorted[j-1].Severity]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

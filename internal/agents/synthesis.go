package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/prreview/orchestrator/internal/llm"
)

// SynthesisOutput is the summary-comment body published to the PR (§4.3
// "synthesis emits the summary comment").
type SynthesisOutput struct {
	Markdown string
}

// SynthesisAgent is the DAG's fan-in: it always runs, with whatever subset
// of review/tests/docs succeeded, and produces a best-effort summary even
// if some predecessors were SKIPPED or TIMEOUT (§4.3 error policy).
type SynthesisAgent struct {
	rt *llm.Runtime
}

func NewSynthesisAgent(rt *llm.Runtime) *SynthesisAgent { return &SynthesisAgent{rt: rt} }

func (a *SynthesisAgent) Name() string { return "synthesis" }

func (a *SynthesisAgent) Run(_ context.Context, in Input) (Output, error) {
	var b strings.Builder
	b.WriteString("## Automated review summary\n\n")

	if intent, ok := outputOf(in, "intent").(IntentOutput); ok && intent.Summary != "" {
		b.WriteString(fmt.Sprintf("**Intent:** %s (%s)\n\n", intent.Summary, intent.Category))
	}

	if risk, ok := outputOf(in, "risk").(RiskOutput); ok {
		b.WriteString(fmt.Sprintf("**Risk:** %s (%d lines across %d files)\n\n", risk.Level, risk.TotalLines, risk.Files))
	}

	if review, ok := outputOf(in, "review").(ReviewOutput); ok {
		if len(review.Findings) == 0 {
			b.WriteString("No actionable findings.\n\n")
		} else {
			b.WriteString(fmt.Sprintf("**Findings (%d):**\n\n", len(review.Findings)))
			for _, f := range review.Findings {
				b.WriteString(fmt.Sprintf("- `%s`:%d [%s/%s] %s\n", f.File, f.Line, f.Severity, f.Category, f.Message))
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("_Review agent did not complete; findings unavailable._\n\n")
	}

	if tests, ok := outputOf(in, "tests").(TestsOutput); ok && len(tests.Suggestions) > 0 {
		b.WriteString(fmt.Sprintf("**Suggested tests:** %d\n\n", len(tests.Suggestions)))
	}

	if docs, ok := outputOf(in, "docs").(DocsOutput); ok && len(docs.Suggestions) > 0 {
		b.WriteString("**Docs suggestions:**\n\n")
		for _, s := range docs.Suggestions {
			b.WriteString("- " + s + "\n")
		}
		b.WriteString("\n")
	}

	return Output{Data: SynthesisOutput{Markdown: b.String()}}, nil
}

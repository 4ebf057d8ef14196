package agents

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/prreview/orchestrator/internal/llm"
	"github.com/prreview/orchestrator/internal/preference"
)

// ReviewOutput is the review agent's typed output: the findings that
// survived preference adjustment (§4.3 Review-agent specifics).
type ReviewOutput struct {
	Findings []preference.Finding
}

// rawFinding is the shape the review LLM call is asked to emit per finding,
// before preference adjustment.
type rawFinding struct {
	File       string  `json:"file"`
	Line       int     `json:"line"`
	EndLine    int     `json:"endLine"`
	Severity   string  `json:"severity"`
	Category   string  `json:"category"`
	Message    string  `json:"message"`
	QuickFix   string  `json:"quickFix"`
	Confidence float64 `json:"confidence"`
}

// ReviewAgent produces line-level findings, then filters each through the
// Preference-Learning Store's adjust operation before returning only the
// findings that remain above the 0.3 confidence floor (§4.3).
type ReviewAgent struct {
	rt    *llm.Runtime
	prefs *preference.Store
}

func NewReviewAgent(rt *llm.Runtime, prefs *preference.Store) *ReviewAgent {
	return &ReviewAgent{rt: rt, prefs: prefs}
}

func (a *ReviewAgent) Name() string { return "review" }

func (a *ReviewAgent) Run(ctx context.Context, in Input) (Output, error) {
	risk, _ := outputOf(in, "risk").(RiskOutput)
	ctxOut, _ := outputOf(in, "context").(ContextOutput)

	var diffs strings.Builder
	for _, f := range in.ChangedFiles {
		diffs.WriteString("--- ")
		diffs.WriteString(f.Path)
		diffs.WriteString(" ---\n")
		diffs.WriteString(f.Patch)
		diffs.WriteString("\n")
	}

	system := a.rt.BuildSystemPrompt("review", "Review the diff for bugs, risky patterns, and style issues. "+
		"Respond with a JSON array of findings, each shaped as "+
		`{"file","line","endLine","severity" (one of CRITICAL,HIGH,MEDIUM,LOW,NITPICK),"category","message","quickFix","confidence"}.`)
	user := "Risk level: " + string(risk.Level) + "\nContext: " + ctxOut.Summary + "\n\nDiff:\n" + diffs.String()

	res := a.rt.Execute(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, llm.CallOptions{MaxTokens: 2048, Temperature: 0.1})
	if res.Err != nil {
		return Output{}, res.Err
	}

	raws := parseFindings(res.Result.Content)

	var kept []preference.Finding
	for _, rf := range raws {
		finding := preference.Finding{
			File:       rf.File,
			Line:       rf.Line,
			EndLine:    rf.EndLine,
			Severity:   rf.Severity,
			Category:   rf.Category,
			Message:    rf.Message,
			QuickFix:   rf.QuickFix,
			Confidence: rf.Confidence,
		}
		adjusted, err := a.prefs.Adjust(ctx, in.Workflow.RepositoryID, finding)
		if err != nil {
			return Output{}, err
		}
		if adjusted.Suppressed {
			continue
		}
		kept = append(kept, adjusted.Finding)
	}

	return Output{Data: ReviewOutput{Findings: kept}}, nil
}

// parseFindings tolerates a model response that isn't pure JSON (wrapped in
// prose or a code fence) by extracting the first top-level JSON array.
func parseFindings(content string) []rawFinding {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || end < start {
		return nil
	}
	var out []rawFinding
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil
	}
	return out
}

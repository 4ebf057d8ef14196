package agents

import "context"

// RiskLevel is the classification produced by the risk agent (§8 "Risk
// classification").
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskOutput is the risk agent's typed output.
type RiskOutput struct {
	Level      RiskLevel
	TotalLines int
	Files      int
}

// RiskAgent classifies a PR's blast radius from its analysis output. No
// LLM call: the classification is a fixed formula (§8), so this agent is
// deterministic and cheap, unlike intent/context/review which dial an LLM.
type RiskAgent struct{}

func NewRiskAgent() *RiskAgent { return &RiskAgent{} }

func (a *RiskAgent) Name() string { return "risk" }

// ClassifyRisk implements the exact §8 formula:
//
//	totalLines = additions + deletions
//	high   iff totalLines > 500 or files > 20
//	medium iff totalLines > 100 or files > 10 (and not high)
//	else   low
func ClassifyRisk(totalLines, files int) RiskLevel {
	if totalLines > 500 || files > 20 {
		return RiskHigh
	}
	if totalLines > 100 || files > 10 {
		return RiskMedium
	}
	return RiskLow
}

func (a *RiskAgent) Run(_ context.Context, in Input) (Output, error) {
	analysis, _ := outputOf(in, "analysis").(AnalysisOutput)
	level := ClassifyRisk(analysis.TotalLines, analysis.Files)
	return Output{Data: RiskOutput{
		Level:      level,
		TotalLines: analysis.TotalLines,
		Files:      analysis.Files,
	}}, nil
}

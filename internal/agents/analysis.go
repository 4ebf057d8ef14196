package agents

import "context"

// AnalysisOutput is the analysis agent's typed output: PR metadata
// extracted without any LLM call (§4.3: "analysis is a metadata extractor").
type AnalysisOutput struct {
	Files       int
	Additions   int
	Deletions   int
	TotalLines  int
	AuthorLogin string
	PRBody      string
}

// AnalysisAgent extracts PR metadata. It is the DAG root: no predecessors,
// no LLM call, so it never fails on anything but a malformed Input.
type AnalysisAgent struct{}

func NewAnalysisAgent() *AnalysisAgent { return &AnalysisAgent{} }

func (a *AnalysisAgent) Name() string { return "analysis" }

func (a *AnalysisAgent) Run(_ context.Context, in Input) (Output, error) {
	additions, deletions := 0, 0
	for _, f := range in.ChangedFiles {
		additions += f.Additions
		deletions += f.Deletions
	}
	out := AnalysisOutput{
		Files:       len(in.ChangedFiles),
		Additions:   additions,
		Deletions:   deletions,
		TotalLines:  additions + deletions,
		AuthorLogin: in.Workflow.AuthorLogin,
		PRBody:      in.PRBody,
	}
	return Output{Data: out}, nil
}

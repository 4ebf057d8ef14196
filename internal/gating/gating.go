// Package gating implements the small deterministic formulas named in
// spec.md §8 that do not belong to any single agent or store: merge-ready
// gating, review-queue priority scoring, and the line-overlap predicate
// the publisher uses to group findings.
//
// Grounded on agents.ClassifyRisk (internal/agents/risk.go): a pure,
// dependency-free function implementing one exact published formula, with
// the same "no LLM call, cheap and deterministic" shape.
package gating

// LineRange is a closed [Start, End] span on a single file, the shape
// hasLineOverlap compares.
type LineRange struct {
	Start int
	End   int
}

// HasLineOverlap implements §8's invariant exactly:
// a.start <= b.end && b.start <= a.end.
func HasLineOverlap(a, b LineRange) bool {
	return a.Start <= b.End && b.Start <= a.End
}

// MergeReadyInput is the PR state the merge-ready gate evaluates.
type MergeReadyInput struct {
	ChecksPass        bool
	ApprovalsCount    int
	RequiredApprovals int
	IsUpToDate        bool
	HasConflicts      bool
}

// MergeReadyResult is the §8 {ready, reasons} response shape.
type MergeReadyResult struct {
	Ready   bool     `json:"ready"`
	Reasons []string `json:"reasons"`
}

// MergeReady implements §8's merge-ready gating: ready only when every
// one of the four conditions holds, otherwise a reason is reported for
// each one that fails.
func MergeReady(in MergeReadyInput) MergeReadyResult {
	var reasons []string
	if !in.ChecksPass {
		reasons = append(reasons, "checks have not passed")
	}
	if in.ApprovalsCount < in.RequiredApprovals {
		reasons = append(reasons, "insufficient approvals")
	}
	if !in.IsUpToDate {
		reasons = append(reasons, "branch is not up to date with base")
	}
	if in.HasConflicts {
		reasons = append(reasons, "has merge conflicts")
	}
	return MergeReadyResult{Ready: len(reasons) == 0, Reasons: reasons}
}

// PriorityInput is the set of signals the review-queue priority formula
// weighs.
type PriorityInput struct {
	HasCritical    bool
	HasHigh        bool
	AuthorIsMaintainer bool
	WaitMinutes    int
	FailedAttempts int
}

// PriorityScore implements §8's exact formula:
//
//	score = clamp(100 + critical?50:0 + high?25:0 + (role=maintainer?10:0)
//	              + min(waitMinutes,30) - 5*failedAttempts, 0, +inf)
func PriorityScore(in PriorityInput) int {
	score := 100
	if in.HasCritical {
		score += 50
	}
	if in.HasHigh {
		score += 25
	}
	if in.AuthorIsMaintainer {
		score += 10
	}
	score += minInt(in.WaitMinutes, 30)
	score -= 5 * in.FailedAttempts
	if score < 0 {
		score = 0
	}
	return score
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

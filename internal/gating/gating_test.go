package gating

import "testing"

func TestMergeReadyAllConditionsSatisfied(t *testing.T) {
	got := MergeReady(MergeReadyInput{ChecksPass: true, ApprovalsCount: 2, RequiredApprovals: 1, IsUpToDate: true, HasConflicts: false})
	if !got.Ready || len(got.Reasons) != 0 {
		t.Errorf("MergeReady() = %+v, want ready with no reasons", got)
	}
}

func TestMergeReadyEveryConditionFails(t *testing.T) {
	got := MergeReady(MergeReadyInput{ChecksPass: false, ApprovalsCount: 0, RequiredApprovals: 2, IsUpToDate: false, HasConflicts: true})
	if got.Ready {
		t.Fatal("MergeReady() reported ready when every condition failed")
	}
	if len(got.Reasons) != 4 {
		t.Errorf("len(Reasons) = %d, want 4", len(got.Reasons))
	}
}

func TestHasLineOverlap(t *testing.T) {
	cases := []struct {
		name string
		a, b LineRange
		want bool
	}{
		{"identical", LineRange{1, 10}, LineRange{1, 10}, true},
		{"touching-edges", LineRange{1, 5}, LineRange{5, 10}, true},
		{"disjoint", LineRange{1, 5}, LineRange{6, 10}, false},
		{"contained", LineRange{1, 20}, LineRange{5, 8}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasLineOverlap(tc.a, tc.b); got != tc.want {
				t.Errorf("HasLineOverlap(%+v, %+v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestPriorityScoreMatchesPublishedFormula(t *testing.T) {
	got := PriorityScore(PriorityInput{HasCritical: true, HasHigh: true, AuthorIsMaintainer: true, WaitMinutes: 45, FailedAttempts: 2})
	want := 100 + 50 + 25 + 10 + 30 - 10
	if got != want {
		t.Errorf("PriorityScore() = %d, want %d", got, want)
	}
}

func TestPriorityScoreClampsAtZero(t *testing.T) {
	got := PriorityScore(PriorityInput{FailedAttempts: 100})
	if got != 0 {
		t.Errorf("PriorityScore() = %d, want 0 (clamped)", got)
	}
}

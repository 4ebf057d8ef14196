package agents

import "testing"

func TestClassifyRisk(t *testing.T) {
	cases := []struct {
		name       string
		totalLines int
		files      int
		want       RiskLevel
	}{
		{"low", 60, 3, RiskLow},
		{"medium", 150, 8, RiskMedium},
		{"high-lines", 600, 25, RiskHigh},
		{"high-files-only", 10, 21, RiskHigh},
		{"medium-files-only", 10, 11, RiskMedium},
		{"boundary-low", 100, 10, RiskLow},
		{"boundary-medium", 101, 10, RiskMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyRisk(tc.totalLines, tc.files)
			if got != tc.want {
				t.Errorf("ClassifyRisk(%d, %d) = %s, want %s", tc.totalLines, tc.files, got, tc.want)
			}
		})
	}
}

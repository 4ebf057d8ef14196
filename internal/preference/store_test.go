package preference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/store/memstore"
)

func TestRecordAppliesEMAAndIncrementsVersion(t *testing.T) {
	repo := memstore.NewPreferenceStore()
	s := New(repo)

	decision := domain.ReviewerDecision{
		RepositoryID: "o/r",
		Action:       domain.DecisionAccepted,
		Context:      domain.DecisionContext{Category: "STYLE", Severity: "LOW", Snippet: "avoid unused variable names here"},
	}

	model, err := s.Record(context.Background(), decision, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, model.Version)
	assert.Equal(t, 1, model.DataPoints)
	assert.InDelta(t, 0.51, model.CategoryWeights["STYLE"], 0.001)

	key := domain.NewCategoryKey("STYLE", "LOW")
	assert.InDelta(t, 0.05, model.AcceptanceRates[key], 0.001)
}

func TestRecordClampsCategoryWeight(t *testing.T) {
	repo := memstore.NewPreferenceStore()
	s := New(repo)

	decision := domain.ReviewerDecision{
		RepositoryID: "o/r",
		Action:       domain.DecisionAccepted,
		Context:      domain.DecisionContext{Category: "STYLE", Severity: "LOW"},
	}
	for i := 0; i < 100; i++ {
		_, err := s.Record(context.Background(), decision, 100, 100)
		require.NoError(t, err)
	}

	model, err := s.Model(context.Background(), "o/r")
	require.NoError(t, err)
	assert.LessOrEqual(t, model.CategoryWeights["STYLE"], 1.0)
}

func TestRecordDismissalExtractsIgnoredPattern(t *testing.T) {
	repo := memstore.NewPreferenceStore()
	s := New(repo)

	decision := domain.ReviewerDecision{
		RepositoryID: "o/r",
		Action:       domain.DecisionDismissed,
		Feedback:     "this is a false positive, the check already runs elsewhere",
		Context:      domain.DecisionContext{Category: "CORRECTNESS", Severity: "MEDIUM", Snippet: "missing nil check before dereference"},
	}

	model, err := s.Record(context.Background(), decision, 0, 0)
	require.NoError(t, err)
	require.Len(t, model.IgnoredPatterns, 1)
	assert.Equal(t, "missing nil check before dereference", model.IgnoredPatterns[0])
}

func TestVerbosityFlipsOnEditRatio(t *testing.T) {
	repo := memstore.NewPreferenceStore()
	s := New(repo)

	decision := domain.ReviewerDecision{RepositoryID: "o/r", Action: domain.DecisionAccepted, Context: domain.DecisionContext{Category: "BUG"}}

	model, err := s.Record(context.Background(), decision, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.VerbosityMinimal, model.Verbosity)

	model, err = s.Record(context.Background(), decision, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, domain.VerbosityDetailed, model.Verbosity)
}

func TestAdjustSuppressesLowConfidenceAfterIgnoredPattern(t *testing.T) {
	repo := memstore.NewPreferenceStore()
	s := New(repo)

	decision := domain.ReviewerDecision{
		RepositoryID: "o/r",
		Action:       domain.DecisionDismissed,
		Feedback:     "false positive",
		Context:      domain.DecisionContext{Category: "STYLE", Severity: "LOW", Snippet: "trailing whitespace in comment block"},
	}
	_, err := s.Record(context.Background(), decision, 0, 0)
	require.NoError(t, err)

	finding := Finding{Category: "STYLE", Severity: "LOW", Message: "trailing whitespace in comment block here", Confidence: 0.6}
	adjusted, err := s.Adjust(context.Background(), "o/r", finding)
	require.NoError(t, err)
	assert.True(t, adjusted.Suppressed)
}

func TestAdjustIsIdempotentGivenUnchangedModel(t *testing.T) {
	repo := memstore.NewPreferenceStore()
	s := New(repo)

	// Drive the model away from its zero-value defaults first, so the
	// category-weight and acceptance-rate multipliers in Adjust actually
	// fire (a fresh, never-recorded-against model would make this test
	// vacuous).
	decision := domain.ReviewerDecision{
		RepositoryID: "o/r",
		Action:       domain.DecisionAccepted,
		Context:      domain.DecisionContext{Category: "BUG", Severity: "HIGH"},
	}
	_, err := s.Record(context.Background(), decision, 100, 100)
	require.NoError(t, err)

	finding := Finding{Category: "BUG", Severity: "HIGH", Message: "possible nil dereference", Confidence: 0.8}
	a1, err := s.Adjust(context.Background(), "o/r", finding)
	require.NoError(t, err)
	require.NotEqual(t, finding.Confidence, a1.Finding.Confidence, "test setup must actually perturb confidence")

	// Feed the already-adjusted finding back in: a second adjustment of the
	// first adjustment's output must reproduce the first result exactly,
	// not compound the discount.
	a2, err := s.Adjust(context.Background(), "o/r", a1.Finding)
	require.NoError(t, err)
	assert.Equal(t, a1.Finding.Confidence, a2.Finding.Confidence)
	assert.Equal(t, a1.Suppressed, a2.Suppressed)
}

func TestCustomRuleNeverFlagSuppresses(t *testing.T) {
	repo := memstore.NewPreferenceStore()
	model := domain.NewRepoPreferenceModel("o/r")
	model.CustomRules = []domain.TeamRule{{Pattern: "TODO", Action: domain.RuleNeverFlag}}
	require.NoError(t, repo.Append(context.Background(), model))

	s := New(repo)
	finding := Finding{Category: "STYLE", Message: "found a TODO comment", Confidence: 0.9}
	adjusted, err := s.Adjust(context.Background(), "o/r", finding)
	require.NoError(t, err)
	assert.True(t, adjusted.Suppressed)
}

// Package preference implements the Preference-Learning Store (§4.6): EMA
// weight updates over reviewer decisions, confidence adjustment of new
// findings, and verbosity/ignored-pattern learning.
//
// Grounded on the teacher's server/reviewloop_feedback.go: regex-driven
// classification of free-form reviewer text (there, CodeRabbit comment
// bodies; here, dismissal explanations) plus a capped, deduplicated
// retained-findings list (maxReviewFindingsRetained), generalized to the
// ignoredPatterns list here.
package preference

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/store"
)

const (
	categoryWeightStep = 0.01
	categoryWeightMin  = 0.1
	categoryWeightMax  = 1.0

	acceptanceRateDecay = 0.95
	acceptanceRateGain  = 0.05

	verbosityMinimalRatio  = 0.50
	verbosityDetailedRatio = 1.50
)

// dismissalPhraseRE matches the explanations §4.6 calls out as triggering
// ignored-pattern extraction: "false positive", "intentional", "not
// applicable", "already handled", "style preference".
var dismissalPhraseRE = regexp.MustCompile(`(?i)false positive|intentional|not applicable|already handled|style preference`)

// Finding mirrors the review-agent finding shape (§4.3 Review-agent
// specifics) the preference store adjusts.
type Finding struct {
	File       string
	Line       int
	EndLine    int
	Severity   string
	Category   string
	Message    string
	QuickFix   string
	Confidence float64

	// BaseConfidence is the confidence Adjust computed its multipliers
	// from, stamped onto the finding the first time it is adjusted. Adjust
	// reads this back instead of Confidence on later calls so that
	// re-adjusting an already-adjusted finding (e.g. a caller that accepts
	// Adjust's output and passes it through again) reproduces the same
	// result instead of compounding the discount.
	BaseConfidence float64 `json:"baseConfidence,omitempty"`
}

// AdjustedFinding is the result of Store.Adjust.
type AdjustedFinding struct {
	Finding    Finding
	Suppressed bool
	Explanation string
}

// Store is the Preference-Learning Store.
type Store struct {
	repo store.PreferenceRepo

	mu     sync.Mutex
	cache  map[string]*domain.RepoPreferenceModel // repositoryID -> in-process cache
	perRepo map[string]*sync.Mutex                // repositoryID -> update lock, copy-on-write reads (§5)
}

func New(repo store.PreferenceRepo) *Store {
	return &Store{
		repo:    repo,
		cache:   make(map[string]*domain.RepoPreferenceModel),
		perRepo: make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(repositoryID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.perRepo[repositoryID]
	if !ok {
		l = &sync.Mutex{}
		s.perRepo[repositoryID] = l
	}
	return l
}

// Model returns the latest model for a repository, lazily loading from
// persistence and caching in-process (§4.6 "model(repoId)").
func (s *Store) Model(ctx context.Context, repositoryID string) (*domain.RepoPreferenceModel, error) {
	s.mu.Lock()
	if cached, ok := s.cache[repositoryID]; ok {
		s.mu.Unlock()
		return cached.Clone(), nil
	}
	s.mu.Unlock()

	loaded, err := s.repo.Latest(ctx, repositoryID)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "preference.Model", err)
	}
	if loaded == nil {
		loaded = domain.NewRepoPreferenceModel(repositoryID)
	}

	s.mu.Lock()
	s.cache[repositoryID] = loaded
	s.mu.Unlock()
	return loaded.Clone(), nil
}

// Record persists a reviewer decision and updates the repo's model in
// place via the EMA rules in §4.6. Readers never observe a partially
// updated model: the per-repository lock is held across loading the latest
// version, the O(1) math, and appending the new version.
func (s *Store) Record(ctx context.Context, decision domain.ReviewerDecision, aiLength, humanEditLength int) (*domain.RepoPreferenceModel, error) {
	lock := s.lockFor(decision.RepositoryID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.repo.Latest(ctx, decision.RepositoryID)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "preference.Record", err)
	}
	if current == nil {
		current = domain.NewRepoPreferenceModel(decision.RepositoryID)
	}
	model := current.Clone()

	category := decision.Context.Category
	severity := decision.Context.Severity
	key := domain.NewCategoryKey(category, severity)

	w := model.CategoryWeights[category]
	if w == 0 {
		w = 0.5 // neutral prior for a category never seen before
	}
	if decision.Action == domain.DecisionAccepted {
		w += categoryWeightStep
	} else {
		w -= categoryWeightStep
	}
	model.CategoryWeights[category] = clamp(w, categoryWeightMin, categoryWeightMax)

	rate := model.AcceptanceRates[key]
	accepted := 0.0
	if decision.Action == domain.DecisionAccepted {
		accepted = 1.0
	}
	model.AcceptanceRates[key] = acceptanceRateDecay*rate + acceptanceRateGain*accepted

	if decision.Action == domain.DecisionDismissed && dismissalPhraseRE.MatchString(decision.Feedback) {
		phrase := firstWords(decision.Context.Snippet, 5)
		if phrase == "" {
			phrase = firstWords(decision.Feedback, 5)
		}
		model.IgnoredPatterns = appendDeduped(model.IgnoredPatterns, phrase)
	}

	if aiLength > 0 {
		ratio := float64(humanEditLength) / float64(aiLength)
		switch {
		case ratio < verbosityMinimalRatio:
			model.Verbosity = domain.VerbosityMinimal
		case ratio > verbosityDetailedRatio:
			model.Verbosity = domain.VerbosityDetailed
		}
	}

	model.Version++
	model.DataPoints++

	if err := s.repo.Append(ctx, model); err != nil {
		return nil, apperr.New(apperr.DatabaseError, "preference.Record", err)
	}

	s.mu.Lock()
	s.cache[decision.RepositoryID] = model
	s.mu.Unlock()

	return model.Clone(), nil
}

// Adjust applies categoryWeights, acceptanceRates, ignoredPatterns, and
// customRules to a finding's confidence, per §4.3/§4.6. Findings with
// adjusted confidence below 0.3 are suppressed by the caller.
func (s *Store) Adjust(ctx context.Context, repositoryID string, finding Finding) (AdjustedFinding, error) {
	model, err := s.Model(ctx, repositoryID)
	if err != nil {
		return AdjustedFinding{}, err
	}

	if rule := matchingRule(model.CustomRules, finding); rule != nil {
		return applyRule(*rule, finding), nil
	}

	base := finding.BaseConfidence
	if base <= 0 {
		base = finding.Confidence
		if base <= 0 {
			base = 0.7 // default prior when the agent did not self-report one
		}
	}

	confidence := base
	if w, ok := model.CategoryWeights[finding.Category]; ok {
		confidence *= w
	}
	key := domain.NewCategoryKey(finding.Category, finding.Severity)
	if rate, ok := model.AcceptanceRates[key]; ok {
		confidence *= (0.5 + 0.5*rate) // acceptance history nudges, never zeroes out, the category weight
	}

	for _, pattern := range model.IgnoredPatterns {
		if pattern != "" && strings.Contains(strings.ToLower(finding.Message), strings.ToLower(pattern)) {
			confidence *= 0.2
		}
	}

	finding.BaseConfidence = base
	finding.Confidence = confidence
	return AdjustedFinding{
		Finding:    finding,
		Suppressed: confidence < 0.3,
	}, nil
}

// SetCustomRules persists an admin-authored override list for a repository
// (§4.6 "team-specific override rules"), bumping the version the same way
// Record does so a concurrent Adjust never observes a half-written list.
func (s *Store) SetCustomRules(ctx context.Context, repositoryID string, rules []domain.TeamRule) (*domain.RepoPreferenceModel, error) {
	lock := s.lockFor(repositoryID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.repo.Latest(ctx, repositoryID)
	if err != nil {
		return nil, apperr.New(apperr.DatabaseError, "preference.SetCustomRules", err)
	}
	if current == nil {
		current = domain.NewRepoPreferenceModel(repositoryID)
	}
	model := current.Clone()
	model.CustomRules = rules
	model.Version++

	if err := s.repo.Append(ctx, model); err != nil {
		return nil, apperr.New(apperr.DatabaseError, "preference.SetCustomRules", err)
	}

	s.mu.Lock()
	s.cache[repositoryID] = model
	s.mu.Unlock()

	return model.Clone(), nil
}

func matchingRule(rules []domain.TeamRule, finding Finding) *domain.TeamRule {
	for i := range rules {
		r := &rules[i]
		if r.Pattern == "" {
			continue
		}
		if strings.Contains(strings.ToLower(finding.Message), strings.ToLower(r.Pattern)) ||
			strings.EqualFold(r.Pattern, finding.Category) {
			return r
		}
	}
	return nil
}

func applyRule(rule domain.TeamRule, finding Finding) AdjustedFinding {
	switch rule.Action {
	case domain.RuleNeverFlag:
		finding.Confidence = 0
		return AdjustedFinding{Finding: finding, Suppressed: true, Explanation: "suppressed by custom rule"}
	case domain.RuleAlwaysFlag:
		finding.Confidence = 1
		if rule.Severity != "" {
			finding.Severity = rule.Severity
		}
		return AdjustedFinding{Finding: finding, Suppressed: false, Explanation: "forced by custom rule"}
	case domain.RuleFlagWithSeverity:
		if rule.Severity != "" {
			finding.Severity = rule.Severity
		}
		finding.Confidence = rule.Confidence
		return AdjustedFinding{Finding: finding, Suppressed: finding.Confidence < 0.3, Explanation: "severity overridden by custom rule"}
	default:
		return AdjustedFinding{Finding: finding}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

func appendDeduped(list []string, item string) []string {
	if item == "" {
		return list
	}
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

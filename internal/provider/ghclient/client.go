// Package ghclient wraps github.com/google/go-github/v68 with the
// operations the Provider Publisher and Agent Orchestrator need (§4.5,
// §6): check-run lifecycle, review-comment batches, summary comments,
// reviewer requests, branch comparison, and CODEOWNERS lookup.
//
// Grounded on the teacher's server/ghclient/client.go: a narrow interface
// over *github.Client plus a concrete implementation and a constructor
// that accepts an already-built *github.Client for test injection.
// Extended beyond the teacher's PR-comment-only surface to the check-run
// and review-batch operations this spec requires.
package ghclient

import (
	"context"
	"errors"

	"github.com/google/go-github/v68/github"

	"github.com/prreview/orchestrator/internal/agents"
	"github.com/prreview/orchestrator/internal/apperr"
	"github.com/prreview/orchestrator/internal/domain"
)

// Finding mirrors preference.Finding's shape without importing the
// preference package, keeping ghclient's dependency surface to go-github
// plus the domain/agents packages it must bridge between.
type Finding struct {
	File     string
	Line     int
	EndLine  int
	Severity string
	Category string
	Message  string
	QuickFix string
}

// Client is the subset of the GitHub REST API this service calls.
type Client interface {
	CreateCheckRun(ctx context.Context, owner, repo, headSHA, name, status, conclusion, summary string) (externalID string, err error)
	UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, status, conclusion, summary string) error
	CreateReviewBatch(ctx context.Context, owner, repo string, prNumber int, findings []Finding) (externalID string, err error)
	CreateSummaryComment(ctx context.Context, owner, repo string, prNumber int, markdown string) (externalID string, err error)
	RequestReviewers(ctx context.Context, owner, repo string, prNumber int, logins []string) error
	CompareBranches(ctx context.Context, owner, repo, base, head string) (*github.CommitsComparison, error)
	GetCodeowners(ctx context.Context, owner, repo string) (string, error)

	LoadPRContext(ctx context.Context, wf *domain.Workflow) ([]agents.ChangedFile, string, error)
}

type clientImpl struct {
	gh *github.Client
}

// NewClient authenticates with a PAT or GitHub App installation token.
// Returns nil if token is empty, matching the teacher's NewClient.
func NewClient(token string) Client {
	if token == "" {
		return nil
	}
	return &clientImpl{gh: github.NewClient(nil).WithAuthToken(token)}
}

// NewClientWithGitHub injects an existing *github.Client, for tests
// pointed at an httptest server, matching the teacher's NewClientWithGitHub.
func NewClientWithGitHub(gh *github.Client) Client {
	return &clientImpl{gh: gh}
}

func (c *clientImpl) CreateCheckRun(ctx context.Context, owner, repo, headSHA, name, status, conclusion, summary string) (string, error) {
	opts := github.CreateCheckRunOptions{
		Name:    name,
		HeadSHA: headSHA,
		Status:  github.Ptr(status),
		Output: &github.CheckRunOutput{
			Title:   github.Ptr(name),
			Summary: github.Ptr(summary),
		},
	}
	if conclusion != "" {
		opts.Conclusion = github.Ptr(conclusion)
	}
	run, _, err := c.gh.Checks.CreateCheckRun(ctx, owner, repo, opts)
	if err != nil {
		return "", mapError(err)
	}
	return formatExternalID(run.GetID()), nil
}

func (c *clientImpl) UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, status, conclusion, summary string) error {
	opts := github.UpdateCheckRunOptions{
		Name:   "pr-review",
		Status: github.Ptr(status),
		Output: &github.CheckRunOutput{
			Title:   github.Ptr("pr-review"),
			Summary: github.Ptr(summary),
		},
	}
	if conclusion != "" {
		opts.Conclusion = github.Ptr(conclusion)
	}
	_, _, err := c.gh.Checks.UpdateCheckRun(ctx, owner, repo, checkRunID, opts)
	return mapError(err)
}

func (c *clientImpl) CreateReviewBatch(ctx context.Context, owner, repo string, prNumber int, findings []Finding) (string, error) {
	comments := make([]*github.DraftReviewComment, 0, len(findings))
	for _, f := range findings {
		body := "**[" + f.Severity + "/" + f.Category + "]** " + f.Message
		if f.QuickFix != "" {
			body += "\n\n```suggestion\n" + f.QuickFix + "\n```"
		}
		comment := &github.DraftReviewComment{
			Path: github.Ptr(f.File),
			Body: github.Ptr(body),
			Line: github.Ptr(f.Line),
		}
		comments = append(comments, comment)
	}

	review, _, err := c.gh.PullRequests.CreateReview(ctx, owner, repo, prNumber, &github.PullRequestReviewRequest{
		Event:    github.Ptr("COMMENT"),
		Comments: comments,
	})
	if err != nil {
		return "", mapError(err)
	}
	return formatExternalID(review.GetID()), nil
}

func (c *clientImpl) CreateSummaryComment(ctx context.Context, owner, repo string, prNumber int, markdown string) (string, error) {
	comment, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, prNumber, &github.IssueComment{
		Body: github.Ptr(markdown),
	})
	if err != nil {
		return "", mapError(err)
	}
	return formatExternalID(comment.GetID()), nil
}

func (c *clientImpl) RequestReviewers(ctx context.Context, owner, repo string, prNumber int, logins []string) error {
	_, _, err := c.gh.PullRequests.RequestReviewers(ctx, owner, repo, prNumber, github.ReviewersRequest{
		Reviewers: logins,
	})
	return mapError(err)
}

func (c *clientImpl) CompareBranches(ctx context.Context, owner, repo, base, head string) (*github.CommitsComparison, error) {
	cmp, _, err := c.gh.Repositories.CompareCommits(ctx, owner, repo, base, head, nil)
	if err != nil {
		return nil, mapError(err)
	}
	return cmp, nil
}

func (c *clientImpl) GetCodeowners(ctx context.Context, owner, repo string) (string, error) {
	for _, path := range []string{"CODEOWNERS", ".github/CODEOWNERS", "docs/CODEOWNERS"} {
		content, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
		if err == nil && content != nil {
			body, decodeErr := content.GetContent()
			if decodeErr == nil {
				return body, nil
			}
		}
	}
	return "", nil
}

// LoadPRContext fetches the changed-file list and PR body the Agent
// Orchestrator's analysis agent needs, bridging orchestrator.PRContext to
// this client.
func (c *clientImpl) LoadPRContext(ctx context.Context, wf *domain.Workflow) ([]agents.ChangedFile, string, error) {
	owner, repo, err := ownerRepo(wf.RepositoryID)
	if err != nil {
		return nil, "", apperr.New(apperr.Validation, "ghclient.LoadPRContext", err)
	}

	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, wf.PRNumber)
	if err != nil {
		return nil, "", mapError(err)
	}

	var changed []agents.ChangedFile
	opts := &github.ListOptions{PerPage: 100}
	for {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, wf.PRNumber, opts)
		if err != nil {
			return nil, "", mapError(err)
		}
		for _, f := range files {
			changed = append(changed, agents.ChangedFile{
				Path:      f.GetFilename(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return changed, pr.GetBody(), nil
}

func ownerRepo(repositoryID string) (owner, repo string, err error) {
	for i := 0; i < len(repositoryID); i++ {
		if repositoryID[i] == '/' {
			return repositoryID[:i], repositoryID[i+1:], nil
		}
	}
	return "", "", errInvalidRepositoryID
}

var errInvalidRepositoryID = errors.New(`repositoryId must be "owner/repo"`)

func formatExternalID(id int64) string {
	return itoa64(id)
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// mapError maps a go-github error to the apperr taxonomy (§7), per the
// teacher's StatusCode-keyed dispatch in cursor/client.go.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case 401, 403:
			return apperr.New(apperr.Unauthorized, "ghclient", err)
		case 404:
			return apperr.New(apperr.NotFound, "ghclient", err)
		case 422:
			return apperr.New(apperr.Validation, "ghclient", err)
		case 429:
			return apperr.New(apperr.RateLimited, "ghclient", err)
		default:
			if ghErr.Response.StatusCode >= 500 {
				return apperr.New(apperr.ProviderError, "ghclient", err)
			}
		}
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperr.New(apperr.RateLimited, "ghclient", err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperr.New(apperr.RateLimited, "ghclient", err)
	}
	return apperr.New(apperr.ProviderError, "ghclient", err)
}

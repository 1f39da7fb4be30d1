package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/source"
)

const maxPerPage = 100

// Adapter implements source.Source for GitHub.
type Adapter struct {
	client *Client
	webURL string
}

// NewAdapter creates a GitHub source adapter from configuration and a
// resolved token.
func NewAdapter(cfg model.GitHubConfig, token string) *Adapter {
	return &Adapter{
		client: NewClient(cfg.APIURL, token,
			WithTimeout(cfg.Timeout),
			WithRateLimit(cfg.RequestsPerSecond),
		),
		webURL: strings.TrimRight(cfg.WebURL, "/"),
	}
}

// Type returns the source type identifier for GitHub.
func (a *Adapter) Type() source.SourceType {
	return source.SourceTypeGitHub
}

// ValidateConnection verifies credentials by fetching the authenticated user.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	var user User
	if err := a.client.Get(ctx, "/user", nil, &user); err != nil {
		return "", fmt.Errorf("validating GitHub connection: %w", err)
	}
	if user.Login == "" {
		return "", fmt.Errorf("/user returned empty login; token may be invalid")
	}
	return user.Login, nil
}

// ListUserRepos returns the authenticated user's repositories sorted by
// most recent push.
func (a *Adapter) ListUserRepos(ctx context.Context, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("sort", "pushed")
	q.Set("direction", "desc")
	q.Set("per_page", strconv.Itoa(perPage(limit)))

	var repos []Repository
	if err := a.client.Get(ctx, "/user/repos", q, &repos); err != nil {
		return nil, fmt.Errorf("listing user repositories: %w", err)
	}

	names := make([]string, 0, len(repos))
	for _, r := range repos {
		if r.FullName == "" {
			continue
		}
		names = append(names, r.FullName)
		if limit > 0 && len(names) >= limit {
			break
		}
	}
	return names, nil
}

// FetchRepository returns the current record of repo.
func (a *Adapter) FetchRepository(ctx context.Context, repo string) (model.FetchedRecord, error) {
	var r Repository
	if err := a.client.Get(ctx, "/repos/"+repo, nil, &r); err != nil {
		return model.FetchedRecord{}, fmt.Errorf("fetching repository %s: %w", repo, err)
	}
	return a.repositoryRecord(repo, r), nil
}

// FetchIssues returns the most recently updated issues of repo in any
// state. Pull requests returned by the issues endpoint are dropped.
func (a *Adapter) FetchIssues(ctx context.Context, repo string, limit int) ([]model.FetchedRecord, error) {
	var issues []Issue
	if err := a.client.Get(ctx, "/repos/"+repo+"/issues", listQuery(limit), &issues); err != nil {
		return nil, fmt.Errorf("fetching issues of %s: %w", repo, err)
	}

	out := make([]model.FetchedRecord, 0, len(issues))
	for _, is := range issues {
		if is.PullRequest != nil {
			continue
		}
		out = append(out, a.issueRecord(repo, is))
	}
	return out, nil
}

// FetchPullRequests returns the most recently updated pull requests of
// repo in any state.
func (a *Adapter) FetchPullRequests(ctx context.Context, repo string, limit int) ([]model.FetchedRecord, error) {
	var prs []PullRequest
	if err := a.client.Get(ctx, "/repos/"+repo+"/pulls", listQuery(limit), &prs); err != nil {
		return nil, fmt.Errorf("fetching pull requests of %s: %w", repo, err)
	}

	out := make([]model.FetchedRecord, 0, len(prs))
	for _, pr := range prs {
		out = append(out, a.pullRequestRecord(repo, pr))
	}
	return out, nil
}

// repositoryRecord keys the record by the watched name so that it matches
// the refs of the repository's issues and pull requests. GitHub may answer
// under another casing, or a new name after a rename.
func (a *Adapter) repositoryRecord(repo string, r Repository) model.FetchedRecord {
	title := r.FullName
	if title == "" {
		title = repo
	}
	link := r.HTMLURL
	if link == "" {
		link = a.webURL + "/" + repo
	}
	return model.FetchedRecord{
		Kind:     model.KindRepository,
		Ref:      model.RepoRef(repo),
		RemoteID: r.ID,
		Repo:     repo,
		Title:    title,
		URL:      link,
		Author:   r.Owner.Login,
		Body:     r.Description,
		Fields: model.Fields{
			model.FieldPushedAt:        formatTime(r.PushedAt),
			model.FieldOpenIssuesCount: strconv.Itoa(r.OpenIssuesCount),
			model.FieldStargazers:      strconv.Itoa(r.StargazersCount),
			model.FieldDescription:     r.Description,
		},
	}
}

func (a *Adapter) issueRecord(repo string, is Issue) model.FetchedRecord {
	link := is.HTMLURL
	if link == "" {
		link = fmt.Sprintf("%s/%s/issues/%d", a.webURL, repo, is.Number)
	}
	return model.FetchedRecord{
		Kind:     model.KindIssue,
		Ref:      model.ItemRef(repo, is.Number),
		RemoteID: is.ID,
		Repo:     repo,
		Number:   is.Number,
		Title:    is.Title,
		URL:      link,
		Author:   is.User.Login,
		Body:     is.Body,
		Fields: model.Fields{
			model.FieldTitle:        is.Title,
			model.FieldState:        is.State,
			model.FieldUpdatedAt:    formatTime(&is.UpdatedAt),
			model.FieldCommentCount: strconv.Itoa(is.Comments),
		},
	}
}

func (a *Adapter) pullRequestRecord(repo string, pr PullRequest) model.FetchedRecord {
	link := pr.HTMLURL
	if link == "" {
		link = fmt.Sprintf("%s/%s/pull/%d", a.webURL, repo, pr.Number)
	}
	return model.FetchedRecord{
		Kind:     model.KindPullRequest,
		Ref:      model.ItemRef(repo, pr.Number),
		RemoteID: pr.ID,
		Repo:     repo,
		Number:   pr.Number,
		Title:    pr.Title,
		URL:      link,
		Author:   pr.User.Login,
		Body:     pr.Body,
		Fields: model.Fields{
			model.FieldTitle:     pr.Title,
			model.FieldState:     pr.State,
			model.FieldUpdatedAt: formatTime(&pr.UpdatedAt),
			model.FieldMerged:    strconv.FormatBool(pr.MergedAt != nil),
			model.FieldDraft:     strconv.FormatBool(pr.Draft),
		},
	}
}

func listQuery(limit int) url.Values {
	q := url.Values{}
	q.Set("state", "all")
	q.Set("sort", "updated")
	q.Set("direction", "desc")
	q.Set("per_page", strconv.Itoa(perPage(limit)))
	return q
}

func perPage(limit int) int {
	if limit <= 0 || limit > maxPerPage {
		return maxPerPage
	}
	return limit
}

// formatTime renders t as RFC 3339 in UTC, or "" when unset.
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

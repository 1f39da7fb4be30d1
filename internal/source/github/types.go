package github

import "time"

// User represents a GitHub account.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

// Repository represents a GitHub repository as returned by /repos/{owner}/{name}.
type Repository struct {
	ID              int64      `json:"id"`
	FullName        string     `json:"full_name"`
	Description     string     `json:"description"`
	HTMLURL         string     `json:"html_url"`
	Private         bool       `json:"private"`
	Owner           User       `json:"owner"`
	PushedAt        *time.Time `json:"pushed_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
	OpenIssuesCount int        `json:"open_issues_count"`
	StargazersCount int        `json:"stargazers_count"`
}

// Issue represents an entry of /repos/{repo}/issues. Pull requests are also
// returned by that endpoint and carry a non-nil PullRequest field.
type Issue struct {
	ID          int64     `json:"id"`
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	State       string    `json:"state"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	User        User      `json:"user"`
	Comments    int       `json:"comments"`
	UpdatedAt   time.Time `json:"updated_at"`
	PullRequest *PRLink   `json:"pull_request,omitempty"`
}

// PRLink marks an issue entry that is actually a pull request.
type PRLink struct {
	URL string `json:"url"`
}

// PullRequest represents an entry of /repos/{repo}/pulls.
type PullRequest struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	Body      string     `json:"body"`
	HTMLURL   string     `json:"html_url"`
	User      User       `json:"user"`
	Draft     bool       `json:"draft"`
	UpdatedAt time.Time  `json:"updated_at"`
	MergedAt  *time.Time `json:"merged_at"`
}

// APIError is the error body GitHub returns on failures.
type APIError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

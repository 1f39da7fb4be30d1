package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/ghwatch/internal/model"
)

// AuthError indicates that authentication has failed or expired for a source.
// It is returned by source clients when a 401 response is received.
type AuthError struct {
	SourceType SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// TransientError marks a fetch failure that is expected to clear on its own:
// network errors, timeouts, server errors and exhausted rate-limit retries.
type TransientError struct {
	SourceType SourceType
	Op         string
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error (%s) on %s: %v", e.SourceType, e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// SourceType identifies the kind of external source integration.
type SourceType string

const (
	SourceTypeGitHub SourceType = "github"
)

// Source defines the contract of a remote API that tracked entities are
// fetched from. Every method is a read; none mutates remote state.
type Source interface {
	// Type returns the source type identifier.
	Type() SourceType

	// ValidateConnection verifies credentials and connectivity.
	// Returns the authenticated login on success.
	ValidateConnection(ctx context.Context) (string, error)

	// ListUserRepos returns the full names of the authenticated user's
	// repositories, most recently pushed first, at most limit entries.
	ListUserRepos(ctx context.Context, limit int) ([]string, error)

	// FetchRepository returns the current record of one repository.
	FetchRepository(ctx context.Context, repo string) (model.FetchedRecord, error)

	// FetchIssues returns the most recently updated issues of repo,
	// excluding pull requests.
	FetchIssues(ctx context.Context, repo string, limit int) ([]model.FetchedRecord, error)

	// FetchPullRequests returns the most recently updated pull requests of repo.
	FetchPullRequests(ctx context.Context, repo string, limit int) ([]model.FetchedRecord, error)
}

package reconcile

import (
	"context"
	gosync "sync"

	"github.com/nhle/ghwatch/internal/logging"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/source"
)

// repoBatch holds everything fetched for one repository.
type repoBatch struct {
	repo     string
	records  []model.FetchedRecord
	failures []unitFailure
}

type unitFailure struct {
	kind model.Kind
	err  error
}

func unitLabel(k model.Kind) string {
	switch k {
	case model.KindRepository:
		return "repository"
	case model.KindIssue:
		return "issues"
	case model.KindPullRequest:
		return "pull requests"
	}
	return string(k)
}

// fetchAll fetches every repository, at most cfg.FetchConcurrency at a
// time. Batches keep the order of repos. Only reads happen here; the store
// is not touched. An auth error cancels the remaining fetches and is
// returned.
func (d *Driver) fetchAll(ctx context.Context, repos []string, cfg model.GitHubConfig) ([]repoBatch, error) {
	workers := cfg.FetchConcurrency
	if workers < 1 {
		workers = 1
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      gosync.WaitGroup
		mu      gosync.Mutex
		authErr error
	)
	batches := make([]repoBatch, len(repos))
	sem := make(chan struct{}, workers)

	for i, repo := range repos {
		select {
		case <-fetchCtx.Done():
		case sem <- struct{}{}:
		}
		if fetchCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			b := d.fetchRepo(fetchCtx, repo, cfg.ItemLimit)
			for _, f := range b.failures {
				if source.IsAuthError(f.err) {
					mu.Lock()
					if authErr == nil {
						authErr = f.err
					}
					mu.Unlock()
					cancel()
					break
				}
			}
			batches[i] = b
		}()
	}
	wg.Wait()

	if authErr != nil {
		return nil, authErr
	}

	// Drop slots never fetched because of cancellation.
	out := batches[:0]
	for _, b := range batches {
		if b.repo != "" {
			out = append(out, b)
		}
	}
	return out, nil
}

// fetchRepo fetches the repository record, its issues and its pull
// requests. Each unit fails independently.
func (d *Driver) fetchRepo(ctx context.Context, repo string, limit int) repoBatch {
	b := repoBatch{repo: repo}
	log := d.log.With().Str(logging.FieldRepo, repo).Logger()

	units := []struct {
		kind  model.Kind
		fetch func() ([]model.FetchedRecord, error)
	}{
		{model.KindRepository, func() ([]model.FetchedRecord, error) {
			rec, err := d.source.FetchRepository(ctx, repo)
			if err != nil {
				return nil, err
			}
			return []model.FetchedRecord{rec}, nil
		}},
		{model.KindIssue, func() ([]model.FetchedRecord, error) {
			return d.source.FetchIssues(ctx, repo, limit)
		}},
		{model.KindPullRequest, func() ([]model.FetchedRecord, error) {
			return d.source.FetchPullRequests(ctx, repo, limit)
		}},
	}

	for _, u := range units {
		if ctx.Err() != nil {
			b.failures = append(b.failures, unitFailure{kind: u.kind, err: ctx.Err()})
			continue
		}
		recs, err := u.fetch()
		if err != nil {
			log.Warn().Err(err).Str(logging.FieldKind, string(u.kind)).Msg("fetch failed")
			b.failures = append(b.failures, unitFailure{kind: u.kind, err: err})
			if source.IsAuthError(err) {
				return b
			}
			continue
		}
		b.records = append(b.records, recs...)
	}
	return b
}

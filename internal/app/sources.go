package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/ghwatch/internal/credential"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/source"
	"github.com/nhle/ghwatch/internal/source/github"
)

// newSource builds the GitHub adapter, resolving the token from the
// configured keyring reference first and the environment second.
func newSource(cfg model.GitHubConfig) (source.Source, error) {
	token, err := credential.Lookup(cfg.TokenRef, cfg.TokenEnv)
	if err != nil {
		if errors.Is(err, credential.ErrMissing) {
			return nil, &source.AuthError{
				SourceType: source.SourceTypeGitHub,
				Message:    fmt.Sprintf("no token configured (%v)", err),
			}
		}
		return nil, fmt.Errorf("resolving github token: %w", err)
	}
	return github.NewAdapter(cfg, token), nil
}

// checkTokenExpiry logs a warning when the token expiry date read from
// the configured environment variable is close or past.
func checkTokenExpiry(cfg model.GitHubConfig, now time.Time, log zerolog.Logger) credential.Expiry {
	if cfg.TokenExpiresAtEnv == "" {
		return credential.Expiry{Level: credential.ExpiryUnknown}
	}
	e, err := credential.CheckExpiry(os.Getenv(cfg.TokenExpiresAtEnv), now)
	if err != nil {
		log.Warn().Err(err).Str("env", cfg.TokenExpiresAtEnv).Msg("ignoring token expiry")
		return e
	}

	switch e.Level {
	case credential.ExpiryExpired, credential.ExpiryImminent:
		log.Warn().Time("expires_at", e.ExpiresAt).Msg(e.Message())
	case credential.ExpirySoon:
		log.Info().Time("expires_at", e.ExpiresAt).Msg(e.Message())
	}
	return e
}

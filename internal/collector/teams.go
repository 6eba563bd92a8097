package collector

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

// TeamExpander resolves team slugs to member logins. Membership is cached for
// the lifetime of the expander so repeated references to the same team across
// a run cost a single API call.
type TeamExpander struct {
	api    GitHubAPI
	org    string
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string][]domain.User
}

// NewTeamExpander creates an expander for teams of the given organization.
func NewTeamExpander(api GitHubAPI, org string, logger *zap.Logger) *TeamExpander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamExpander{
		api:    api,
		org:    org,
		logger: logger,
		cache:  make(map[string][]domain.User),
	}
}

// Expand returns the member logins of a team. Failures propagate to the
// caller, which degrades gracefully rather than failing the enclosing item.
func (e *TeamExpander) Expand(ctx context.Context, slug string) ([]domain.User, error) {
	e.mu.Lock()
	if members, ok := e.cache[slug]; ok {
		e.mu.Unlock()
		return members, nil
	}
	e.mu.Unlock()

	members, err := e.api.ListTeamMembers(ctx, e.org, slug)
	if err != nil {
		e.logger.Warn("failed to expand team",
			zap.String("org", e.org), zap.String("team", slug), zap.Error(err))
		return nil, err
	}

	e.mu.Lock()
	e.cache[slug] = members
	e.mu.Unlock()

	e.logger.Debug("expanded team",
		zap.String("team", slug), zap.Int("members", len(members)))
	return members, nil
}

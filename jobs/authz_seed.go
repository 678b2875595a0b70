package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atrium-hq/atrium/internal/authz"
	jobmetrics "github.com/atrium-hq/atrium/internal/jobs"
	"github.com/atrium-hq/atrium/internal/registry"
)

// AuthzSeedJob writes the static permission catalog into Postgres so ops
// tooling and reporting can join override rows against display metadata.
type AuthzSeedJob struct {
	repo     authz.OverrideRepository
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewAuthzSeedJob constructs the job.
func NewAuthzSeedJob(repo authz.OverrideRepository, reg *registry.Registry, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuthzSeedJob {
	return &AuthzSeedJob{repo: repo, registry: reg, logger: logger, metrics: metrics}
}

// Handle processes TaskAuthzSeed tasks.
func (j *AuthzSeedJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("authz_seed")
	perms := j.registry.All()
	if err := j.repo.SeedPermissions(ctx, perms); err != nil {
		if j.logger != nil {
			j.logger.Error("seed permissions", slog.Any("error", err))
		}
		return tracker.End(err)
	}
	if j.logger != nil {
		j.logger.Info("permission catalog seeded", slog.Int("count", len(perms)))
	}
	return tracker.End(nil)
}

package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atrium-hq/atrium/internal/authz"
	jobmetrics "github.com/atrium-hq/atrium/internal/jobs"
	"github.com/atrium-hq/atrium/internal/registry"
)

// AuthzSweepJob deletes override rows whose permission code has left the
// catalog, and rows left behind on accounts promoted to admin. Both only
// change across deployments or role edits, so this runs on a cron rather than
// on the request path.
type AuthzSweepJob struct {
	repo     authz.OverrideRepository
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewAuthzSweepJob constructs the job.
func NewAuthzSweepJob(repo authz.OverrideRepository, reg *registry.Registry, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuthzSweepJob {
	return &AuthzSweepJob{repo: repo, registry: reg, logger: logger, metrics: metrics}
}

// Handle processes TaskAuthzSweep tasks.
func (j *AuthzSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("authz_sweep")
	removed, err := j.repo.DeleteOrphanedOverrides(ctx, j.registry.AllCodes())
	if err != nil {
		if j.logger != nil {
			j.logger.Error("sweep overrides", slog.Any("error", err))
		}
		return tracker.End(err)
	}
	j.metrics.AddOrphanedOverrides(removed)
	if j.logger != nil {
		j.logger.Info("override sweep complete", slog.Int64("removed", removed))
	}
	return tracker.End(nil)
}

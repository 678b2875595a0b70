package jobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/atrium-hq/atrium/internal/authz"
	jobmetrics "github.com/atrium-hq/atrium/internal/jobs"
	"github.com/atrium-hq/atrium/internal/registry"
	"github.com/atrium-hq/atrium/jobs"
	_ "github.com/atrium-hq/atrium/testing"
)

type fakeOverrideRepo struct {
	seeded    []registry.Permission
	swept     []string
	orphans   int64
	failSeed  error
	failSweep error
}

func (f *fakeOverrideRepo) FindOverridesForUser(ctx context.Context, userID int64) ([]authz.Override, error) {
	return nil, nil
}

func (f *fakeOverrideRepo) ReplaceOverrides(ctx context.Context, userID int64, overrides []authz.Override) error {
	return nil
}

func (f *fakeOverrideRepo) UpsertOverride(ctx context.Context, o authz.Override) error {
	return nil
}

func (f *fakeOverrideRepo) DeleteOverride(ctx context.Context, userID int64, code string) error {
	return nil
}

func (f *fakeOverrideRepo) DeleteOrphanedOverrides(ctx context.Context, knownCodes []string) (int64, error) {
	if f.failSweep != nil {
		return 0, f.failSweep
	}
	f.swept = knownCodes
	return f.orphans, nil
}

func (f *fakeOverrideRepo) SeedPermissions(ctx context.Context, perms []registry.Permission) error {
	if f.failSeed != nil {
		return f.failSeed
	}
	f.seeded = perms
	return nil
}

func TestSeedJobWritesFullCatalog(t *testing.T) {
	repo := &fakeOverrideRepo{}
	reg := registry.New()
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := jobs.NewAuthzSeedJob(repo, reg, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), jobs.NewAuthzSeedTask()))
	require.Len(t, repo.seeded, len(reg.AllCodes()))
}

func TestSeedJobPropagatesFailure(t *testing.T) {
	repo := &fakeOverrideRepo{failSeed: errors.New("insert failed")}
	job := jobs.NewAuthzSeedJob(repo, registry.New(), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), jobs.NewAuthzSeedTask())
	require.EqualError(t, err, "insert failed")
}

func TestSweepJobPassesKnownCodes(t *testing.T) {
	repo := &fakeOverrideRepo{orphans: 3}
	reg := registry.New()
	registerer := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registerer)
	job := jobs.NewAuthzSweepJob(repo, reg, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), jobs.NewAuthzSweepTask()))
	require.Equal(t, reg.AllCodes(), repo.swept)

	count, err := testutil.GatherAndCount(registerer,
		"atrium_jobs_total", "atrium_authz_orphaned_overrides_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestSweepJobPropagatesFailure(t *testing.T) {
	repo := &fakeOverrideRepo{failSweep: errors.New("delete failed")}
	job := jobs.NewAuthzSweepJob(repo, registry.New(), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), jobs.NewAuthzSweepTask())
	require.EqualError(t, err, "delete failed")
}

func TestJobsRunWithoutMetrics(t *testing.T) {
	repo := &fakeOverrideRepo{}
	reg := registry.New()

	require.NoError(t, jobs.NewAuthzSeedJob(repo, reg, nil, nil).Handle(context.Background(), jobs.NewAuthzSeedTask()))
	require.NoError(t, jobs.NewAuthzSweepJob(repo, reg, nil, nil).Handle(context.Background(), jobs.NewAuthzSweepTask()))
}

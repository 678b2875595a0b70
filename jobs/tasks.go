package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthzSeed upserts the permission catalog into storage.
	TaskAuthzSeed = "authz:seed"
	// TaskAuthzSweep removes override rows that no longer resolve: unknown
	// codes and rows belonging to admin accounts.
	TaskAuthzSweep = "authz:sweep"
)

// NewAuthzSeedTask constructs the catalog seeding task.
func NewAuthzSeedTask() *asynq.Task {
	return asynq.NewTask(TaskAuthzSeed, nil)
}

// NewAuthzSweepTask constructs the override sweep task.
func NewAuthzSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAuthzSweep, nil)
}

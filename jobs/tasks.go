package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueSnapshots is consumed inside the API process, which owns the
	// in-memory store the snapshot reads.
	QueueSnapshots = "snapshots"
	// QueueMaintenance is consumed by the standalone worker.
	QueueMaintenance = "maintenance"
	// TaskSnapshotPersist writes the in-memory authorization state to Postgres.
	TaskSnapshotPersist = "rbac:snapshot"
	// TaskCacheSweep clears every cached decision entry. Safety net behind
	// the per-user invalidation done inline by the rbac service.
	TaskCacheSweep = "rbac:cache-sweep"
)

// SnapshotPayload parametrizes a snapshot run.
type SnapshotPayload struct {
	Reason string `json:"reason"`
}

// NewSnapshotPersistTask constructs a snapshot task.
func NewSnapshotPersistTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(SnapshotPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotPersist, data), nil
}

// NewCacheSweepTask constructs a cache sweep task.
func NewCacheSweepTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskCacheSweep, nil), nil
}

package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/warden-rbac/warden/internal/rbac"
)

// SnapshotSource yields the state to persist. The rbac service satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) rbac.Snapshot
}

// SnapshotWriter persists a snapshot. The rbac Postgres repository
// satisfies it.
type SnapshotWriter interface {
	Save(ctx context.Context, snap rbac.Snapshot) error
}

// SnapshotJob persists the in-memory authorization state on a schedule so
// restarts pick up where the last snapshot left off.
type SnapshotJob struct {
	source SnapshotSource
	writer SnapshotWriter
	logger *slog.Logger
}

// NewSnapshotJob constructs a SnapshotJob.
func NewSnapshotJob(source SnapshotSource, writer SnapshotWriter, logger *slog.Logger) *SnapshotJob {
	return &SnapshotJob{source: source, writer: writer, logger: logger}
}

// Handle processes TaskSnapshotPersist tasks.
func (j *SnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	snap := j.source.Snapshot(ctx)
	if err := j.writer.Save(ctx, snap); err != nil {
		j.logger.Error("persist snapshot", slog.Any("error", err))
		return err
	}
	j.logger.Info("snapshot persisted",
		slog.String("reason", payload.Reason),
		slog.Int("roles", len(snap.Roles)),
		slog.Int("bindings", len(snap.Bindings)))
	return nil
}

// CacheSweepJob drops every cached decision entry. Inline invalidation keeps
// the cache correct; the sweep bounds staleness if an invalidation is lost.
type CacheSweepJob struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCacheSweepJob constructs a CacheSweepJob.
func NewCacheSweepJob(client *redis.Client, logger *slog.Logger) *CacheSweepJob {
	return &CacheSweepJob{client: client, logger: logger}
}

// Handle processes TaskCacheSweep tasks.
func (j *CacheSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var deleted int64
	for _, pattern := range []string{"warden:perms:*", "warden:roles:*"} {
		iter := j.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			n, err := j.client.Del(ctx, iter.Val()).Result()
			if err != nil {
				j.logger.Warn("cache sweep delete", slog.Any("error", err))
				continue
			}
			deleted += n
		}
		if err := iter.Err(); err != nil {
			j.logger.Error("cache sweep scan", slog.Any("error", err))
			return err
		}
	}
	j.logger.Info("cache sweep", slog.Int64("deleted", deleted))
	return nil
}

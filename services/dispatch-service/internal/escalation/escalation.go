// Package escalation signals operator escalation when a job runs out of
// eligible resources. Exhaustion must be re-signalable without producing a
// second alert, so a Redis marker dedupes per job before the outbox event
// is written.
package escalation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldserve/dispatch/libs/db"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/outbox"
)

// markerStore is the slice of the Redis client the notifier needs for the
// per-job dedupe marker.
type markerStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Notifier struct {
	pool    *db.Pool
	outbox  *outbox.Repository
	markers markerStore
	logger  *slog.Logger
	ttl     time.Duration
	emit    func(ctx context.Context, jobID string) error
}

// NewNotifier builds the exhaustion notifier. rdb may be nil; without Redis
// deduplication fails open and every exhaustion signal emits an event.
func NewNotifier(pool *db.Pool, outboxRepo *outbox.Repository, rdb *redis.Client, logger *slog.Logger, ttl time.Duration) *Notifier {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	n := &Notifier{pool: pool, outbox: outboxRepo, logger: logger, ttl: ttl}
	if rdb != nil {
		n.markers = rdb
	}
	n.emit = n.insertEvent
	return n
}

// JobExhausted emits one dispatch.job.exhausted.v1 event per job within the
// dedupe window. Safe to call repeatedly; exhaustion is terminal and the
// alert should not multiply when callers re-signal it.
func (n *Notifier) JobExhausted(ctx context.Context, jobID string) error {
	if !n.claimMarker(ctx, jobID) {
		n.logger.Info("exhaustion already signalled, skipping alert", "job_id", jobID)
		return nil
	}
	if err := n.emit(ctx, jobID); err != nil {
		// The alert never made it to the outbox; release the marker so a
		// retry is not silently deduped for the whole TTL.
		n.releaseMarker(ctx, jobID)
		return err
	}
	return nil
}

func (n *Notifier) insertEvent(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(map[string]any{
		"job_id":       jobID,
		"exhausted_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := n.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "job",
		AggregateID:   jobID,
		EventType:     outbox.EventJobExhausted,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// claimMarker takes the per-job dedupe marker. Redis being down is not a
// reason to drop an operator alert, so errors fail open.
func (n *Notifier) claimMarker(ctx context.Context, jobID string) bool {
	if n.markers == nil {
		return true
	}
	ok, err := n.markers.SetNX(ctx, markerKey(jobID), time.Now().UTC().Format(time.RFC3339), n.ttl).Result()
	if err != nil {
		n.logger.Warn("exhaustion dedupe unavailable, emitting anyway", "err", err)
		return true
	}
	return ok
}

func (n *Notifier) releaseMarker(ctx context.Context, jobID string) {
	if n.markers == nil {
		return
	}
	if err := n.markers.Del(ctx, markerKey(jobID)).Err(); err != nil {
		n.logger.Warn("could not release exhaustion marker, next alert may be delayed",
			"job_id", jobID, "err", err)
	}
}

func markerKey(jobID string) string {
	return "dispatch:exhausted:" + jobID
}

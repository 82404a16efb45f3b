package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"

	jobmetrics "github.com/parishdesk/parishdesk/internal/jobs"
	"github.com/parishdesk/parishdesk/internal/notifications"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// DefaultRetention keeps read notifications for ninety days.
const DefaultRetention = 90 * 24 * time.Hour

// Fanout is the bulk side of the notification store.
type Fanout interface {
	Broadcast(ctx context.Context, roles []string, d notifications.Draft) (int64, error)
	PruneRead(ctx context.Context, cutoff time.Time) (int64, error)
}

// Auditor records who published what.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BroadcastJob writes an announcement for every addressed profile.
type BroadcastJob struct {
	Store   Fanout
	Audit   Auditor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskNotificationsBroadcast tasks.
func (j *BroadcastJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("broadcast: handler not configured")
	}
	var payload BroadcastPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("broadcast: decode payload: %w", asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.Draft.Type == "" {
		payload.Draft.Type = notifications.TypeAnnouncement
	}

	tracker := j.Metrics.Track(TaskNotificationsBroadcast)
	defer func() {
		err = tracker.End(err)
	}()

	logger := loggerOr(j.Logger).With(slog.String("title", payload.Draft.Title), slog.Any("roles", payload.Roles))
	written, err := j.Store.Broadcast(ctx, payload.Roles, payload.Draft)
	if err != nil {
		logger.Error("broadcast failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddRows(TaskNotificationsBroadcast, written)
	logger.Info("broadcast delivered", slog.Int64("recipients", written), slog.String("author", payload.Author))
	j.audit(ctx, logger, payload, written)
	return nil
}

// audit failures never fail the task; the rows are already written.
func (j *BroadcastJob) audit(ctx context.Context, logger *slog.Logger, payload BroadcastPayload, written int64) {
	if j.Audit == nil {
		return
	}
	entityID, ok := asynq.GetTaskID(ctx)
	if !ok {
		entityID = payload.Draft.Title
	}
	actor, _ := uuid.Parse(payload.Author)
	err := j.Audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   "announcement.broadcast",
		Entity:   "notifications",
		EntityID: entityID,
		Meta: map[string]any{
			"title":      payload.Draft.Title,
			"roles":      payload.Roles,
			"recipients": written,
		},
	})
	if err != nil {
		logger.Warn("audit broadcast", slog.Any("error", err))
	}
}

// PruneJob deletes read notifications past their retention.
type PruneJob struct {
	Store     Fanout
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Clock     clockwork.Clock
}

// Handle processes TaskNotificationsPrune tasks.
func (j *PruneJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("prune: handler not configured")
	}
	var payload PrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("prune: decode payload: %w", asynq.SkipRetry)
		}
	}
	retention := j.Retention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	clock := j.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	tracker := j.Metrics.Track(TaskNotificationsPrune)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := clock.Now().Add(-retention)
	removed, err := j.Store.PruneRead(ctx, cutoff)
	if err != nil {
		loggerOr(j.Logger).Error("prune failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddRows(TaskNotificationsPrune, removed)
	loggerOr(j.Logger).Info("pruned read notifications", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return nil
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

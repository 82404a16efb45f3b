package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishdesk/parishdesk/internal/notifications"
	"github.com/parishdesk/parishdesk/internal/shared"
)

type stubFanout struct {
	roles     []string
	draft     notifications.Draft
	cutoff    time.Time
	written   int64
	removed   int64
	err       error
	broadcast int
}

func (s *stubFanout) Broadcast(_ context.Context, roles []string, d notifications.Draft) (int64, error) {
	s.broadcast++
	s.roles, s.draft = roles, d
	return s.written, s.err
}

func (s *stubFanout) PruneRead(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.removed, s.err
}

type stubAuditor struct {
	logs []shared.AuditLog
	err  error
}

func (s *stubAuditor) Record(_ context.Context, log shared.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

type stubEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	s.opts = append(s.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault, Type: task.Type()}, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestBroadcastJobFansOut(t *testing.T) {
	store := &stubFanout{written: 42}
	job := &BroadcastJob{Store: store}

	task, err := NewBroadcastTask(BroadcastPayload{
		Roles: []string{"admin", "super_admin"},
		Draft: notifications.Draft{Title: "Diocesan assembly", Message: "Saturday at 9am", Link: "/announcements"},
	})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, []string{"admin", "super_admin"}, store.roles)
	assert.Equal(t, notifications.TypeAnnouncement, store.draft.Type)
	assert.Equal(t, "Diocesan assembly", store.draft.Title)
}

func TestBroadcastJobAuditsAuthor(t *testing.T) {
	auditor := &stubAuditor{err: errors.New("audit table missing")}
	job := &BroadcastJob{Store: &stubFanout{written: 3}, Audit: auditor}
	author := "5f0c8a9e-6a0b-4a43-9d61-2f3f0d3b6c11"

	task, err := NewBroadcastTask(BroadcastPayload{Author: author, Draft: notifications.Draft{Title: "Retreat", Message: "Lent retreat"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task), "audit failures do not fail delivery")

	require.Len(t, auditor.logs, 1)
	entry := auditor.logs[0]
	assert.Equal(t, author, entry.ActorID.String())
	assert.Equal(t, "announcement.broadcast", entry.Action)
	assert.Equal(t, "Retreat", entry.EntityID)
	assert.Equal(t, int64(3), entry.Meta["recipients"])
}

func TestBroadcastJobRejectsBadPayloadWithoutRetry(t *testing.T) {
	job := &BroadcastJob{Store: &stubFanout{}}

	err := job.Handle(context.Background(), asynq.NewTask(TaskNotificationsBroadcast, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	data, _ := json.Marshal(BroadcastPayload{Draft: notifications.Draft{Message: "no title"}})
	err = job.Handle(context.Background(), asynq.NewTask(TaskNotificationsBroadcast, data))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBroadcastJobSurfacesStoreErrors(t *testing.T) {
	store := &stubFanout{err: errors.New("db down")}
	job := &BroadcastJob{Store: store}
	task, err := NewBroadcastTask(BroadcastPayload{Draft: notifications.Draft{Title: "t", Message: "m"}})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	assert.EqualError(t, err, "db down")
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestNewBroadcastTaskValidates(t *testing.T) {
	_, err := NewBroadcastTask(BroadcastPayload{Draft: notifications.Draft{Title: " ", Message: "m"}})
	assert.Error(t, err)
	_, err = NewBroadcastTask(BroadcastPayload{Draft: notifications.Draft{Title: "t"}})
	assert.Error(t, err)
}

func TestPruneJobUsesRetention(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC))
	store := &stubFanout{removed: 7}
	job := &PruneJob{Store: store, Clock: clock, Retention: 48 * time.Hour}

	task, err := NewPruneTask(PrunePayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, clock.Now().Add(-48*time.Hour), store.cutoff)

	task, err = NewPruneTask(PrunePayload{RetentionHours: 1})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, clock.Now().Add(-time.Hour), store.cutoff)

	job.Retention = 0
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskNotificationsPrune, nil)))
	assert.Equal(t, clock.Now().Add(-DefaultRetention), store.cutoff)
}

func TestClientEnqueueBroadcast(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	client := NewClientWith(enqueuer)

	info, err := client.EnqueueBroadcast(context.Background(), BroadcastPayload{Draft: notifications.Draft{Title: "t", Message: "m"}})
	require.NoError(t, err)
	assert.Equal(t, TaskNotificationsBroadcast, info.Type)
	require.Len(t, enqueuer.tasks, 1)

	var payload BroadcastPayload
	require.NoError(t, json.Unmarshal(enqueuer.tasks[0].Payload(), &payload))
	assert.Equal(t, "t", payload.Draft.Title)
	assert.NoError(t, client.Close())

	_, err = client.EnqueueBroadcast(context.Background(), BroadcastPayload{})
	assert.Error(t, err)
	assert.Len(t, enqueuer.tasks, 1)
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   float64
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, status: http.StatusOK, pending: 3},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial")}, status: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tt.inspector, nil).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.status, rr.Code)
			if tt.status != http.StatusOK {
				return
			}
			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, QueueDefault, body["queue"])
			assert.Equal(t, tt.pending, body["pending"])
		})
	}
}

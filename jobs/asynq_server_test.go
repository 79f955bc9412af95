package jobs

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueStub struct {
	info *asynq.QueueInfo
	err  error
}

func (q queueStub) GetQueueInfo(string) (*asynq.QueueInfo, error) { return q.info, q.err }

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rec
}

func TestHealthReportsQueueState(t *testing.T) {
	rec := serveHealth(t, queueStub{info: &asynq.QueueInfo{
		Queue: QueueDefault, Pending: 4, Active: 1, Retry: 2, Archived: 1, Latency: 1500 * time.Millisecond,
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":4,"active":1,"scheduled":0,"retry":2,"archived":1,"latencySeconds":1.5,"paused":false}`, rec.Body.String())
}

func TestHealthWithoutInspector(t *testing.T) {
	rec := serveHealth(t, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":0`)
}

func TestHealthWhenRedisIsDown(t *testing.T) {
	rec := serveHealth(t, queueStub{err: errors.New("dial tcp: connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewIntegrityTask(IntegrityPayload{})
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "every tuesday", Task: task}},
	})
	assert.ErrorContains(t, err, "register cron")
}

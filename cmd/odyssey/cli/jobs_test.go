package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault, Type: task.Type()}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct{}

func (stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 3, Retry: 1}, nil
}

func (stubInspector) Close() error { return nil }

func TestIntegrityCommandEnqueuesUnits(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq, inspector: stubInspector{}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := c.Run(context.Background(), []string{"integrity", "-units", "10, 11"}, stdout, stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, jobs.TaskLedgerIntegrity, enq.tasks[0].Type())

	var payload jobs.IntegrityPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, []int64{10, 11}, payload.Units)
	assert.Contains(t, stdout.String(), "task-1")
}

func TestIntegrityCommandRejectsBadUnits(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq}
	stderr := new(bytes.Buffer)

	code := c.Run(context.Background(), []string{"integrity", "-units", "ten"}, new(bytes.Buffer), stderr)
	assert.Equal(t, 2, code)
	assert.Empty(t, enq.tasks)
	assert.Contains(t, stderr.String(), `invalid unit id "ten"`)
}

func TestStatsCommandJSON(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{}}
	stdout := new(bytes.Buffer)

	code := c.Run(context.Background(), []string{"stats", "-json"}, stdout, new(bytes.Buffer))
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"active":0,"scheduled":0,"retry":1}`, stdout.String())
}

func TestUnknownCommand(t *testing.T) {
	c := &JobsCLI{}
	assert.Equal(t, 2, c.Run(context.Background(), []string{"reindex"}, new(bytes.Buffer), new(bytes.Buffer)))
	assert.Equal(t, 2, c.Run(context.Background(), nil, new(bytes.Buffer), new(bytes.Buffer)))
}

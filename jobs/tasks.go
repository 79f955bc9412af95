package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity re-checks trial balances and stock replays.
	TaskLedgerIntegrity = "ledger:integrity"
)

// IntegrityPayload scopes an integrity run. No units means every configured unit.
type IntegrityPayload struct {
	Units []int64 `json:"units,omitempty"`
}

// NewIntegrityTask constructs an Asynq task.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

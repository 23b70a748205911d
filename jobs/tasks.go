package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPackingGenerate renders the packing list of a completed outbound wave.
	TaskPackingGenerate = "packing:generate"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// PackingListPayload identifies the wave whose packing list is generated.
type PackingListPayload struct {
	WaveID int64 `json:"wave_id"`
}

// PackingListTaskID is stable per wave so repeated completions collapse into one task.
func PackingListTaskID(waveID int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PACK:%d", waveID))).String()
}

// NewPackingListTask constructs an Asynq task.
func NewPackingListTask(payload PackingListPayload) (*asynq.Task, error) {
	if payload.WaveID <= 0 {
		return nil, errors.New("jobs: wave id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPackingGenerate, data,
		asynq.MaxRetry(5),
		asynq.Queue(QueueDefault),
		asynq.TaskID(PackingListTaskID(payload.WaveID)),
	), nil
}

// IdempotencyCleanupPayload carries the retention window of the cleanup.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// Retention returns the payload window, defaulting to seven days.
func (p IdempotencyCleanupPayload) Retention() time.Duration {
	if p.RetentionHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewIdempotencyCleanupTask constructs an Asynq task for the cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	payload := IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

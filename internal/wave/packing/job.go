package packing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/AlekseyRodimkin/warehouse/internal/jobs"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
	"github.com/AlekseyRodimkin/warehouse/jobs"
)

// Job processes packing list requests coming from the queue.
type Job struct {
	loader    Loader
	generator *Generator
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewJob constructs a Job handler.
func NewJob(loader Loader, generator *Generator, metrics *jobmetrics.Metrics, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{loader: loader, generator: generator, metrics: metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.loader == nil || j.generator == nil {
		return fmt.Errorf("packing job not configured")
	}
	var payload jobs.PackingListPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.WaveID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(jobs.TaskPackingGenerate)
	defer func() { err = tracker.End(err) }()

	w, err := j.loader.Get(ctx, payload.WaveID)
	if errors.Is(err, wave.ErrNotFound) {
		j.logger.Warn("packing list for missing wave", slog.Int64("wave_id", payload.WaveID))
		return asynq.SkipRetry
	}
	if err != nil {
		return err
	}
	if w.Kind != wave.KindOutbound || w.Status != wave.StatusCompleted {
		j.logger.Warn("packing list skipped", slog.String("number", w.Number), slog.String("status", string(w.Status)))
		return asynq.SkipRetry
	}
	return j.generator.Generate(ctx, w)
}

// Enqueuer is the queue side of the packing job.
type Enqueuer interface {
	EnqueuePackingList(ctx context.Context, payload jobs.PackingListPayload) (*asynq.TaskInfo, error)
}

// Queue implements wave.PackingList by enqueueing a job instead of rendering inline.
type Queue struct {
	client Enqueuer
}

// NewQueue wraps a job client.
func NewQueue(client Enqueuer) *Queue {
	return &Queue{client: client}
}

// Generate enqueues the packing list of w.
func (q *Queue) Generate(ctx context.Context, w wave.Wave) error {
	if q == nil || q.client == nil {
		return fmt.Errorf("packing queue not configured")
	}
	_, err := q.client.EnqueuePackingList(ctx, jobs.PackingListPayload{WaveID: w.ID})
	return err
}

var (
	_ wave.PackingList = (*Generator)(nil)
	_ wave.PackingList = (*Queue)(nil)
)

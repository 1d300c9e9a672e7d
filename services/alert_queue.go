package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeThresholdEvaluate = "threshold:evaluate"

const thresholdTimeout = 30 * time.Second

// AlertQueue receives threshold checks after a settlement has committed.
// Enqueueing must not block the webhook acknowledgment.
type AlertQueue interface {
	EnqueueThresholdCheck(ctx context.Context, tripDateID uuid.UUID) error
}

type InProcessAlertQueue struct {
	dispatcher *ThresholdDispatcher
	logger     *zap.Logger
	wg         sync.WaitGroup
}

func NewInProcessAlertQueue(dispatcher *ThresholdDispatcher, logger *zap.Logger) *InProcessAlertQueue {
	return &InProcessAlertQueue{dispatcher: dispatcher, logger: logger}
}

func (q *InProcessAlertQueue) EnqueueThresholdCheck(ctx context.Context, tripDateID uuid.UUID) error {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), thresholdTimeout)
		defer cancel()

		if _, err := q.dispatcher.Evaluate(ctx, tripDateID); err != nil {
			q.logger.Error("Threshold evaluation failed",
				zap.String("tripDateId", tripDateID.String()), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every queued evaluation has finished.
func (q *InProcessAlertQueue) Wait() {
	q.wg.Wait()
}

type thresholdPayload struct {
	TripDateID uuid.UUID `json:"trip_date_id"`
}

func NewThresholdTask(tripDateID uuid.UUID) (*asynq.Task, error) {
	b, err := json.Marshal(thresholdPayload{TripDateID: tripDateID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeThresholdEvaluate, b, asynq.MaxRetry(5), asynq.Timeout(thresholdTimeout)), nil
}

// AsynqAlertQueue hands threshold checks to a Redis-backed worker so they
// survive a restart of the API process.
type AsynqAlertQueue struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewAsynqAlertQueue(redisAddr string, logger *zap.Logger) *AsynqAlertQueue {
	return &AsynqAlertQueue{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		logger: logger,
	}
}

func (q *AsynqAlertQueue) EnqueueThresholdCheck(ctx context.Context, tripDateID uuid.UUID) error {
	task, err := NewThresholdTask(tripDateID)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue threshold check: %w", err)
	}
	q.logger.Debug("Threshold check enqueued",
		zap.String("tripDateId", tripDateID.String()), zap.String("taskId", info.ID))
	return nil
}

func (q *AsynqAlertQueue) Close() error {
	return q.client.Close()
}

// HandleThresholdTask evaluates the trip date named in the task payload.
// Malformed payloads are not retried.
func HandleThresholdTask(dispatcher *ThresholdDispatcher, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p thresholdPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("Invalid threshold task payload", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		out, err := dispatcher.Evaluate(ctx, p.TripDateID)
		if err != nil {
			return err
		}
		logger.Debug("Threshold task processed",
			zap.String("tripDateId", p.TripDateID.String()),
			zap.Int("confirmed", out.Confirmed))
		return nil
	}
}

// NewThresholdWorker builds the asynq server and mux that consume the alert
// queue. The caller runs it with srv.Run(mux).
func NewThresholdWorker(redisAddr string, dispatcher *ThresholdDispatcher, logger *zap.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeThresholdEvaluate, HandleThresholdTask(dispatcher, logger))
	return srv, mux
}

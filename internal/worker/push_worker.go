package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"selefli/internal/database"
	"selefli/internal/domain"
	"selefli/internal/metrics"
	"selefli/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	pushQueueKey      = "push:queue"
	pushDeadLetterKey = "push:deadletter"
)

// PushWorker consumes push_queue tasks and fans each notification out to the
// recipient's active devices.
type PushWorker struct {
	repo          domain.PushRepository
	sender        domain.PushSender
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.PushTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewPushWorker(repo domain.PushRepository, sender domain.PushSender, redisClient *redis.Client, retry RetryPolicy, pollInterval time.Duration, logger *zerolog.Logger) *PushWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	l := logger.With().Str("component", "push_worker").Logger()

	return &PushWorker{
		repo:          repo,
		sender:        sender,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.PushTask, 128),
		redisQueueKey: pushQueueKey,
		deadLetterKey: pushDeadLetterKey,
		pollInterval:  pollInterval,
		batchSize:     20,
		logger:        &l,
	}
}

// EnqueueNotification persists a task and schedules it via redis or the
// in-memory queue. Tasks that miss both are picked up by polling.
func (w *PushWorker) EnqueueNotification(ctx context.Context, notificationID string) error {
	if notificationID == "" {
		return errors.New("notification id is required")
	}
	task := models.PushTask{NotificationID: notificationID, Status: models.TaskStatusPending}
	if err := w.repo.CreatePushTask(ctx, &task); err != nil {
		return fmt.Errorf("persist push task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Str("task_id", task.ID).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Str("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the main loop until ctx is done.
func (w *PushWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("started")
	defer w.logger.Info().Msg("stopped")

	if failed, err := w.repo.GetFailedPushTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("count failed tasks")
	} else if len(failed) > 0 {
		w.logger.Warn().Int("failed_tasks", len(failed)).Msg("dead-lettered push tasks present")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.repo.GetPendingPushTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("fetch pending tasks")
			}
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}
		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *PushWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *PushWorker) tryLocalQueue() (models.PushTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.PushTask{}, false
	}
}

func (w *PushWorker) tryRedis(ctx context.Context) (models.PushTask, bool) {
	if w.redis == nil {
		return models.PushTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("redis BRPOP")
		}
		return models.PushTask{}, false
	}
	if len(res) != 2 {
		return models.PushTask{}, false
	}
	var task models.PushTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.PushTask{}, false
	}
	return task, true
}

func (w *PushWorker) processTask(ctx context.Context, task *models.PushTask) {
	// The same task can arrive from a queue and from polling.
	current, err := w.repo.GetPushTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("load task")
		return
	}
	if current.Status == models.TaskStatusCompleted || current.Status == models.TaskStatusFailed {
		return
	}
	task = current

	n, err := w.repo.GetNotification(ctx, task.NotificationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			w.failTask(ctx, task, errors.New("notification not found"))
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}
	if n.PushSent {
		w.complete(ctx, task)
		return
	}

	if err := w.deliver(ctx, n); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}
	if err := w.repo.MarkPushSent(ctx, n.ID); err != nil {
		w.logger.Error().Err(err).Str("notification_id", n.ID).Msg("mark push sent")
	}
	w.complete(ctx, task)
}

// deliver sends n to every active device of its recipient. It only fails
// when no device got the message and at least one failure may be transient.
func (w *PushWorker) deliver(ctx context.Context, n *models.Notification) error {
	devices, err := w.repo.ListActiveDevices(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("load devices: %w", err)
	}
	if len(devices) == 0 {
		w.logger.Debug().Str("recipient_id", n.RecipientID).Msg("no active devices")
		return nil
	}

	data := n.Payload.StringMap()
	data["notification_id"] = n.ID
	data["notification_type"] = string(n.Type)

	var delivered, transient int
	var lastErr error
	for _, d := range devices {
		res := w.sender.Send(ctx, models.PushMessage{Token: d.FCMToken, Title: n.Title, Body: n.Body, Data: data})
		metrics.IncPush(string(res.Outcome))
		switch res.Outcome {
		case models.PushDelivered:
			delivered++
			if err := w.repo.TouchDevice(ctx, d.ID); err != nil {
				w.logger.Warn().Err(err).Str("device_id", d.ID).Msg("touch device")
			}
		case models.PushInvalidToken:
			w.logger.Info().Str("device_id", d.ID).Msg("deactivating device with invalid token")
			if err := w.repo.DeactivateDeviceByToken(ctx, d.FCMToken); err != nil {
				w.logger.Warn().Err(err).Str("device_id", d.ID).Msg("deactivate device")
			}
		default:
			transient++
			lastErr = res.Err
			w.logger.Warn().Err(res.Err).Str("device_id", d.ID).Msg("push failed")
		}
	}

	w.logger.Info().
		Str("notification_id", n.ID).
		Int("delivered", delivered).
		Int("devices", len(devices)).
		Msg("push fan-out finished")

	if delivered == 0 && transient > 0 {
		return fmt.Errorf("no device reached: %w", lastErr)
	}
	return nil
}

func (w *PushWorker) complete(ctx context.Context, task *models.PushTask) {
	if err := w.repo.UpdatePushTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("mark completed")
	}
}

func (w *PushWorker) retryOrFail(ctx context.Context, task *models.PushTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.repo.UpdatePushTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("mark retry")
	}
	metrics.IncPush("retry")
}

func (w *PushWorker) failTask(ctx context.Context, task *models.PushTask, cause error) {
	if err := w.repo.UpdatePushTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncPush("dead_letter")
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("dead letter push")
	}
}

func (w *PushWorker) pushRedis(ctx context.Context, key string, task models.PushTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

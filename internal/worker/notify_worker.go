package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"shinebin/internal/catalog"
	"shinebin/internal/database"
	"shinebin/internal/domain"
	"shinebin/internal/metrics"
	"shinebin/internal/models"
	"shinebin/internal/notify"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const TaskBookingAlert = "booking_alert"

const (
	enqueueTimeout = 10 * time.Second
	deliverTimeout = 30 * time.Second
)

// NotifyWorker delivers operator alerts for new bookings.
//
// Dispatch never blocks the caller: the alert is rendered, persisted to the
// notification_queue outbox and pushed to Redis (or a local channel) on a
// separate goroutine with its own context. Start consumes the fast path and
// falls back to polling the outbox, so alerts survive restarts.
type NotifyWorker struct {
	queue             domain.NotificationQueue
	notifier          notify.Notifier
	catalog           *catalog.Catalog
	redis             *redis.Client
	retryPolicy       RetryPolicy
	local             chan models.NotificationTask
	redisQueueKey     string
	deadLetterKey     string
	pollInterval      time.Duration
	visibilityTimeout time.Duration
	batchSize         int
	logger            *zerolog.Logger

	inflight sync.WaitGroup
}

// NewNotifyWorker builds a worker with sane defaults. redisClient may be nil.
func NewNotifyWorker(
	queue domain.NotificationQueue,
	notifier notify.Notifier,
	cat *catalog.Catalog,
	redisClient *redis.Client,
	retry RetryPolicy,
	queueSize int,
	logger *zerolog.Logger,
) *NotifyWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if queueSize <= 0 {
		queueSize = models.NotificationQueueSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotifyWorker{
		queue:             queue,
		notifier:          notifier,
		catalog:           cat,
		redis:             redisClient,
		retryPolicy:       retry,
		local:             make(chan models.NotificationTask, queueSize),
		redisQueueKey:     "notifications:queue",
		deadLetterKey:     "notifications:deadletter",
		pollInterval:      2 * time.Second,
		visibilityTimeout: 30 * time.Second,
		batchSize:         20,
		logger:            logger,
	}
}

// Dispatch schedules an alert for booking and returns immediately.
// Failures are logged and counted; they never reach the caller.
func (w *NotifyWorker) Dispatch(booking *models.Booking) {
	if booking == nil {
		return
	}
	snapshot := *booking
	snapshot.Addons = append([]string(nil), booking.Addons...)

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.IncNotification("dropped")
				w.logger.Error().Interface("panic", r).Str("booking_id", snapshot.ID).Msg("Notification dispatch panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		defer cancel()

		if err := w.EnqueueAlert(ctx, &snapshot); err != nil {
			metrics.IncNotification("dropped")
			w.logger.Error().Err(err).Str("booking_id", snapshot.ID).Msg("Failed to enqueue booking alert")
		}
	}()
}

// Wait blocks until every pending Dispatch has enqueued its alert.
func (w *NotifyWorker) Wait() {
	w.inflight.Wait()
}

// EnqueueAlert persists the alert and schedules it via redis or the in-memory queue.
func (w *NotifyWorker) EnqueueAlert(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		return errors.New("booking id is required")
	}

	payload, err := json.Marshal(notify.NewAlert(booking, w.catalog))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	// the poller leaves the task alone until the fast path had its chance
	visibleAt := time.Now().Add(w.visibilityTimeout)
	task := models.NotificationTask{
		TaskType:    TaskBookingAlert,
		BookingID:   booking.ID,
		Payload:     string(payload),
		Status:      database.TaskStatusPending,
		NextRetryAt: &visibleAt,
	}

	if err := w.queue.CreateNotificationTask(ctx, &task); err != nil {
		return fmt.Errorf("persist notification task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("Redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.local <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("In-memory queue full, task left to polling")
	}

	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

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

		tasks, err := w.queue.GetPendingNotificationTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("Failed to fetch pending notifications")
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

func (w *NotifyWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *NotifyWorker) tryLocalQueue() (models.NotificationTask, bool) {
	select {
	case t := <-w.local:
		return t, true
	default:
		return models.NotificationTask{}, false
	}
}

func (w *NotifyWorker) tryRedis(ctx context.Context) (models.NotificationTask, bool) {
	if w.redis == nil {
		return models.NotificationTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.NotificationTask{}, false
		}
		w.logger.Warn().Err(err).Msg("Redis BRPOP error")
		return models.NotificationTask{}, false
	}
	if len(res) != 2 {
		return models.NotificationTask{}, false
	}
	var task models.NotificationTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode redis task")
		return models.NotificationTask{}, false
	}
	return task, true
}

func (w *NotifyWorker) processTask(ctx context.Context, task *models.NotificationTask) {
	if task.TaskType != TaskBookingAlert {
		w.failTask(ctx, task, fmt.Errorf("unknown task type: %s", task.TaskType))
		return
	}

	var alert notify.Alert
	if err := json.Unmarshal([]byte(task.Payload), &alert); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	err := w.notifier.Notify(deliverCtx, alert)
	cancel()
	if err != nil {
		w.logger.Warn().Err(err).Str("booking_id", task.BookingID).Int("attempt", task.RetryCount+1).Msg("Notification delivery failed")
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncNotification("sent")
	if err := w.queue.UpdateNotificationTaskStatus(ctx, task.ID, database.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification completed")
	}
}

func (w *NotifyWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncNotification("retry")
	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.queue.UpdateNotificationTaskStatus(ctx, task.ID, database.TaskStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification for retry")
	}
}

func (w *NotifyWorker) failTask(ctx context.Context, task *models.NotificationTask, cause error) {
	metrics.IncNotification("failed")
	if err := w.queue.UpdateNotificationTaskStatus(ctx, task.ID, database.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *NotifyWorker) pushRedis(ctx context.Context, task models.NotificationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *NotifyWorker) pushDeadLetter(ctx context.Context, task *models.NotificationTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to push dead letter")
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"waitlist-engine/core/logger"
	"waitlist-engine/modules/notification/entity"
	"waitlist-engine/modules/notification/repository"
	"waitlist-engine/modules/notification/sender"

	"github.com/hibiken/asynq"
)

// DeliveryWorker consumes queued notifications. Returning an error lets the
// queue retry with its backoff; skipping (nil) is final.
type DeliveryWorker struct {
	repo    repository.NotificationRepository
	senders map[entity.Channel]sender.Sender
	now     func() time.Time
}

func NewDeliveryWorker(repo repository.NotificationRepository, email, sms sender.Sender) *DeliveryWorker {
	return &DeliveryWorker{
		repo: repo,
		senders: map[entity.Channel]sender.Sender{
			entity.ChannelEmail: email,
			entity.ChannelSMS:   sms,
		},
		now: time.Now,
	}
}

func (w *DeliveryWorker) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	var payload deliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	n, err := w.repo.GetByID(ctx, payload.NotificationID)
	if err != nil {
		return err
	}
	if n == nil {
		logger.Warn("DeliveryWorker:Handle:Missing", "notification_id", payload.NotificationID)
		return nil
	}
	if n.Status == entity.DeliveryStatusSent {
		return nil
	}

	snd, ok := w.senders[n.Channel]
	if !ok {
		return fmt.Errorf("unknown channel %q: %w", n.Channel, asynq.SkipRetry)
	}

	body, _ := n.Payload["body"].(string)
	if sendErr := snd.Send(ctx, n.Recipient, n.Subject, body); sendErr != nil {
		logger.Warn("DeliveryWorker:Handle:SendFailed",
			"notification_id", n.ID, "channel", n.Channel, "error", sendErr)
		if dbErr := w.repo.MarkFailed(ctx, n.ID, sendErr.Error()); dbErr != nil {
			logger.Error("DeliveryWorker:Handle:MarkFailed", "notification_id", n.ID, "error", dbErr)
		}
		return sendErr
	}

	if err := w.repo.MarkSent(ctx, n.ID, w.now()); err != nil {
		logger.Error("DeliveryWorker:Handle:MarkSent", "notification_id", n.ID, "error", err)
		return err
	}
	logger.Info("DeliveryWorker:Handle:Sent", "notification_id", n.ID, "channel", n.Channel)
	return nil
}

// Register binds the worker's handlers onto the queue mux.
func (w *DeliveryWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeDeliver, w.HandleDeliverTask)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"waitlist-engine/core/config"
	coreentity "waitlist-engine/core/entity"
	"waitlist-engine/core/logger"
	"waitlist-engine/modules/notification/entity"
	"waitlist-engine/modules/notification/repository"
	slotentity "waitlist-engine/modules/slot/entity"
	waitlistentity "waitlist-engine/modules/waitlist/entity"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeDeliver   = "notification:deliver"
	notificationQueue = "notifications"
	deliveryTaskLimit = 2 * time.Minute
	offerTimeFormat   = "Monday 2 January, 15:04"
)

type deliverPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

// Enqueuer is the slice of asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher turns a granted offer into queued delivery work. Writing the
// log row and enqueueing are best effort: a delivery problem never unwinds
// the offer, the window just runs out on its own.
type Dispatcher struct {
	repo     repository.NotificationRepository
	queue    Enqueuer
	baseURL  string
	maxRetry int
}

func NewDispatcher(repo repository.NotificationRepository, queue Enqueuer, serverCfg config.ServerConfig, engineCfg config.EngineConfig) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		queue:    queue,
		baseURL:  strings.TrimRight(serverCfg.PublicBaseURL, "/"),
		maxRetry: engineCfg.TransientRetryMax,
	}
}

// SendOffer notifies the customer that their slot opened up. Email always
// goes out; SMS only when the entry has a phone number.
func (d *Dispatcher) SendOffer(ctx context.Context, entry *waitlistentity.Entry, slot *slotentity.Slot) error {
	link := fmt.Sprintf("%s/api/v1/entry/%s", d.baseURL, entry.ConfirmToken)
	subject := "A slot opened up for you"
	body := fmt.Sprintf(
		"Hi %s,\n\nA slot you asked for is now free: %s.\n\nConfirm or decline here: %s\n\nThis offer expires at %s.",
		entry.CustomerName,
		slot.SlotStart.Format(offerTimeFormat),
		link,
		entry.OfferExpiresAt.Format(offerTimeFormat),
	)

	if err := d.dispatch(ctx, entry, slot, entity.ChannelEmail, entry.CustomerEmail, subject, body); err != nil {
		return err
	}
	if entry.CustomerPhone != nil && *entry.CustomerPhone != "" {
		smsBody := fmt.Sprintf("A slot opened up: %s. Confirm: %s",
			slot.SlotStart.Format(offerTimeFormat), link)
		if err := d.dispatch(ctx, entry, slot, entity.ChannelSMS, *entry.CustomerPhone, subject, smsBody); err != nil {
			logger.Error("Dispatcher:SendOffer:SMS", "entry_id", entry.ID, "error", err)
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, entry *waitlistentity.Entry, slot *slotentity.Slot, channel entity.Channel, recipient, subject, body string) error {
	n := &entity.Notification{
		OwnerID:   entry.OwnerID,
		EntryID:   entry.ID,
		Channel:   channel,
		Recipient: recipient,
		Subject:   subject,
		Payload: coreentity.JSONB{
			"body":       body,
			"slot_id":    slot.ID.String(),
			"slot_start": slot.SlotStart.Format(time.RFC3339),
		},
		Status: entity.DeliveryStatusQueued,
	}
	if _, err := d.repo.Create(ctx, n); err != nil {
		return err
	}

	raw, err := json.Marshal(deliverPayload{NotificationID: n.ID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeDeliver, raw)
	_, err = d.queue.EnqueueContext(ctx, task,
		asynq.Queue(notificationQueue),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(deliveryTaskLimit),
	)
	if err != nil {
		logger.Error("Dispatcher:Dispatch:Enqueue", "notification_id", n.ID, "error", err)
		if dbErr := d.repo.MarkFailed(ctx, n.ID, "enqueue failed: "+err.Error()); dbErr != nil {
			logger.Error("Dispatcher:Dispatch:MarkFailed", "notification_id", n.ID, "error", dbErr)
		}
		return err
	}
	logger.Info("Dispatcher:Dispatch:Queued", "notification_id", n.ID, "channel", channel)
	return nil
}

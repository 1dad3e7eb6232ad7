package notification

import (
	"waitlist-engine/core/config"
	"waitlist-engine/core/database"
	"waitlist-engine/modules/notification/repository"
	"waitlist-engine/modules/notification/sender"
	"waitlist-engine/modules/notification/service"
)

// Init wires the notification module. The caller owns the asynq client and
// registers the returned worker on its queue mux.
func Init(db database.IDatabase, queue service.Enqueuer, cfg *config.Config) (*service.Dispatcher, *service.DeliveryWorker) {
	repo := repository.NewNotificationRepository(db)

	dispatcher := service.NewDispatcher(repo, queue, cfg.Server, cfg.Engine)
	worker := service.NewDeliveryWorker(repo,
		sender.NewEmailSender(cfg.SMTP),
		sender.NewSMSSender(cfg.SMS),
	)
	return dispatcher, worker
}

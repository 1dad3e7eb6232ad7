package slot

import (
	"waitlist-engine/core/config"
	"waitlist-engine/core/database"
	"waitlist-engine/core/middleware"
	calrepo "waitlist-engine/modules/calendar/repository"
	calservice "waitlist-engine/modules/calendar/service"
	"waitlist-engine/modules/slot/controller"
	"waitlist-engine/modules/slot/repository"
	"waitlist-engine/modules/slot/router"
	"waitlist-engine/modules/slot/service"

	"github.com/labstack/echo/v4"
)

// Init wires the slot module. The watcher's matcher is attached afterwards
// because the waitlist module is built on top of the slot repository.
func Init(
	e *echo.Echo,
	db database.IDatabase,
	mw *middleware.Middleware,
	connRepo calrepo.CalendarRepository,
	gateway calservice.Gateway,
	refresher *calservice.TokenRefresher,
	engineCfg config.EngineConfig,
) (repository.SlotRepository, *service.Watcher) {
	repo := repository.NewSlotRepository(db)
	svc := service.NewSlotService(repo, connRepo)
	ctrl := controller.NewSlotController(svc)

	router.NewSlotRouter(ctrl).Setup(e, mw)

	watcher := service.NewWatcher(repo, connRepo, gateway, refresher, engineCfg)
	return repo, watcher
}

package waitlist

import (
	"waitlist-engine/core/cache"
	"waitlist-engine/core/config"
	"waitlist-engine/core/database"
	"waitlist-engine/core/middleware"
	slotrepo "waitlist-engine/modules/slot/repository"
	"waitlist-engine/modules/waitlist/controller"
	"waitlist-engine/modules/waitlist/repository"
	"waitlist-engine/modules/waitlist/router"
	"waitlist-engine/modules/waitlist/service"

	"github.com/labstack/echo/v4"
)

// Init wires the waitlist module on top of the slot repository and returns
// the matcher so the watcher and the scheduler can drive it.
func Init(
	e *echo.Echo,
	db database.IDatabase,
	mw *middleware.Middleware,
	c cache.Cache,
	slots slotrepo.SlotRepository,
	notifier service.OfferNotifier,
	engineCfg config.EngineConfig,
) *service.Matcher {
	repo := repository.NewEntryRepository(db, slots)
	matcher := service.NewMatcher(repo, slots, c, notifier, engineCfg)
	svc := service.NewEntryService(repo, matcher)
	ctrl := controller.NewEntryController(svc, matcher)

	router.NewWaitlistRouter(ctrl).Setup(e, mw)

	return matcher
}

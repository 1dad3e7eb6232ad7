package calendar

import (
	"waitlist-engine/core/config"
	"waitlist-engine/core/database"
	"waitlist-engine/core/middleware"
	"waitlist-engine/modules/calendar/controller"
	"waitlist-engine/modules/calendar/repository"
	"waitlist-engine/modules/calendar/router"
	"waitlist-engine/modules/calendar/service"

	"github.com/labstack/echo/v4"
)

// Init wires the calendar module and returns the pieces the watcher needs.
func Init(e *echo.Echo, db database.IDatabase, mw *middleware.Middleware, engineCfg config.EngineConfig) (repository.CalendarRepository, service.Gateway, *service.TokenRefresher) {
	repo := repository.NewCalendarRepository(db)
	gateway := service.NewGateway()
	refresher := service.NewTokenRefresher(repo, engineCfg.RefreshMargin())
	svc := service.NewCalendarService(repo)
	ctrl := controller.NewCalendarController(svc)

	router.NewCalendarRouter(ctrl).Setup(e, mw)

	return repo, gateway, refresher
}

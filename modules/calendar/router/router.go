package router

import (
	"waitlist-engine/core/middleware"
	"waitlist-engine/modules/calendar/controller"

	"github.com/labstack/echo/v4"
)

type CalendarRouter struct {
	CalendarController *controller.CalendarController
}

func NewCalendarRouter(calendarController *controller.CalendarController) *CalendarRouter {
	return &CalendarRouter{CalendarController: calendarController}
}

func (r *CalendarRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")

	// OAuth redirect target has no bearer token; state binds it to an owner.
	v1.GET("/calendar/callback", r.CalendarController.Callback)

	private := v1.Group("/private/calendar", mw.AuthMiddleware())
	private.GET("/connect", r.CalendarController.Connect)
	private.GET("/connections", r.CalendarController.GetConnections)
	private.DELETE("/connections/:provider", r.CalendarController.Disconnect)
	private.POST("/connections/:provider/reconnect", r.CalendarController.Reconnect)
}

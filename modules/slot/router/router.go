package router

import (
	"waitlist-engine/core/middleware"
	"waitlist-engine/modules/slot/controller"

	"github.com/labstack/echo/v4"
)

type SlotRouter struct {
	SlotController *controller.SlotController
}

func NewSlotRouter(slotController *controller.SlotController) *SlotRouter {
	return &SlotRouter{SlotController: slotController}
}

func (r *SlotRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	private := e.Group("/api/v1/private/slots", mw.AuthMiddleware())
	private.POST("", r.SlotController.Create)
	private.GET("", r.SlotController.List)
	private.GET("/stats", r.SlotController.Stats)
	private.GET("/:id", r.SlotController.Get)
	private.POST("/:id/cancel", r.SlotController.Cancel)
	private.DELETE("/:id", r.SlotController.Delete)
}

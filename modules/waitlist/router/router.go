package router

import (
	"waitlist-engine/core/middleware"
	"waitlist-engine/modules/waitlist/controller"

	"github.com/labstack/echo/v4"
)

type WaitlistRouter struct {
	EntryController *controller.EntryController
}

func NewWaitlistRouter(entryController *controller.EntryController) *WaitlistRouter {
	return &WaitlistRouter{EntryController: entryController}
}

func (r *WaitlistRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")

	// Confirmation links carry a single-use token instead of a session.
	public := v1.Group("/entry")
	public.GET("/:token", r.EntryController.ViewOffer)
	public.POST("/:token/confirm", r.EntryController.ConfirmOffer)
	public.POST("/:token/decline", r.EntryController.DeclineOffer)

	private := v1.Group("/private/entries", mw.AuthMiddleware())
	private.POST("", r.EntryController.Create)
	private.GET("", r.EntryController.List)
	private.GET("/stats", r.EntryController.Stats)
	private.GET("/:id", r.EntryController.Get)
	private.POST("/:id/cancel", r.EntryController.Cancel)
	private.DELETE("/:id", r.EntryController.Delete)
}

package controller

import (
	"waitlist-engine/core/controller"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/middleware"
	"waitlist-engine/modules/calendar/service"

	"github.com/labstack/echo/v4"
)

type CalendarController struct {
	service service.CalendarService
	controller.BaseController
}

func NewCalendarController(svc service.CalendarService) *CalendarController {
	return &CalendarController{
		service:        svc,
		BaseController: controller.NewBaseController(),
	}
}

// Connect returns the provider authorize URL for the authenticated owner
// @Summary Start calendar OAuth flow
// @Tags Calendar
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.OAuthURLResponse
// @Router /private/calendar/connect [get]
func (c *CalendarController) Connect(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	resp, err := c.service.AuthorizeURL(ctx.Request().Context(), ownerID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, resp, "Authorize URL generated")
}

// Callback completes the OAuth flow (redirect target, unauthenticated)
// @Summary OAuth callback
// @Tags Calendar
// @Produce json
// @Param state query string true "OAuth state"
// @Param code query string true "Authorization code"
// @Router /calendar/callback [get]
func (c *CalendarController) Callback(ctx echo.Context) error {
	state := ctx.QueryParam("state")
	code := ctx.QueryParam("code")
	if state == "" || code == "" {
		return c.BadRequest(errors.ErrInvalidInput, "state and code are required")
	}

	conn, err := c.service.HandleCallback(ctx.Request().Context(), state, code)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, map[string]string{
		"connection_id": conn.ID.String(),
		"calendar_id":   conn.CalendarID,
	}, "Calendar connected")
}

// GetConnections lists the owner's calendar connections
// @Summary List calendar connections
// @Tags Calendar
// @Security BearerAuth
// @Produce json
// @Router /private/calendar/connections [get]
func (c *CalendarController) GetConnections(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	connections, err := c.service.GetConnections(ctx.Request().Context(), ownerID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, connections, "Connections retrieved")
}

// Disconnect disables a provider connection
// @Summary Disconnect calendar
// @Tags Calendar
// @Security BearerAuth
// @Param provider path string true "Provider name"
// @Router /private/calendar/connections/{provider} [delete]
func (c *CalendarController) Disconnect(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	if err := c.service.Disconnect(ctx.Request().Context(), ownerID, ctx.Param("provider")); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Calendar disconnected")
}

// Reconnect re-enables a connection after an auth failure was resolved
// @Summary Reconnect calendar
// @Tags Calendar
// @Security BearerAuth
// @Param provider path string true "Provider name"
// @Router /private/calendar/connections/{provider}/reconnect [post]
func (c *CalendarController) Reconnect(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	if err := c.service.Reconnect(ctx.Request().Context(), ownerID, ctx.Param("provider")); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Calendar reconnected")
}

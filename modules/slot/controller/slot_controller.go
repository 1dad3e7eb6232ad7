package controller

import (
	"waitlist-engine/core/controller"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/middleware"
	"waitlist-engine/core/params"
	"waitlist-engine/modules/slot/dto"
	"waitlist-engine/modules/slot/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type SlotController struct {
	service service.SlotService
	controller.BaseController
}

func NewSlotController(svc service.SlotService) *SlotController {
	return &SlotController{
		service:        svc,
		BaseController: controller.NewBaseController(),
	}
}

// Create registers a slot for monitoring
// @Summary Create monitored slot
// @Tags Slot
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.CreateSlotRequest true "Slot window"
// @Router /private/slots [post]
func (c *SlotController) Create(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	var req dto.CreateSlotRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "invalid request body")
	}

	slot, err := c.service.Create(ctx.Request().Context(), ownerID, &req)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, slot, "Slot created")
}

// Get returns one slot
// @Summary Get slot
// @Tags Slot
// @Security BearerAuth
// @Param id path string true "Slot ID"
// @Router /private/slots/{id} [get]
func (c *SlotController) Get(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "invalid slot id")
	}

	slot, err := c.service.Get(ctx.Request().Context(), id, ownerID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, slot, "Slot retrieved")
}

// List returns the owner's slots, paginated and optionally filtered by status
// @Summary List slots
// @Tags Slot
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param status query string false "Status filter"
// @Router /private/slots [get]
func (c *SlotController) List(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	result, err := c.service.List(ctx.Request().Context(), ownerID, *params.NewQueryParams(ctx))
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, result, "Slots retrieved")
}

// Cancel stops monitoring a slot
// @Summary Cancel slot
// @Tags Slot
// @Security BearerAuth
// @Param id path string true "Slot ID"
// @Router /private/slots/{id}/cancel [post]
func (c *SlotController) Cancel(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "invalid slot id")
	}

	if err := c.service.Cancel(ctx.Request().Context(), id, ownerID); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Slot cancelled")
}

// Delete removes a terminal slot
// @Summary Delete slot
// @Tags Slot
// @Security BearerAuth
// @Param id path string true "Slot ID"
// @Router /private/slots/{id} [delete]
func (c *SlotController) Delete(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "invalid slot id")
	}

	if err := c.service.Delete(ctx.Request().Context(), id, ownerID); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Slot deleted")
}

// Stats returns status counts and the fill rate
// @Summary Slot statistics
// @Tags Slot
// @Security BearerAuth
// @Router /private/slots/stats [get]
func (c *SlotController) Stats(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	stats, err := c.service.Stats(ctx.Request().Context(), ownerID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, stats, "Stats retrieved")
}

package controller

import (
	"waitlist-engine/core/controller"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/middleware"
	"waitlist-engine/core/params"
	slotentity "waitlist-engine/modules/slot/entity"
	"waitlist-engine/modules/waitlist/dto"
	"waitlist-engine/modules/waitlist/entity"
	"waitlist-engine/modules/waitlist/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type EntryController struct {
	service service.EntryService
	matcher *service.Matcher
	controller.BaseController
}

func NewEntryController(svc service.EntryService, matcher *service.Matcher) *EntryController {
	return &EntryController{
		service:        svc,
		matcher:        matcher,
		BaseController: controller.NewBaseController(),
	}
}

// Create adds a customer to the waitlist
// @Summary Create waitlist entry
// @Tags Waitlist
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.CreateEntryRequest true "Entry"
// @Router /private/entries [post]
func (c *EntryController) Create(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	var req dto.CreateEntryRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "invalid request body")
	}

	entry, err := c.service.Create(ctx.Request().Context(), ownerID, &req)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, entry, "Entry created")
}

// List returns the owner's entries, priority ordered
// @Summary List waitlist entries
// @Tags Waitlist
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param status query string false "Status filter"
// @Router /private/entries [get]
func (c *EntryController) List(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	result, err := c.service.List(ctx.Request().Context(), ownerID, *params.NewQueryParams(ctx))
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, result, "Entries retrieved")
}

// Get returns one entry
// @Summary Get waitlist entry
// @Tags Waitlist
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Router /private/entries/{id} [get]
func (c *EntryController) Get(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "invalid entry id")
	}

	entry, err := c.service.Get(ctx.Request().Context(), id, ownerID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, entry, "Entry retrieved")
}

// Cancel removes an entry from the pool
// @Summary Cancel waitlist entry
// @Tags Waitlist
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Router /private/entries/{id}/cancel [post]
func (c *EntryController) Cancel(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "invalid entry id")
	}

	if err := c.service.Cancel(ctx.Request().Context(), id, ownerID); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Entry cancelled")
}

// Delete removes a resolved entry
// @Summary Delete waitlist entry
// @Tags Waitlist
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Router /private/entries/{id} [delete]
func (c *EntryController) Delete(ctx echo.Context) error {
	ownerID, ok := middleware.OwnerIDFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "invalid entry id")
	}

	if err := c.service.Delete(ctx.Request().Context(), id, ownerID); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Entry deleted")
}

// Stats returns entry status counts
// @Summary Waitlist statistics
// @Tags Waitlist
// @Security BearerAuth
// @Router /private/entries/stats [get]
func (c *EntryController) Stats(ctx echo.Context) error {
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

// ViewOffer shows the offer behind a confirmation link (public)
// @Summary View offer
// @Tags Offer
// @Param token path string true "Confirmation token"
// @Router /entry/{token} [get]
func (c *EntryController) ViewOffer(ctx echo.Context) error {
	entry, slot, err := c.matcher.View(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, offerResponse(entry, slot), "Offer retrieved")
}

// ConfirmOffer accepts an offer (public, idempotent)
// @Summary Confirm offer
// @Tags Offer
// @Param token path string true "Confirmation token"
// @Router /entry/{token}/confirm [post]
func (c *EntryController) ConfirmOffer(ctx echo.Context) error {
	entry, slot, err := c.matcher.Confirm(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, offerResponse(entry, slot), "Offer confirmed")
}

// DeclineOffer declines an offer (public)
// @Summary Decline offer
// @Tags Offer
// @Param token path string true "Confirmation token"
// @Router /entry/{token}/decline [post]
func (c *EntryController) DeclineOffer(ctx echo.Context) error {
	if err := c.matcher.Decline(ctx.Request().Context(), ctx.Param("token")); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Offer declined")
}

func offerResponse(entry *entity.Entry, slot *slotentity.Slot) *dto.OfferResponse {
	resp := &dto.OfferResponse{
		CustomerName:   entry.CustomerName,
		Status:         entry.Status,
		OfferExpiresAt: entry.OfferExpiresAt,
	}
	if slot != nil {
		resp.SlotStart = &slot.SlotStart
		resp.SlotEnd = &slot.SlotEnd
	}
	return resp
}

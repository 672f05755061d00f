package controller

import (
	"github.com/Dembrane/echo-sub002/internal/dto"
	"github.com/Dembrane/echo-sub002/internal/pkg/serverutils"
	"github.com/Dembrane/echo-sub002/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IContextController interface {
	RegisterRoutes(r fiber.Router)
	GetContext(ctx *fiber.Ctx) error
	AddItem(ctx *fiber.Ctx) error
	RemoveItem(ctx *fiber.Ctx) error
	LockContext(ctx *fiber.Ctx) error
}

type contextController struct {
	contextService service.IContextService
}

func NewContextController(contextService service.IContextService) IContextController {
	return &contextController{contextService: contextService}
}

func (c *contextController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Get("/session/:id/context", c.GetContext)
	h.Post("/session/:id/context", c.AddItem)
	h.Delete("/session/:id/context/:itemId", c.RemoveItem)
	h.Post("/session/:id/context/lock", c.LockContext)
}

func (c *contextController) GetContext(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}

	res, err := c.contextService.GetContext(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session context", res))
}

func (c *contextController) AddItem(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}

	var req dto.AddContextItemRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.contextService.AddItem(ctx.Context(), userId, sessionId, req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success add context item", res))
}

func (c *contextController) RemoveItem(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}
	itemId, err := uuid.Parse(ctx.Params("itemId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid context item id")
	}

	if err := c.contextService.RemoveItem(ctx.Context(), userId, sessionId, itemId); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success remove context item", nil))
}

func (c *contextController) LockContext(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}

	res, err := c.contextService.LockContext(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success lock session context", res))
}

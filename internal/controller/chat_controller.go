package controller

import (
	"bufio"
	"context"

	"github.com/Dembrane/echo-sub002/internal/dto"
	"github.com/Dembrane/echo-sub002/internal/pkg/serverutils"
	"github.com/Dembrane/echo-sub002/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	GetAllSessions(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	SetMode(ctx *fiber.Ctx) error
	SendTurn(ctx *fiber.Ctx) error
	StopTurn(ctx *fiber.Ctx) error
	GetHistory(ctx *fiber.Ctx) error
	GetState(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
	turnService service.ITurnService
}

func NewChatController(chatService service.IChatService, turnService service.ITurnService) IChatController {
	return &chatController{
		chatService: chatService,
		turnService: turnService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("/session", c.CreateSession)
	h.Get("/session", c.GetAllSessions)
	h.Delete("/session/:id", c.DeleteSession)
	h.Post("/session/:id/mode", c.SetMode)
	h.Post("/session/:id/turn", c.SendTurn)
	h.Post("/session/:id/stop", c.StopTurn)
	h.Get("/session/:id/history", c.GetHistory)
	h.Get("/session/:id/state", c.GetState)
}

func (c *chatController) CreateSession(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid user id")
	}

	var req dto.CreateSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.CreateSession(ctx.Context(), userId, req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create chat session", res))
}

func (c *chatController) GetAllSessions(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid user id")
	}

	res, err := c.chatService.GetAllSessions(ctx.Context(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get chat sessions", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}

	if err := c.chatService.DeleteSession(ctx.Context(), userId, sessionId); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete chat session", nil))
}

func (c *chatController) SetMode(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}

	var req dto.SetModeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.InitializeMode(ctx.Context(), userId, sessionId, req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success set chat mode", res))
}

// flushSink streams each accepted delta straight to the client. A write or
// flush error means the client went away, which abandons the turn upstream.
type flushSink struct {
	w *bufio.Writer
}

func (s *flushSink) Delta(text string) error {
	if _, err := s.w.WriteString(text); err != nil {
		return err
	}
	return s.w.Flush()
}

// SendTurn is the streaming endpoint: everything that can fail with a status
// code happens in BeginTurn, before the response is committed. After that the
// body is chunked text deltas and the outcome travels in-band (the stream
// simply ends; clients poll state or listen on the socket for the reason).
func (c *chatController) SendTurn(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}

	var req dto.SendTurnRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// The stream writer runs after this handler returns, so the turn cannot
	// borrow the request context.
	turn, err := c.turnService.BeginTurn(context.Background(), userId, sessionId, ctx.Query("lang"), req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set("X-Accel-Buffering", "no")
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		turn.Run(&flushSink{w: w})
	}))
	return nil
}

func (c *chatController) StopTurn(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}

	res, err := c.turnService.StopTurn(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success stop turn", res))
}

func (c *chatController) GetHistory(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}

	res, err := c.chatService.GetHistory(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func (c *chatController) GetState(ctx *fiber.Ctx) error {
	userId, sessionId, err := sessionParams(ctx)
	if err != nil {
		return err
	}

	res, err := c.chatService.GetSessionState(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session state", res))
}

// sessionParams extracts the authenticated user and the :id route param.
func sessionParams(ctx *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	userIdStr := ctx.Locals("user_id").(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid user id")
	}
	sessionId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}
	return userId, sessionId, nil
}

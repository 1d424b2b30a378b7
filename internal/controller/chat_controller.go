package controller

import (
	"io"
	"strconv"

	"ai-elearning-be/internal/dto"
	"ai-elearning-be/internal/pkg/serverutils"
	"ai-elearning-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	SendChat(ctx *fiber.Ctx) error
	ValidateCommit(ctx *fiber.Ctx) error
	GetHistory(ctx *fiber.Ctx) error
	GetSuggestions(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chatbot/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("chat", c.SendChat)
	h.Post("validate", c.ValidateCommit)
	h.Get("history", c.GetHistory)
	h.Get("suggestions", c.GetSuggestions)
}

// SendChat accepts a multipart turn: a "message" field plus an optional
// "file" PDF attachment.
func (c *chatController) SendChat(ctx *fiber.Ctx) error {
	userId, _ := ctx.Locals("user_id").(string)
	role, _ := ctx.Locals("user_role").(string)
	conversationId := ctx.Get("X-Conversation-Id")
	if conversationId == "" {
		conversationId = ctx.FormValue("conversation_id")
	}

	message := ctx.FormValue("message")

	var attachment []byte
	if fileHeader, err := ctx.FormFile("file"); err == nil && fileHeader != nil {
		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "cannot read attachment")
		}
		defer file.Close()

		attachment, err = io.ReadAll(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "cannot read attachment")
		}
	}

	if message == "" && len(attachment) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "message or file is required")
	}

	res, err := c.chatService.SendChat(ctx.Context(), userId, role, conversationId, message, attachment)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Chat processed", res))
}

func (c *chatController) ValidateCommit(ctx *fiber.Ctx) error {
	userId, _ := ctx.Locals("user_id").(string)

	var req dto.ValidateCommitRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.ValidateCommit(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Operation committed", res))
}

func (c *chatController) GetHistory(ctx *fiber.Ctx) error {
	userId, _ := ctx.Locals("user_id").(string)
	conversationId := ctx.Query("conversation_id")
	limit, _ := strconv.Atoi(ctx.Query("limit", "20"))

	res, err := c.chatService.GetHistory(ctx.Context(), userId, conversationId, limit)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Chat history", res))
}

func (c *chatController) GetSuggestions(ctx *fiber.Ctx) error {
	role, _ := ctx.Locals("user_role").(string)

	return ctx.JSON(serverutils.SuccessResponse("Suggestions", c.chatService.GetSuggestions(role)))
}

package controller

import (
	"ai-elearning-be/internal/dto"
	"ai-elearning-be/internal/pkg/serverutils"
	"ai-elearning-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IReminderController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
}

type reminderController struct {
	reminderService service.IReminderService
}

func NewReminderController(reminderService service.IReminderService) IReminderController {
	return &reminderController{
		reminderService: reminderService,
	}
}

func (c *reminderController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/reminder/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Create)
}

func (c *reminderController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateReminderRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.reminderService.CreateReminder(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Reminder scheduled", res))
}

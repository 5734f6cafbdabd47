package controller

import (
	"devmemory-be/internal/operation"
	"devmemory-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
)

type IOperationController interface {
	RegisterRoutes(r fiber.Router, middleware ...fiber.Handler)
	List(ctx *fiber.Ctx) error
	Dispatch(ctx *fiber.Ctx) error
}

type operationController struct {
	registry *operation.Registry
}

func NewOperationController(registry *operation.Registry) IOperationController {
	return &operationController{registry: registry}
}

func (c *operationController) RegisterRoutes(r fiber.Router, middleware ...fiber.Handler) {
	h := r.Group("/ops")
	for _, m := range middleware {
		h.Use(m)
	}
	h.Get("", c.List)
	h.Post("/:name", c.Dispatch)
}

func (c *operationController) List(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success list operations", c.registry.Describe()))
}

func (c *operationController) Dispatch(ctx *fiber.Ctx) error {
	name := ctx.Params("name")

	res, err := c.registry.Dispatch(ctx.UserContext(), name, ctx.Body())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success "+name, res))
}

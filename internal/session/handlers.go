package session

import "github.com/gofiber/fiber/v2"

type SignInRequest struct {
	Token string `json:"token"`
}

func RegisterRoutes(r fiber.Router, p *Provider) {
	r.Put("/", func(c *fiber.Ctx) error {
		var req SignInRequest
		if err := c.BodyParser(&req); err != nil || req.Token == "" {
			return fiber.NewError(fiber.StatusBadRequest, "token required")
		}
		state, err := p.SignIn(req.Token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		return c.JSON(state)
	})

	r.Delete("/", func(c *fiber.Ctx) error {
		p.SignOut()
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(p.Current())
	})
}

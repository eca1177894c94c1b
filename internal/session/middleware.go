package session

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Require refuses requests while the session is loading or signed out and
// stores user_id in locals. A bearer token on the request signs in first.
func Require(p *Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := bearerFromHeader(c.Get("Authorization")); token != "" && token != p.Token() {
			if _, err := p.SignIn(token); err != nil {
				return fiber.NewError(fiber.StatusUnauthorized, err.Error())
			}
		}

		state := p.Current()
		if err := state.CanMutate(); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", state.UserID)
		return c.Next()
	}
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

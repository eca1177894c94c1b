package follow

import (
	"errors"

	"ecomap/internal/session"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, store *Store, sess *session.Provider, authMiddleware fiber.Handler) {
	r.Post("/:id/follow", authMiddleware, func(c *fiber.Ctx) error {
		view, accepted, err := store.ToggleFollow(sess.Current(), c.Params("id"))
		switch {
		case errors.Is(err, ErrOrgNotFound):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case errors.Is(err, session.ErrLoading), errors.Is(err, session.ErrUnauthenticated):
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": accepted, "follow": view})
	})

	r.Get("/:id/follow", func(c *fiber.Ctx) error {
		view, ok := store.View(c.Params("id"), sess.Current().UserID)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, ErrOrgNotFound.Error())
		}
		_, pending := store.Engine().Pending(view.SubjectID)
		return c.JSON(fiber.Map{"follow": view, "pending": pending})
	})
}
